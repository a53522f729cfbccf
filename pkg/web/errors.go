package web

import (
	"errors"
	"strings"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/generation"
	"github.com/dukex/actflow/pkg/graph"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/registry"
	"github.com/dukex/actflow/pkg/trigger"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleError maps engine errors onto problem responses.
func handleError(c fiber.Ctx, err error) error {
	var (
		validationErrs validator.ValidationErrors
		payloadErr     *trigger.PayloadError
	)

	switch {
	case errors.As(err, &payloadErr):
		return problem(c, fiber.StatusBadRequest, "invalid_payload", strings.Join(payloadErr.Problems, "; "))

	case errors.As(err, &validationErrs),
		errors.Is(err, trigger.ErrInvalidTrigger),
		errors.Is(err, registry.ErrInvalidNodeContent),
		errors.Is(err, act.ErrTriggerNodeNotFound),
		errors.Is(err, act.ErrNoExecutableTasks):
		return badRequest(c, err.Error())

	case graph.IsGraphError(err):
		return problem(c, fiber.StatusBadRequest, "invalid_graph", err.Error())

	case persistence.IsNotFound(err), errors.Is(err, trigger.ErrWorkspaceMismatch):
		return problem(c, fiber.StatusNotFound, "not_found", err.Error())

	case generation.IsInvalidTransition(err),
		errors.Is(err, generation.ErrAlreadyTerminal),
		errors.Is(err, generation.ErrRetryLimitExceeded):
		return problem(c, fiber.StatusConflict, "invalid_transition", err.Error())

	case errors.Is(err, act.ErrActNotFailed),
		errors.Is(err, act.ErrActAlreadyRunning),
		errors.Is(err, trigger.ErrTriggerDisabled),
		persistence.IsAlreadyExists(err),
		persistence.IsStoreConflict(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	default:
		return internalError(c, err)
	}
}
