// Package web exposes the engine over a REST API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/graph"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/persistence"
	"github.com/dukex/actflow/pkg/registry"
	"github.com/dukex/actflow/pkg/trigger"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const requesterHeader = "X-Actflow-Requester"

// APIHandlers serves the engine API. Acts are started detached from the
// request so they outlive it.
type APIHandlers struct {
	persistence *persistence.Persistence
	coordinator *act.Coordinator
	triggers    *trigger.Service
	ingestor    *trigger.Ingestor
	registry    *registry.Registry
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	p *persistence.Persistence,
	coordinator *act.Coordinator,
	triggers *trigger.Service,
	ingestor *trigger.Ingestor,
	registry *registry.Registry,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		coordinator: coordinator,
		triggers:    triggers,
		ingestor:    ingestor,
		registry:    registry,
		validator:   models.NewValidator(),
		logger:      logger.With("module", "api"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status, httpStatus, message := "healthy", http.StatusOK, "ok"

	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		status, httpStatus, message = "unhealthy", http.StatusServiceUnavailable, err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"store":     message,
		"executors": len(h.registry.Factories()),
		"timestamp": time.Now().UTC(),
	})
}

// SaveWorkspace validates and stores a workspace graph under the id in the path.
func (h *APIHandlers) SaveWorkspace(c fiber.Ctx) error {
	var workspace models.Workspace
	if err := c.Bind().JSON(&workspace); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workspace.ID = c.Params("id")

	if err := h.validator.Struct(workspace); err != nil {
		return handleError(c, err)
	}

	if _, err := graph.Resolve(workspace.Nodes, workspace.Connections); err != nil {
		return handleError(c, err)
	}

	if err := h.registry.ValidateWorkspace(&workspace); err != nil {
		return handleError(c, err)
	}

	now := time.Now().UTC()
	workspace.CreatedAt = now

	existing, err := h.persistence.Workspaces().GetByID(c.Context(), workspace.ID)
	if err == nil {
		workspace.CreatedAt = existing.CreatedAt
	} else if !persistence.IsNotFound(err) {
		return handleError(c, err)
	}

	workspace.UpdatedAt = now

	if err := h.persistence.Workspaces().Save(c.Context(), &workspace); err != nil {
		return handleError(c, err)
	}

	return c.JSON(workspace)
}

func (h *APIHandlers) GetWorkspace(c fiber.Ctx) error {
	workspace, err := h.persistence.Workspaces().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(workspace)
}

// CreateAct creates a manual act for the workspace and starts it.
func (h *APIHandlers) CreateAct(c fiber.Ctx) error {
	var req CreateActRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	requester := req.Requester
	if requester == "" {
		requester = c.Get(requesterHeader)
	}

	request, err := h.ingestor.Manual(c.Context(), c.Params("id"), req.NodeID, req.Payload, requester)
	if err != nil {
		return handleError(c, err)
	}

	return h.createAndStart(c, request)
}

func (h *APIHandlers) ListActs(c fiber.Ctx) error {
	acts, err := h.coordinator.ListActs(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"acts": acts})
}

func (h *APIHandlers) GetAct(c fiber.Ctx) error {
	report, err := h.coordinator.Status(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) CancelAct(c fiber.Ctx) error {
	var req CancelActRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return handleError(c, err)
	}

	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = c.Get(requesterHeader)
	}

	cancelled, err := h.coordinator.Cancel(c.Context(), c.Params("id"), req.Reason, requestedBy)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(cancelled)
}

// StartAct resumes a queued or interrupted act.
func (h *APIHandlers) StartAct(c fiber.Ctx) error {
	actID := c.Params("id")

	if err := h.coordinator.Start(context.Background(), actID); err != nil {
		return handleError(c, err)
	}

	current, err := h.persistence.Acts().GetByID(c.Context(), actID)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(accepted(current))
}

// RetryAct re-queues the failed work of a failed act and starts it again.
func (h *APIHandlers) RetryAct(c fiber.Ctx) error {
	retried, err := h.coordinator.RetryFailed(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if err := h.coordinator.Start(context.Background(), retried.ID); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(accepted(retried))
}

func (h *APIHandlers) ListGenerations(c fiber.Ctx) error {
	taskID := c.Params("id")

	if _, err := h.persistence.Tasks().GetByID(c.Context(), taskID); err != nil {
		return handleError(c, err)
	}

	generations, err := h.persistence.Generations().ListByTask(c.Context(), taskID)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"generations": generations})
}

func (h *APIHandlers) ListTriggers(c fiber.Ctx) error {
	triggers, err := h.triggers.ListByWorkspace(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"triggers": triggers})
}

func (h *APIHandlers) CreateTrigger(c fiber.Ctx) error {
	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return handleError(c, err)
	}

	saved, err := h.triggers.Save(c.Context(), req.toTrigger(c.Params("id"), c.Get(requesterHeader)))
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (h *APIHandlers) GetTrigger(c fiber.Ctx) error {
	found, err := h.triggers.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(found)
}

// UpdateTrigger replaces the configuration of an existing trigger.
func (h *APIHandlers) UpdateTrigger(c fiber.Ctx) error {
	existing, err := h.triggers.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return handleError(c, err)
	}

	updated := req.toTrigger(existing.WorkspaceID, existing.CreatedBy)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	saved, err := h.triggers.Save(c.Context(), updated)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	if err := h.triggers.Delete(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Webhook turns a webhook call into an act of the trigger's workspace.
// Authentication and signature checks happen in front of this handler.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	var payload map[string]any
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&payload); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	triggerID := c.Params("triggerId")

	found, err := h.triggers.Get(c.Context(), triggerID)
	if err != nil {
		return handleError(c, err)
	}

	if found.Kind != models.TriggerKindWebhook {
		return problem(c, fiber.StatusNotFound, "not_found", "webhook trigger not found")
	}

	request, err := h.ingestor.Ingest(c.Context(), "", triggerID, payload, "webhook")
	if err != nil {
		return handleError(c, err)
	}

	return h.createAndStart(c, request)
}

func (h *APIHandlers) createAndStart(c fiber.Ctx, request models.ActCreationRequest) error {
	created, err := h.coordinator.CreateAct(c.Context(), request)
	if err != nil {
		return handleError(c, err)
	}

	if err := h.coordinator.Start(context.Background(), created.ID); err != nil {
		return handleError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Act accepted", "act_id", created.ID, "workspace_id", created.WorkspaceID,
		"trigger_id", request.TriggerID)

	return c.Status(fiber.StatusAccepted).JSON(accepted(created))
}

func accepted(a *models.Act) ActAccepted {
	return ActAccepted{Act: a, StatusURL: "/acts/" + a.ID}
}
