package models

import (
	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator aware of the model-specific tags.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())

	_ = validate.RegisterValidation("nodetype", func(fl validator.FieldLevel) bool {
		return NodeType(fl.Field().String()).IsValid()
	})

	return validate
}
