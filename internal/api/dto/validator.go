package dto

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ticketsla/sla-engine/internal/domain"
	apperrors "github.com/ticketsla/sla-engine/pkg/util/errorutil"
)

// Validator checks request payloads and reports failures as VALIDATION_FAILED errors
// keyed by JSON field name.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a validator with the ticket enum rules registered.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := registerRules(v); err != nil {
		panic("register validation rules: " + err.Error())
	}
	return &Validator{validate: v}
}

func registerRules(v *validator.Validate) error {
	if err := v.RegisterValidation("ticket_priority", func(fl validator.FieldLevel) bool {
		return domain.TicketPriority(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("ticket_status", func(fl validator.FieldLevel) bool {
		return domain.TicketStatus(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("bulk_operation", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "assign", "close", "update_priority", "add_tag":
			return true
		}
		return false
	})
}

// Struct validates payload.
func (v *Validator) Struct(payload any) error {
	err := v.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]any, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
		return apperrors.NewValidationError("request validation failed", details)
	}
	return apperrors.NewValidationError(err.Error(), nil)
}
