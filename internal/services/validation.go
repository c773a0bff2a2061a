package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/melbournemould/leadboard/internal/models"
)

// Validator checks lead requests against their validate tags and the
// pipeline's enumerations
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a new Validator instance with the lead enumerations registered
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enums := map[string]func(string) bool{
		"lead_status":  func(s string) bool { return models.LeadStatus(s).IsValid() },
		"service_type": func(s string) bool { return models.ServiceType(s).IsValid() },
		"urgency":      func(s string) bool { return models.Urgency(s).IsValid() },
		"lead_source":  func(s string) bool { return models.LeadSource(s).IsValid() },
	}
	for tag, valid := range enums {
		valid := valid
		// Registration only fails for an empty tag or nil func
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return valid(fl.Field().String())
		})
	}

	return &Validator{v: v}
}

// ValidateIntake validates a creation request.
// The first offending field is returned as a *models.ValidationError.
func (val *Validator) ValidateIntake(req *IntakeRequest) error {
	return val.validate(req)
}

// ValidateUpdate validates a partial update. An update that changes nothing is rejected.
func (val *Validator) ValidateUpdate(req *UpdateRequest) error {
	if err := val.validate(req); err != nil {
		return err
	}
	if isEmptyUpdate(req) {
		return models.NewValidationError("body", "no fields to update", "")
	}
	return nil
}

// ValidateAssign validates a bulk assignment request
func (val *Validator) ValidateAssign(req *AssignRequest) error {
	return val.validate(req)
}

func (val *Validator) validate(s interface{}) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	fe := fieldErrs[0]
	return models.NewValidationError(fieldName(fe), reason(fe), fmt.Sprint(fe.Value()))
}

// fieldName strips the struct prefix, keeping list indexes ("leadIds[1]")
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "number":
		return "must contain only digits"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lead_status", "service_type", "urgency", "lead_source":
		return "is not a recognized value"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func isEmptyUpdate(req *UpdateRequest) bool {
	return req.FirstName == nil && req.LastName == nil && req.Email == nil &&
		req.Phone == nil && req.Suburb == nil && req.Address == nil &&
		req.Postcode == nil && req.ServiceType == nil && req.Urgency == nil &&
		req.Source == nil && req.Status == nil && req.Notes == nil &&
		req.EstimatedValue == nil && len(req.BookingDates) == 0 && req.AssignedToID == nil
}
