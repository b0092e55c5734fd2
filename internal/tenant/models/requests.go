package models

import (
	"strings"

	dErrors "taskhub/pkg/domain-errors"
)

// CreateTenantRequest is the operator input for provisioning.
type CreateTenantRequest struct {
	Name           string         `json:"name" validate:"required,min=2,max=255"`
	Slug           string         `json:"slug" validate:"required,min=2,max=56"`
	AdminEmail     string         `json:"admin_email" validate:"required,email"`
	AdminFirstName string         `json:"admin_first_name" validate:"required,max=100"`
	AdminLastName  string         `json:"admin_last_name" validate:"required,max=100"`
	AdminPassword  string         `json:"admin_password" validate:"required,min=8,max=128"`
	Settings       map[string]any `json:"settings,omitempty"`
}

func (r *CreateTenantRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Slug = strings.ToLower(strings.TrimSpace(r.Slug))
	r.AdminEmail = strings.ToLower(strings.TrimSpace(r.AdminEmail))
	r.AdminFirstName = strings.TrimSpace(r.AdminFirstName)
	r.AdminLastName = strings.TrimSpace(r.AdminLastName)
}

func (r *CreateTenantRequest) Validate() error {
	return ValidateSlug(r.Slug)
}

// UpdateTenantRequest changes mutable attributes. Nil fields are left as is.
type UpdateTenantRequest struct {
	Name     *string        `json:"name,omitempty" validate:"omitempty,min=2,max=255"`
	Settings map[string]any `json:"settings,omitempty"`
}

func (r *UpdateTenantRequest) Normalize() {
	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		r.Name = &trimmed
	}
}

func (r *UpdateTenantRequest) Validate() error {
	if r.Name == nil && r.Settings == nil {
		return dErrors.New(dErrors.CodeValidation, "nothing to update")
	}
	return nil
}

type SuspendTenantRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (r *SuspendTenantRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}
