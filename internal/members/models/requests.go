package models

import (
	"slices"
	"strings"

	dErrors "taskhub/pkg/domain-errors"
)

// CreateMemberRequest adds an account to the caller's tenant. The first role
// is the member's primary role; none means member.
type CreateMemberRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	FirstName string   `json:"first_name" validate:"required,max=100"`
	LastName  string   `json:"last_name" validate:"required,max=100"`
	Password  string   `json:"password" validate:"required,min=8,max=128"`
	Roles     []string `json:"roles,omitempty" validate:"omitempty,dive,oneof=admin manager member"`
}

func (r *CreateMemberRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Roles = normalizeRoles(r.Roles)
	if len(r.Roles) == 0 {
		r.Roles = []string{"member"}
	}
}

type UpdateMemberRequest struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,min=1,max=100"`
	Status    *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

func (r *UpdateMemberRequest) Normalize() {
	for _, f := range []*string{r.FirstName, r.LastName, r.Status} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}

func (r *UpdateMemberRequest) Validate() error {
	if r.FirstName == nil && r.LastName == nil && r.Status == nil {
		return dErrors.New(dErrors.CodeValidation, "nothing to update")
	}
	return nil
}

func (r *UpdateMemberRequest) Update() MemberUpdate {
	return MemberUpdate{FirstName: r.FirstName, LastName: r.LastName, Status: r.Status}
}

// ReplaceRolesRequest sets the member's full role list.
type ReplaceRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,oneof=admin manager member"`
}

func (r *ReplaceRolesRequest) Normalize() {
	r.Roles = normalizeRoles(r.Roles)
}

// normalizeRoles lowercases and drops duplicates, keeping first occurrences.
func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	return out
}
