package models

import (
	"time"

	id "taskhub/pkg/domain"
)

// Member is a tenant-local user record. It mirrors an identity provider
// account and lives in the tenant's partition.
type Member struct {
	ID        id.MemberID
	IdPUserID string
	Email     string
	FirstName string
	LastName  string
	Role      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	MemberStatusActive   = "active"
	MemberStatusInactive = "inactive"
)

// MemberUpdate carries the locally editable attributes. Nil fields are left
// as they are.
type MemberUpdate struct {
	FirstName *string
	LastName  *string
	Status    *string
}

type MemberResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberListResponse struct {
	Data   []MemberResponse `json:"data"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// MeResponse describes the authenticated caller.
type MeResponse struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name,omitempty"`
	Roles       []string `json:"roles"`
	TenantID    string   `json:"tenant_id"`
	Realm       string   `json:"realm"`
}

func ToMemberResponse(m *Member) MemberResponse {
	return MemberResponse{
		ID:        m.ID.String(),
		Email:     m.Email,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Role:      m.Role,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
}
