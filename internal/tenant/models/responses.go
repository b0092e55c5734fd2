package models

import "time"

// TenantResponse is the operator view. The partition name is never exposed.
type TenantResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Realm     string         `json:"realm"`
	Status    TenantStatus   `json:"status"`
	Settings  map[string]any `json:"settings"`
	UserCount *int           `json:"user_count,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PublicTenantResponse is returned to unauthenticated login pages.
type PublicTenantResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Realm    string         `json:"realm"`
	Status   TenantStatus   `json:"status"`
	Settings map[string]any `json:"settings"`
}

type TenantListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func ToTenantResponse(t *Tenant) TenantResponse {
	return TenantResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		Slug:      t.Slug,
		Realm:     t.RealmName,
		Status:    t.Status,
		Settings:  t.Settings,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func ToSummaryResponse(s *TenantSummary) TenantResponse {
	resp := ToTenantResponse(&s.Tenant)
	count := s.UserCount
	resp.UserCount = &count
	return resp
}

func ToPublicResponse(t *Tenant, allow []string) PublicTenantResponse {
	return PublicTenantResponse{
		ID:       t.ID.String(),
		Name:     t.Name,
		Slug:     t.Slug,
		Realm:    t.RealmName,
		Status:   t.Status,
		Settings: t.PublicSettings(allow),
	}
}
