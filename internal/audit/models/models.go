package models

import (
	"time"

	id "taskhub/pkg/domain"
)

// Action is the audit taxonomy.
type Action string

const (
	ActionAuthFailure  Action = "AUTH_FAILURE"
	ActionAccessDenied Action = "ACCESS_DENIED"

	ActionDataRead   Action = "DATA_READ"
	ActionDataCreate Action = "DATA_CREATE"
	ActionDataUpdate Action = "DATA_UPDATE"
	ActionDataDelete Action = "DATA_DELETE"

	ActionTenantCreated      Action = "TENANT_CREATED"
	ActionTenantUpdated      Action = "TENANT_UPDATED"
	ActionTenantSuspended    Action = "TENANT_SUSPENDED"
	ActionTenantReactivated  Action = "TENANT_REACTIVATED"
	ActionTenantDeleted      Action = "TENANT_DELETED"
	ActionProvisioningFailed Action = "PROVISIONING_FAILED"
)

var knownActions = map[Action]struct{}{
	ActionAuthFailure: {}, ActionAccessDenied: {},
	ActionDataRead: {}, ActionDataCreate: {}, ActionDataUpdate: {}, ActionDataDelete: {},
	ActionTenantCreated: {}, ActionTenantUpdated: {}, ActionTenantSuspended: {},
	ActionTenantReactivated: {}, ActionTenantDeleted: {}, ActionProvisioningFailed: {},
}

func (a Action) IsValid() bool {
	_, ok := knownActions[a]
	return ok
}

// Resource types used in entries.
const (
	ResourceTenant = "tenant"
	ResourceUser   = "user"
	ResourceToken  = "token"
	ResourceAudit  = "audit"
)

// Entry is one append-only audit record. TenantID is nil for events that
// precede tenant resolution.
type Entry struct {
	ID           id.AuditEntryID `json:"id"`
	TenantID     *id.TenantID    `json:"tenant_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	Action       Action          `json:"action"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Details      map[string]any  `json:"details,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TenantRef is a convenience for building entries.
func TenantRef(tenantID id.TenantID) *id.TenantID {
	if tenantID.IsNil() {
		return nil
	}
	return &tenantID
}

// Filter narrows a tenant-scoped query. Zero values are ignored.
type Filter struct {
	UserID       string
	Action       Action
	ResourceType string
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Normalize clamps paging to the allowed window.
func (f *Filter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Matches applies the filter to one entry; used by the in-memory store.
func (f Filter) Matches(e *Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Summary aggregates a tenant's entries over a date range.
type Summary struct {
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	Total         int            `json:"total"`
	ByAction      map[Action]int `json:"by_action"`
	ByUser        map[string]int `json:"by_user"`
	AccessDenials int            `json:"access_denials"`
}

func NewSummary(from, to time.Time) *Summary {
	return &Summary{
		From:     from,
		To:       to,
		ByAction: map[Action]int{},
		ByUser:   map[string]int{},
	}
}

// Add folds n entries with the given action and user into the summary.
func (s *Summary) Add(action Action, userID string, n int) {
	s.Total += n
	s.ByAction[action] += n
	if userID != "" {
		s.ByUser[userID] += n
	}
	if action == ActionAccessDenied {
		s.AccessDenials += n
	}
}
