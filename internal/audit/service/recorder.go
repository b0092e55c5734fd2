// Package service records and reads the audit trail. Recording never fails
// the caller: a lost entry is logged and counted, the primary operation
// proceeds.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mssola/useragent"

	auditmetrics "taskhub/internal/audit/metrics"
	"taskhub/internal/audit/models"
	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
	"taskhub/pkg/platform/privacy"
	"taskhub/pkg/requestcontext"
)

type Store interface {
	Append(ctx context.Context, entry models.Entry) error
	Query(ctx context.Context, tenantID id.TenantID, filter models.Filter) ([]models.Entry, int, error)
	Summary(ctx context.Context, tenantID id.TenantID, from, to time.Time) (*models.Summary, error)
}

// Forwarder ships persisted entries to an external stream.
type Forwarder interface {
	Forward(ctx context.Context, entry models.Entry) error
}

const persistTimeout = 5 * time.Second

type Recorder struct {
	store     Store
	forwarder Forwarder
	logger    *slog.Logger
	metrics   *auditmetrics.Metrics
	events    chan models.Entry
	done      chan struct{}
	async     bool
	now       func() time.Time
}

type Option func(*Recorder)

// WithAsyncBuffer queues entries and persists them on a background
// goroutine. When the buffer is full new entries are dropped.
func WithAsyncBuffer(size int) Option {
	return func(r *Recorder) {
		if size > 0 {
			r.events = make(chan models.Entry, size)
			r.async = true
		}
	}
}

func WithForwarder(f Forwarder) Option {
	return func(r *Recorder) {
		r.forwarder = f
	}
}

func WithMetrics(m *auditmetrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.async {
		r.done = make(chan struct{})
		go r.processEvents()
	}
	return r
}

// Record completes entry from the request context and persists it.
func (r *Recorder) Record(ctx context.Context, entry models.Entry) {
	if !entry.Action.IsValid() {
		r.logger.ErrorContext(ctx, "audit entry with unknown action dropped", "action", entry.Action)
		return
	}
	r.enrich(ctx, &entry)

	if !r.async {
		r.persist(context.WithoutCancel(ctx), entry)
		return
	}
	select {
	case r.events <- entry:
		r.metrics.SetQueueDepth(len(r.events))
	default:
		r.metrics.IncrementDropped()
		r.logger.WarnContext(ctx, "audit buffer full, entry dropped",
			"action", entry.Action,
			"user_id", entry.UserID,
		)
	}
}

// Close drains queued entries. Record must not be called afterwards.
func (r *Recorder) Close() {
	if r.async {
		close(r.events)
		<-r.done
	}
}

func (r *Recorder) processEvents() {
	defer close(r.done)
	for entry := range r.events {
		r.metrics.SetQueueDepth(len(r.events))
		r.persist(context.Background(), entry)
	}
}

func (r *Recorder) persist(ctx context.Context, entry models.Entry) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	start := time.Now()
	err := r.store.Append(ctx, entry)
	r.metrics.ObservePersist(string(entry.Action), start, err)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to persist audit entry",
			"error", err,
			"action", entry.Action,
			"user_id", entry.UserID,
			"ip", privacy.AnonymizeIP(entry.IPAddress),
		)
		return
	}
	if r.forwarder != nil {
		if err := r.forwarder.Forward(ctx, entry); err != nil {
			r.logger.WarnContext(ctx, "failed to forward audit entry", "error", err, "action", entry.Action)
		}
	}
}

func (r *Recorder) enrich(ctx context.Context, e *models.Entry) {
	if e.ID.IsNil() {
		e.ID = id.NewAuditEntryID()
	}
	if e.CreatedAt.IsZero() {
		if t := requestcontext.Now(ctx); !t.IsZero() {
			e.CreatedAt = t
		} else {
			e.CreatedAt = r.now().UTC()
		}
	}
	if e.IPAddress == "" {
		e.IPAddress = requestcontext.ClientIP(ctx)
	}
	if e.UserAgent == "" {
		e.UserAgent = requestcontext.UserAgent(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if client := describeClient(e.UserAgent); client != "" {
		details := make(map[string]any, len(e.Details)+1)
		for k, v := range e.Details {
			details[k] = v
		}
		details["client"] = client
		e.Details = details
	}
}

// describeClient reduces a User-Agent header to "Browser on OS".
func describeClient(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}
	browser, _ := ua.Browser()
	os := ua.OS()
	if browser == "" && os == "" {
		return ""
	}
	if browser == "" {
		browser = "unknown client"
	}
	if os == "" {
		return browser
	}
	return strings.TrimSpace(browser + " on " + os)
}

// Query returns one page of the tenant's entries. The tenant id is required.
func (r *Recorder) Query(ctx context.Context, tenantID id.TenantID, filter models.Filter) (*models.Page, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, dErrors.New(dErrors.CodeValidation, "from must be before to")
	}
	filter.Normalize()
	entries, total, err := r.store.Query(ctx, tenantID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit log")
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	return &models.Page{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Summary aggregates the tenant's entries in [from, to).
func (r *Recorder) Summary(ctx context.Context, tenantID id.TenantID, from, to time.Time) (*models.Summary, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, dErrors.New(dErrors.CodeValidation, "from must be before to")
	}
	sum, err := r.store.Summary(ctx, tenantID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to summarize audit log")
	}
	return sum, nil
}
