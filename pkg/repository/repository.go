// Package repository runs validated read requests against a store and
// orchestrates writes: validate, find or build the entity, persist, attach
// relations and wrap the outcome in a Response.
package repository

import (
	"context"

	"github.com/edgeflare/pgrepo/pkg/events"
	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/query"
	"github.com/edgeflare/pgrepo/pkg/store"
	"github.com/edgeflare/pgrepo/pkg/validation"
	"go.uber.org/zap"
)

// Default page size bounds for the paginate parameter.
const (
	DefaultPaginateLower  = 5
	DefaultPaginateHigher = 1000
)

// Request is everything a repository operation reads from the caller.
type Request struct {
	Params query.Params
	// Attributes are entity field values. Only fillable ones are written.
	Attributes map[string]any
	// Relations maps a relation name to the primary key of the entity to link.
	Relations map[string]any
}

// Validator approves write payloads before anything is persisted.
type Validator interface {
	ValidateStore(ctx context.Context, req *Request) validation.Result
	ValidateUpdate(ctx context.Context, req *Request) validation.Result
}

// Rules is a Validator checking request attributes against per-field rules.
type Rules struct {
	Store  map[string]string
	Update map[string]string
}

func (r Rules) ValidateStore(_ context.Context, req *Request) validation.Result {
	return validation.Check(req.Attributes, r.Store)
}

func (r Rules) ValidateUpdate(_ context.Context, req *Request) validation.Result {
	return validation.Check(req.Attributes, r.Update)
}

// Repository serves one entity type.
type Repository struct {
	store     store.Store
	t         *model.Type
	validator Validator
	logger    *zap.Logger
	publisher events.Publisher
	lower     int
	higher    int
}

// Option configures a Repository.
type Option func(*Repository)

// WithValidator sets the write validator. Without one every write is accepted.
func WithValidator(v Validator) Option {
	return func(r *Repository) {
		r.validator = v
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// WithPublisher announces every successful write on p. A failed publish is
// logged and does not change the response.
func WithPublisher(p events.Publisher) Option {
	return func(r *Repository) {
		r.publisher = p
	}
}

// WithPaginateLimits sets the accepted page size range. Out of range page
// sizes fall back to lower.
func WithPaginateLimits(lower, higher int) Option {
	return func(r *Repository) {
		r.lower, r.higher = lower, higher
	}
}

// New returns a Repository for t backed by s.
func New(s store.Store, t *model.Type, opts ...Option) *Repository {
	r := &Repository{
		store:     s,
		t:         t,
		validator: Rules{},
		logger:    zap.NewNop(),
		lower:     DefaultPaginateLower,
		higher:    DefaultPaginateHigher,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Type returns the entity type served by r.
func (r *Repository) Type() *model.Type {
	return r.t
}

func (r *Repository) logRejected(op string, report query.Report) {
	if report.Empty() {
		return
	}
	r.logger.Debug("rejected request parameters",
		zap.String("entity", r.t.Name),
		zap.String("op", op),
		zap.Strings("categories", report.Categories()),
	)
}

func (r *Repository) publish(ctx context.Context, op events.Operation, key any, after model.Entity) {
	if r.publisher == nil {
		return
	}
	e := events.New(r.t, op, key, after)
	if err := r.publisher.Publish(ctx, e); err != nil {
		r.logger.Warn("publishing write event failed",
			zap.String("entity", r.t.Name),
			zap.String("op", string(op)),
			zap.String("event_id", e.ID),
			zap.Error(err),
		)
	}
}
