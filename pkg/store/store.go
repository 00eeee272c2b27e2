// Package store defines the data store contract the repository layer runs
// against. Implementations translate a model.Query natively: see the memory and
// postgres subpackages.
package store

import (
	"context"
	"errors"
	"math"

	"github.com/edgeflare/pgrepo/pkg/model"
)

// ErrNotFound is returned when an addressed entity does not exist.
var ErrNotFound = errors.New("store: entity not found")

// Store reads and writes entities. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns every entity matching q, honouring q.Limit.
	Get(ctx context.Context, q *model.Query) ([]model.Entity, error)
	// Paginate returns one page of perPage entities. q.Limit is ignored.
	Paginate(ctx context.Context, q *model.Query, perPage, page int) (*Page, error)
	// First returns the first entity matching q or ErrNotFound.
	First(ctx context.Context, q *model.Query) (model.Entity, error)
	// Find returns the entity of type t with primary key id or ErrNotFound.
	Find(ctx context.Context, t *model.Type, id any) (model.Entity, error)

	Insert(ctx context.Context, t *model.Type, attrs map[string]any) (model.Entity, error)
	// Update changes attrs on the entity with primary key id and returns the new state.
	Update(ctx context.Context, t *model.Type, id any, attrs map[string]any) (model.Entity, error)
	Delete(ctx context.Context, t *model.Type, id any) error

	// SaveRelation persists a new association between parent and related.
	SaveRelation(ctx context.Context, t *model.Type, parent model.Entity, rel *model.Relation, related model.Entity) error
	// AttachRelation links related to parent unless they are already linked.
	AttachRelation(ctx context.Context, t *model.Type, parent model.Entity, rel *model.Relation, related model.Entity) error
}

// Page is one page of a paginated read.
type Page struct {
	Data        []model.Entity `json:"data"`
	CurrentPage int            `json:"current_page"`
	PerPage     int            `json:"per_page"`
	Total       int            `json:"total"`
	LastPage    int            `json:"last_page"`
}

// NewPage fills in the page arithmetic for data taken from a result of total entities.
func NewPage(data []model.Entity, perPage, page, total int) *Page {
	if data == nil {
		data = []model.Entity{}
	}
	last := 1
	if perPage > 0 && total > 0 {
		last = (total + perPage - 1) / perPage
	}
	return &Page{Data: data, CurrentPage: page, PerPage: perPage, Total: total, LastPage: last}
}

// Offset returns the number of entities preceding page. It saturates at
// math.MaxInt, which lies past the last page of any result.
func Offset(perPage, page int) int {
	if page < 1 || perPage < 1 {
		return 0
	}
	if page-1 > math.MaxInt/perPage {
		return math.MaxInt
	}
	return (page - 1) * perPage
}
