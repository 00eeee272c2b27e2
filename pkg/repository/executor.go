package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/query"
	"github.com/edgeflare/pgrepo/pkg/store"
	"go.uber.org/zap"
)

// Collection is the result of List: either every matching entity or one page.
type Collection struct {
	Items []model.Entity
	// Page carries the pagination metadata of a paginated result.
	Page *store.Page
}

// MarshalJSON renders a plain list, or the page envelope around Items.
func (c *Collection) MarshalJSON() ([]byte, error) {
	items := c.Items
	if items == nil {
		items = []model.Entity{}
	}
	if c.Page == nil {
		return json.Marshal(items)
	}
	page := *c.Page
	page.Data = items
	return json.Marshal(page)
}

// List runs a collection read. Rejected parameters are reported and skipped;
// the returned error is reserved for store failures.
func (r *Repository) List(ctx context.Context, p query.Params) (*Collection, query.Report, error) {
	var report query.Report
	spec := query.NewBuilder(r.t).Build(p, &report)
	q := spec.Apply(model.NewQuery(r.t))

	coll := &Collection{}
	if perPage, ok := r.pageSize(p.Paginate); ok {
		page, err := r.store.Paginate(ctx, q, perPage, pageNumber(p.Page))
		if err != nil {
			return nil, report, r.storeError("paginate", err)
		}
		coll.Items, coll.Page = page.Data, page
	} else {
		items, err := r.store.Get(ctx, q)
		if err != nil {
			return nil, report, r.storeError("get", err)
		}
		coll.Items = items
	}

	if spec.RelationOrder != nil {
		coll.Items = r.sortByRelation(coll.Items, spec.RelationOrder, &report)
	}

	r.logRejected("list", report)
	return coll, report, nil
}

// FindOne reads the entity with primary key id, honouring with, where and
// orderBy. It returns a nil entity when nothing matches.
func (r *Repository) FindOne(ctx context.Context, p query.Params, id any) (model.Entity, query.Report, error) {
	var report query.Report
	spec := query.NewBuilder(r.t).BuildOne(p, &report)
	q := spec.Apply(model.NewQuery(r.t)).WhereKey(id)

	e, err := r.store.First(ctx, q)
	r.logRejected("find", report)
	if errors.Is(err, store.ErrNotFound) {
		return nil, report, nil
	}
	if err != nil {
		return nil, report, r.storeError("first", err)
	}
	return e, report, nil
}

// pageSize interprets the paginate parameter. A non-numeric value means no
// pagination. A numeric value that is not an integer within the configured
// range falls back to the lower bound.
func (r *Repository) pageSize(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < r.lower || n > r.higher {
		return r.lower, true
	}
	return n, true
}

func pageNumber(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// sortByRelation returns items stably ordered by a field of their loaded
// belongsTo relation. When any item lacks the value the order is left as is
// and the affected keys are reported.
func (r *Repository) sortByRelation(items []model.Entity, o *query.RelationOrder, report *query.Report) []model.Entity {
	value := func(e model.Entity) any {
		related, _ := e[o.Relation].(model.Entity)
		if related == nil {
			return nil
		}
		return related[o.Field]
	}

	var missing []any
	for _, e := range items {
		if value(e) == nil {
			missing = append(missing, r.t.ID(e))
		}
	}
	if len(missing) > 0 {
		report.Add(query.CategoryOrderByRelation, query.Detail{"relation_value_missing": missing})
		return items
	}

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b model.Entity) int {
		c, _ := model.Compare(value(a), value(b))
		if o.Direction == query.DirectionDesc {
			return -c
		}
		return c
	})
	return sorted
}

func (r *Repository) storeError(op string, err error) error {
	r.logger.Error("store failure", zap.String("entity", r.t.Name), zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s %s: %w", op, r.t.Name, err)
}
