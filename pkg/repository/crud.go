package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"

	"github.com/edgeflare/pgrepo/pkg/events"
	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/query"
	"github.com/edgeflare/pgrepo/pkg/store"
)

// Error keys of write operations.
const (
	ErrCouldNotStore  = "could_not_store_model"
	ErrCouldNotUpdate = "could_not_update_model"
	ErrCouldNotFind   = "could_not_find_model"
	ErrRelations      = "relation_errors"
)

// Response is the uniform envelope of every operation. Success or failure is
// told by Errors being empty; Status is 200 unless stated otherwise.
type Response struct {
	Result any          `json:"result"`
	Errors query.Report `json:"errors"`
	Status int          `json:"-"`
}

func respond(result any, report query.Report) *Response {
	return &Response{Result: result, Errors: report, Status: http.StatusOK}
}

// Index lists entities.
func (r *Repository) Index(ctx context.Context, req *Request) (*Response, error) {
	coll, report, err := r.List(ctx, req.Params)
	if err != nil {
		return nil, err
	}
	return respond(coll, report), nil
}

// Show reads one entity. A missing entity answers 404.
func (r *Repository) Show(ctx context.Context, req *Request, id any) (*Response, error) {
	e, report, err := r.FindOne(ctx, req.Params, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		report.Add(ErrCouldNotFind, id)
		resp := respond(nil, report)
		resp.Status = http.StatusNotFound
		return resp, nil
	}
	return respond(e, report), nil
}

// Store validates and creates an entity, then saves the requested relations.
// A failing relation is reported without undoing the create.
func (r *Repository) Store(ctx context.Context, req *Request) (*Response, error) {
	var report query.Report
	if res := r.validator.ValidateStore(ctx, req); res.Fails() {
		report.Add(ErrCouldNotStore, res)
		return respond(nil, report), nil
	}

	created, err := r.store.Insert(ctx, r.t, r.t.Fill(req.Attributes))
	if err != nil {
		return nil, r.storeError("insert", err)
	}

	e, err := r.relate(ctx, created, req.Relations, r.store.SaveRelation, &report)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, events.OpCreate, r.t.ID(e), e)
	return respond(e, report), nil
}

// Update validates and changes an existing entity, then attaches the
// requested relations. Nothing is written when the entity does not exist.
func (r *Repository) Update(ctx context.Context, req *Request, id any) (*Response, error) {
	var report query.Report
	if _, err := r.store.Find(ctx, r.t, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			report.Add(ErrCouldNotFind, id)
			return respond(nil, report), nil
		}
		return nil, r.storeError("find", err)
	}

	if res := r.validator.ValidateUpdate(ctx, req); res.Fails() {
		report.Add(ErrCouldNotUpdate, res)
		return respond(nil, report), nil
	}

	updated, err := r.store.Update(ctx, r.t, id, r.t.Fill(req.Attributes))
	if errors.Is(err, store.ErrNotFound) {
		report.Add(ErrCouldNotFind, id)
		return respond(nil, report), nil
	}
	if err != nil {
		return nil, r.storeError("update", err)
	}

	e, err := r.relate(ctx, updated, req.Relations, r.store.AttachRelation, &report)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, events.OpUpdate, r.t.ID(e), e)
	return respond(e, report), nil
}

// Destroy deletes an existing entity.
func (r *Repository) Destroy(ctx context.Context, _ *Request, id any) (*Response, error) {
	var report query.Report
	existing, err := r.store.Find(ctx, r.t, id)
	if errors.Is(err, store.ErrNotFound) {
		report.Add(ErrCouldNotFind, id)
		return respond(nil, report), nil
	}
	if err != nil {
		return nil, r.storeError("find", err)
	}

	if err := r.store.Delete(ctx, r.t, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			report.Add(ErrCouldNotFind, id)
			return respond(nil, report), nil
		}
		return nil, r.storeError("delete", err)
	}
	r.publish(ctx, events.OpDelete, r.t.ID(existing), nil)
	return respond(map[string]any{"deleted": r.t.ID(existing)}, report), nil
}

type linkFunc func(ctx context.Context, t *model.Type, parent model.Entity, rel *model.Relation, related model.Entity) error

// relate links parent to the entities named in relations, in relation name
// order, and returns parent re-read with the linked relations loaded.
func (r *Repository) relate(ctx context.Context, parent model.Entity, relations map[string]any, link linkFunc, report *query.Report) (model.Entity, error) {
	if len(relations) == 0 {
		return parent, nil
	}

	var problems, linked []string
	for _, name := range slices.Sorted(maps.Keys(relations)) {
		id := relations[name]
		rel, ok := r.t.Relation(name)
		if !ok {
			problems = append(problems, name+" is not a relation.")
			continue
		}

		related, err := r.store.Find(ctx, rel.TargetType(), id)
		if errors.Is(err, store.ErrNotFound) {
			problems = append(problems, fmt.Sprintf("%s does not have object with id %s", name, model.KeyString(id)))
			continue
		}
		if err != nil {
			return nil, r.storeError("find related", err)
		}

		if err := link(ctx, r.t, parent, rel, related); err != nil {
			return nil, r.storeError("link "+name, err)
		}
		linked = append(linked, name)
	}

	if len(problems) > 0 {
		report.Add(ErrRelations, problems)
	}
	if len(linked) == 0 {
		return parent, nil
	}

	q := model.NewQuery(r.t).WhereKey(r.t.ID(parent))
	for _, name := range linked {
		q.Include(name)
	}
	e, err := r.store.First(ctx, q)
	if err != nil {
		return nil, r.storeError("reload", err)
	}
	return e, nil
}
