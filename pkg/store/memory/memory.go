// Package memory is an in-process store.Store. It evaluates model queries over
// maps held in memory and is used by tests and by `pgrepo serve --memory`.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/store"
)

var _ store.Store = (*Store)(nil)

type table struct {
	rows []model.Entity
	next int64
}

// Store keeps one table per entity type plus pivot tables for belongsToMany
// relations. Numeric primary keys are assigned from a per-table counter.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	pivots map[string][]model.Entity
	writes int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tables: make(map[string]*table),
		pivots: make(map[string][]model.Entity),
	}
}

// Seed inserts rows into the table of t as they are. Rows without a primary
// key get the next free one.
func (s *Store) Seed(t *model.Type, rows ...model.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.insert(t, row)
	}
}

// SeedPivot inserts link rows into a pivot table.
func (s *Store) SeedPivot(pivot string, rows ...model.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.pivots[pivot] = append(s.pivots[pivot], maps.Clone(row))
	}
}

// Load seeds every type of reg from data keyed by type name. Keys naming a
// relation pivot table are loaded as pivot rows.
func (s *Store) Load(reg *model.Registry, data map[string][]model.Entity) error {
	pivots := map[string]bool{}
	for _, name := range reg.Names() {
		t, _ := reg.Get(name)
		for _, rel := range t.Relations {
			if rel.Pivot != "" {
				pivots[rel.Pivot] = true
			}
		}
	}

	for _, name := range slices.Sorted(maps.Keys(data)) {
		if t, ok := reg.Get(name); ok {
			s.Seed(t, data[name]...)
			continue
		}
		if pivots[name] {
			s.SeedPivot(name, data[name]...)
			continue
		}
		return fmt.Errorf("memory: %q is neither an entity type nor a pivot table", name)
	}
	return nil
}

// Writes returns how many write calls the store has received.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *Store) Get(_ context.Context, q *model.Query) ([]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.sorted(q.Type, s.match(q), q.Orders)
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return s.present(q, rows), nil
}

func (s *Store) Paginate(_ context.Context, q *model.Query, perPage, page int) (*store.Page, error) {
	if perPage < 1 {
		return nil, fmt.Errorf("memory: invalid page size %d", perPage)
	}
	if page < 1 {
		page = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.sorted(q.Type, s.match(q), q.Orders)
	total := len(rows)
	start := min(store.Offset(perPage, page), total)
	end := min(start+perPage, total)
	return store.NewPage(s.present(q, rows[start:end]), perPage, page, total), nil
}

func (s *Store) First(ctx context.Context, q *model.Query) (model.Entity, error) {
	limited := *q
	limited.Limit = 1
	rows, err := s.Get(ctx, &limited)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) Find(_ context.Context, t *model.Type, id any) (model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.index(t, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	return maps.Clone(s.rows(t)[i]), nil
}

func (s *Store) Insert(_ context.Context, t *model.Type, attrs map[string]any) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	return maps.Clone(s.insert(t, attrs)), nil
}

func (s *Store) Update(_ context.Context, t *model.Type, id any, attrs map[string]any) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	i := s.index(t, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	row := s.table(t).rows[i]
	maps.Copy(row, attrs)
	return maps.Clone(row), nil
}

func (s *Store) Delete(_ context.Context, t *model.Type, id any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	i := s.index(t, id)
	if i < 0 {
		return store.ErrNotFound
	}
	tbl := s.table(t)
	tbl.rows = slices.Delete(tbl.rows, i, i+1)
	return nil
}

func (s *Store) SaveRelation(_ context.Context, t *model.Type, parent model.Entity, rel *model.Relation, related model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	return s.link(t, parent, rel, related, false)
}

func (s *Store) AttachRelation(_ context.Context, t *model.Type, parent model.Entity, rel *model.Relation, related model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	return s.link(t, parent, rel, related, true)
}

func (s *Store) link(t *model.Type, parent model.Entity, rel *model.Relation, related model.Entity, skipExisting bool) error {
	target := rel.TargetType()
	parentID, relatedID := t.ID(parent), target.ID(related)

	switch rel.Kind {
	case model.BelongsTo:
		i := s.index(t, parentID)
		if i < 0 {
			return store.ErrNotFound
		}
		s.table(t).rows[i][rel.ForeignKey] = relatedID
	case model.HasMany:
		i := s.index(target, relatedID)
		if i < 0 {
			return store.ErrNotFound
		}
		s.table(target).rows[i][rel.ForeignKey] = parentID
	case model.BelongsToMany:
		if skipExisting && s.linked(rel, parentID, relatedID) {
			return nil
		}
		s.pivots[rel.Pivot] = append(s.pivots[rel.Pivot], model.Entity{
			rel.ForeignKey: parentID,
			rel.RelatedKey: relatedID,
		})
	default:
		return fmt.Errorf("memory: unsupported relation kind %q", rel.Kind)
	}
	return nil
}

func (s *Store) linked(rel *model.Relation, parentID, relatedID any) bool {
	return slices.ContainsFunc(s.pivots[rel.Pivot], func(p model.Entity) bool {
		return sameKey(p[rel.ForeignKey], parentID) && sameKey(p[rel.RelatedKey], relatedID)
	})
}

func tableName(t *model.Type) string {
	return t.SchemaName() + "." + t.TableName()
}

// table returns the table of t, creating it. Callers must hold the write lock.
func (s *Store) table(t *model.Type) *table {
	tbl, ok := s.tables[tableName(t)]
	if !ok {
		tbl = &table{next: 1}
		s.tables[tableName(t)] = tbl
	}
	return tbl
}

// rows returns the stored rows of t without creating its table.
func (s *Store) rows(t *model.Type) []model.Entity {
	if tbl, ok := s.tables[tableName(t)]; ok {
		return tbl.rows
	}
	return nil
}

func (s *Store) insert(t *model.Type, attrs map[string]any) model.Entity {
	tbl := s.table(t)
	row := maps.Clone(model.Entity(attrs))
	if row == nil {
		row = model.Entity{}
	}

	if id, ok := row[t.Key()]; ok && id != nil {
		if n, ok := asInt(id); ok && n >= tbl.next {
			tbl.next = n + 1
		}
	} else {
		row[t.Key()] = tbl.next
		tbl.next++
	}
	tbl.rows = append(tbl.rows, row)
	return row
}

func (s *Store) index(t *model.Type, id any) int {
	return slices.IndexFunc(s.rows(t), func(row model.Entity) bool {
		return sameKey(t.ID(row), id)
	})
}

// related returns the stored rows of rel for the owner row.
func (s *Store) related(t *model.Type, row model.Entity, rel *model.Relation) []model.Entity {
	target := rel.TargetType()
	rows := s.rows(target)

	var out []model.Entity
	switch rel.Kind {
	case model.BelongsTo:
		fk := row[rel.ForeignKey]
		for _, r := range rows {
			if sameKey(target.ID(r), fk) {
				out = append(out, r)
			}
		}
	case model.HasMany:
		id := t.ID(row)
		for _, r := range rows {
			if sameKey(r[rel.ForeignKey], id) {
				out = append(out, r)
			}
		}
	case model.BelongsToMany:
		id := t.ID(row)
		for _, p := range s.pivots[rel.Pivot] {
			if !sameKey(p[rel.ForeignKey], id) {
				continue
			}
			for _, r := range rows {
				if sameKey(target.ID(r), p[rel.RelatedKey]) {
					out = append(out, r)
				}
			}
		}
	}
	return out
}

func (s *Store) match(q *model.Query) []model.Entity {
	key, hasKey := q.Key()

	var out []model.Entity
	for _, row := range s.rows(q.Type) {
		if hasKey && !sameKey(q.Type.ID(row), key) {
			continue
		}
		if s.satisfies(q.Type, row, q.Conditions) {
			out = append(out, row)
		}
	}
	return out
}

func (s *Store) satisfies(t *model.Type, row model.Entity, conds []model.Condition) bool {
	for _, c := range conds {
		if c.Relation == "" {
			if !model.Match(row[c.Field], c.Op, c.Value) {
				return false
			}
			continue
		}

		rel, ok := t.Relation(c.Relation)
		if !ok {
			return false
		}
		if !slices.ContainsFunc(s.related(t, row, rel), func(r model.Entity) bool {
			return model.Match(r[c.Field], c.Op, c.Value)
		}) {
			return false
		}
	}
	return true
}

// sorted returns rows ordered by orders. Nil values sort after everything else
// in ascending order.
func (s *Store) sorted(t *model.Type, rows []model.Entity, orders []model.Order) []model.Entity {
	if len(orders) == 0 {
		return rows
	}
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b model.Entity) int {
		for _, o := range orders {
			c := compareNullsLast(s.orderValue(t, a, o.Field), s.orderValue(t, b, o.Field))
			if o.Direction == "desc" {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return out
}

func (s *Store) orderValue(t *model.Type, row model.Entity, field string) any {
	relName, relField, ok := strings.Cut(field, ".")
	if !ok {
		return row[field]
	}
	rel, ok := t.Relation(relName)
	if !ok || !rel.Singular() {
		return nil
	}
	if related := s.related(t, row, rel); len(related) > 0 {
		return related[0][relField]
	}
	return nil
}

// present copies rows and decorates them with eager loads and counts.
func (s *Store) present(q *model.Query, rows []model.Entity) []model.Entity {
	out := make([]model.Entity, 0, len(rows))
	for _, row := range rows {
		e := maps.Clone(row)
		for _, name := range q.With {
			rel, ok := q.Type.Relation(name)
			if !ok {
				continue
			}
			related := s.related(q.Type, row, rel)
			if rel.Singular() {
				if len(related) > 0 {
					e[name] = maps.Clone(related[0])
				} else {
					e[name] = nil
				}
				continue
			}
			list := make([]model.Entity, 0, len(related))
			for _, r := range related {
				list = append(list, maps.Clone(r))
			}
			e[name] = list
		}
		for _, name := range q.WithCount {
			if rel, ok := q.Type.Relation(name); ok {
				e[rel.CountKey()] = len(s.related(q.Type, row, rel))
			}
		}
		out = append(out, e)
	}
	return out
}

func compareNullsLast(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c, _ := model.Compare(a, b)
	return c
}

func sameKey(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return model.KeyString(a) == model.KeyString(b)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
