// Package postgres implements store.Store on PostgreSQL through pgx.
//
// Every model.Query becomes a single SELECT on the entity table (aliased t):
// relation conditions are correlated EXISTS subqueries, relation counts are
// count(*) subqueries in the select list and "relation.field" orderings are
// scalar subqueries. Included relations are loaded with one follow-up query
// per relation and stitched onto the owner rows.
package postgres

import (
	"context"
	"fmt"
	"maps"

	pg "github.com/edgeflare/pgrepo/pkg/pgx"
	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

var _ store.Store = (*Store)(nil)

// Store runs queries on a pool, connection or transaction.
type Store struct {
	conn   pg.Conn
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger logs every statement at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a Store on conn.
func New(conn pg.Conn, opts ...Option) *Store {
	s := &Store{conn: conn, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) query(ctx context.Context, st *statement) ([]model.Entity, error) {
	s.logger.Debug("query", zap.String("sql", st.String()), zap.Int("args", len(st.args)))

	rows, err := s.conn.Query(ctx, st.String(), st.args...)
	if err != nil {
		return nil, err
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	out := make([]model.Entity, len(records))
	for i, m := range records {
		out[i] = normalize(m)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, q *model.Query) ([]model.Entity, error) {
	rows, err := s.query(ctx, selectStatement(q, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Type.Name, err)
	}
	if err := s.include(ctx, q, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) Paginate(ctx context.Context, q *model.Query, perPage, page int) (*store.Page, error) {
	if perPage < 1 {
		return nil, fmt.Errorf("postgres: invalid page size %d", perPage)
	}
	if page < 1 {
		page = 1
	}

	count := countStatement(q)
	s.logger.Debug("query", zap.String("sql", count.String()), zap.Int("args", len(count.args)))
	var total int64
	if err := s.conn.QueryRow(ctx, count.String(), count.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count %s: %w", q.Type.Name, err)
	}

	rows, err := s.query(ctx, selectStatement(q, perPage, store.Offset(perPage, page)))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Type.Name, err)
	}
	if err := s.include(ctx, q, rows); err != nil {
		return nil, err
	}
	return store.NewPage(rows, perPage, page, int(total)), nil
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

func (s *Store) Find(ctx context.Context, t *model.Type, id any) (model.Entity, error) {
	return s.First(ctx, model.NewQuery(t).WhereKey(id))
}

func (s *Store) Insert(ctx context.Context, t *model.Type, attrs map[string]any) (model.Entity, error) {
	rows, err := s.query(ctx, insertStatement(t, attrs))
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", t.Name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s: no row returned", t.Name)
	}
	return rows[0], nil
}

func (s *Store) Update(ctx context.Context, t *model.Type, id any, attrs map[string]any) (model.Entity, error) {
	if len(attrs) == 0 {
		return s.Find(ctx, t, id)
	}
	rows, err := s.query(ctx, updateStatement(t, id, attrs))
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", t.Name, err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) Delete(ctx context.Context, t *model.Type, id any) error {
	st := deleteStatement(t, id)
	s.logger.Debug("exec", zap.String("sql", st.String()))
	tag, err := s.conn.Exec(ctx, st.String(), st.args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveRelation(ctx context.Context, t *model.Type, parent model.Entity, rel *model.Relation, related model.Entity) error {
	return s.link(ctx, t, parent, rel, related, false)
}

func (s *Store) AttachRelation(ctx context.Context, t *model.Type, parent model.Entity, rel *model.Relation, related model.Entity) error {
	return s.link(ctx, t, parent, rel, related, true)
}

func (s *Store) link(ctx context.Context, t *model.Type, parent model.Entity, rel *model.Relation, related model.Entity, skipExisting bool) error {
	st := linkStatement(t, t.ID(parent), rel, rel.TargetType().ID(related), skipExisting)
	s.logger.Debug("exec", zap.String("sql", st.String()))
	if _, err := s.conn.Exec(ctx, st.String(), st.args...); err != nil {
		return fmt.Errorf("link %s.%s: %w", t.Name, rel.Name, err)
	}
	return nil
}

// include loads every relation of q.With and stores it on the owner rows.
func (s *Store) include(ctx context.Context, q *model.Query, rows []model.Entity) error {
	if len(rows) == 0 {
		return nil
	}

	for _, name := range q.With {
		rel, ok := q.Type.Relation(name)
		if !ok {
			continue
		}

		keyOf := func(e model.Entity) any { return q.Type.ID(e) }
		if rel.Kind == model.BelongsTo {
			keyOf = func(e model.Entity) any { return e[rel.ForeignKey] }
		}

		var keys []any
		seen := map[string]bool{}
		for _, e := range rows {
			k := keyOf(e)
			if k == nil || seen[model.KeyString(k)] {
				continue
			}
			seen[model.KeyString(k)] = true
			keys = append(keys, k)
		}

		grouped := map[string][]model.Entity{}
		if len(keys) > 0 {
			related, err := s.query(ctx, eagerStatement(q.Type, rel, keys))
			if err != nil {
				return fmt.Errorf("load %s.%s: %w", q.Type.Name, rel.Name, err)
			}
			for _, r := range related {
				owner := model.KeyString(r[ownerColumn])
				delete(r, ownerColumn)
				grouped[owner] = append(grouped[owner], r)
			}
		}

		for _, e := range rows {
			var matched []model.Entity
			if k := keyOf(e); k != nil {
				matched = grouped[model.KeyString(k)]
			}
			if rel.Singular() {
				if len(matched) > 0 {
					e[name] = maps.Clone(matched[0])
				} else {
					e[name] = nil
				}
				continue
			}
			list := make([]model.Entity, 0, len(matched))
			for _, m := range matched {
				list = append(list, maps.Clone(m))
			}
			e[name] = list
		}
	}
	return nil
}

// normalize converts pgx driver values into plain JSON-friendly Go values.
func normalize(row map[string]any) model.Entity {
	e := make(model.Entity, len(row))
	for k, v := range row {
		switch val := v.(type) {
		case pgtype.Numeric:
			if f, err := val.Float64Value(); err == nil && f.Valid {
				e[k] = f.Float64
			} else {
				e[k] = nil
			}
		case [16]byte:
			e[k] = uuid.UUID(val).String()
		default:
			e[k] = v
		}
	}
	return e
}
