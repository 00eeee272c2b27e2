package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/pgx/schema"
)

// Verify checks every type of reg against the database. The table must exist
// and carry the primary key, the fillable columns and the foreign keys its
// relations rely on; a foreign key constraint, where declared, must point at
// the relation's target. Pivot tables must carry both link columns. All
// problems are returned together.
func (s *Store) Verify(ctx context.Context, reg *model.Registry) error {
	var errs []error
	for _, name := range reg.Names() {
		t, _ := reg.Get(name)
		if err := s.verifyType(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) verifyType(ctx context.Context, t *model.Type) error {
	tbl, err := schema.LoadTable(ctx, s.conn, t.SchemaName(), t.TableName())
	if err != nil {
		return err
	}

	columns := append([]string{t.Key()}, t.Fillable...)
	for _, rel := range t.Relations {
		if rel.Kind == model.BelongsTo {
			columns = append(columns, rel.ForeignKey)
		}
	}
	var errs []error
	if missing := tbl.Missing(columns...); len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%s lacks columns %s", tbl.FullName(), strings.Join(missing, ", ")))
	}
	if len(tbl.PrimaryKeys) > 0 && !slices.Contains(tbl.PrimaryKeys, t.Key()) {
		errs = append(errs, fmt.Errorf("%s primary key is %s, not %s", tbl.FullName(), strings.Join(tbl.PrimaryKeys, ", "), t.Key()))
	}

	for _, rel := range t.Relations {
		switch rel.Kind {
		case model.BelongsTo:
			fk, ok := tbl.References(rel.ForeignKey)
			if target := rel.TargetType().TableName(); ok && fk.ReferencedTable != target {
				errs = append(errs, fmt.Errorf("relation %s: %s.%s references %s, not %s", rel.Name, tbl.FullName(), rel.ForeignKey, fk.ReferencedTable, target))
			}
		case model.HasMany:
			target := rel.TargetType()
			related, err := schema.LoadTable(ctx, s.conn, target.SchemaName(), target.TableName())
			if err != nil {
				errs = append(errs, fmt.Errorf("relation %s: %w", rel.Name, err))
				continue
			}
			if !related.HasColumn(rel.ForeignKey) {
				errs = append(errs, fmt.Errorf("relation %s: %s lacks column %s", rel.Name, related.FullName(), rel.ForeignKey))
			}
		case model.BelongsToMany:
			pivot, err := schema.LoadTable(ctx, s.conn, t.SchemaName(), rel.Pivot)
			if err != nil {
				errs = append(errs, fmt.Errorf("relation %s: %w", rel.Name, err))
				continue
			}
			if missing := pivot.Missing(rel.ForeignKey, rel.RelatedKey); len(missing) > 0 {
				errs = append(errs, fmt.Errorf("relation %s: %s lacks columns %s", rel.Name, pivot.FullName(), strings.Join(missing, ", ")))
			}
		}
	}
	return errors.Join(errs...)
}
