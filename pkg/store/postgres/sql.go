package postgres

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/jackc/pgx/v5"
)

// Table aliases used in generated statements: t is the queried table, r a
// related table and p a pivot table.
const (
	ownerAlias   = "t"
	relatedAlias = "r"
	pivotAlias   = "p"
	ownerColumn  = "__owner"
)

// statement accumulates SQL text and its positional arguments.
type statement struct {
	sql  strings.Builder
	args []any
}

func (s *statement) write(parts ...string) *statement {
	for _, p := range parts {
		s.sql.WriteString(p)
	}
	return s
}

func (s *statement) placeholder(v any) string {
	s.args = append(s.args, v)
	return fmt.Sprintf("$%d", len(s.args))
}

func (s *statement) String() string {
	return s.sql.String()
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func column(alias, name string) string {
	return alias + "." + ident(name)
}

func tableIdentifier(t *model.Type) string {
	return pgx.Identifier{t.SchemaName(), t.TableName()}.Sanitize()
}

func pivotIdentifier(owner *model.Type, rel *model.Relation) string {
	return pgx.Identifier{owner.SchemaName(), rel.Pivot}.Sanitize()
}

// relationScope returns "FROM ... WHERE ..." selecting the related rows of rel
// for the current owner row.
func relationScope(owner *model.Type, rel *model.Relation) string {
	target := rel.TargetType()
	from := tableIdentifier(target) + " AS " + relatedAlias

	switch rel.Kind {
	case model.BelongsTo:
		return fmt.Sprintf("FROM %s WHERE %s = %s",
			from, column(relatedAlias, target.Key()), column(ownerAlias, rel.ForeignKey))
	case model.HasMany:
		return fmt.Sprintf("FROM %s WHERE %s = %s",
			from, column(relatedAlias, rel.ForeignKey), column(ownerAlias, owner.Key()))
	default:
		return fmt.Sprintf("FROM %s JOIN %s AS %s ON %s = %s WHERE %s = %s",
			from, pivotIdentifier(owner, rel), pivotAlias,
			column(pivotAlias, rel.RelatedKey), column(relatedAlias, target.Key()),
			column(pivotAlias, rel.ForeignKey), column(ownerAlias, owner.Key()))
	}
}

func (s *statement) where(q *model.Query) {
	var clauses []string
	if id, ok := q.Key(); ok {
		clauses = append(clauses, column(ownerAlias, q.Type.Key())+" = "+s.placeholder(id))
	}

	for _, c := range q.Conditions {
		if !slices.Contains(model.Operators, c.Op) {
			clauses = append(clauses, "false")
			continue
		}
		if c.Relation == "" {
			clauses = append(clauses, fmt.Sprintf("%s %s %s", column(ownerAlias, c.Field), c.Op, s.placeholder(c.Value)))
			continue
		}
		rel, ok := q.Type.Relation(c.Relation)
		if !ok {
			clauses = append(clauses, "false")
			continue
		}
		clauses = append(clauses, fmt.Sprintf("EXISTS (SELECT 1 %s AND %s %s %s)",
			relationScope(q.Type, rel), column(relatedAlias, c.Field), c.Op, s.placeholder(c.Value)))
	}

	if len(clauses) > 0 {
		s.write(" WHERE ", strings.Join(clauses, " AND "))
	}
}

func (s *statement) orderBy(q *model.Query) {
	var terms []string
	for _, o := range q.Orders {
		dir := "ASC"
		if o.Direction == "desc" {
			dir = "DESC"
		}

		relName, field, dotted := strings.Cut(o.Field, ".")
		if !dotted {
			terms = append(terms, column(ownerAlias, o.Field)+" "+dir)
			continue
		}
		rel, ok := q.Type.Relation(relName)
		if !ok || !rel.Singular() {
			continue
		}
		terms = append(terms, fmt.Sprintf("(SELECT %s %s LIMIT 1) %s",
			column(relatedAlias, field), relationScope(q.Type, rel), dir))
	}

	if len(terms) > 0 {
		s.write(" ORDER BY ", strings.Join(terms, ", "))
	}
}

// selectStatement builds the row query for q. A positive limit overrides q.Limit.
func selectStatement(q *model.Query, limit, offset int) *statement {
	s := &statement{}
	s.write("SELECT ", ownerAlias, ".*")
	for _, name := range q.WithCount {
		rel, ok := q.Type.Relation(name)
		if !ok {
			continue
		}
		s.write(", (SELECT count(*) ", relationScope(q.Type, rel), ") AS ", ident(rel.CountKey()))
	}
	s.write(" FROM ", tableIdentifier(q.Type), " AS ", ownerAlias)
	s.where(q)
	s.orderBy(q)

	if limit <= 0 {
		limit = q.Limit
	}
	if limit > 0 {
		s.write(" LIMIT ", s.placeholder(limit))
	}
	if offset > 0 {
		s.write(" OFFSET ", s.placeholder(offset))
	}
	return s
}

func countStatement(q *model.Query) *statement {
	s := &statement{}
	s.write("SELECT count(*) FROM ", tableIdentifier(q.Type), " AS ", ownerAlias)
	s.where(q)
	return s
}

// eagerStatement loads the related rows of rel for the owner keys. Each row
// carries the owner key it belongs to under ownerColumn.
func eagerStatement(owner *model.Type, rel *model.Relation, keys []any) *statement {
	target := rel.TargetType()
	s := &statement{}

	placeholders := make([]string, len(keys))
	for i, k := range keys {
		placeholders[i] = s.placeholder(k)
	}
	in := strings.Join(placeholders, ", ")

	switch rel.Kind {
	case model.BelongsTo:
		s.write("SELECT ", relatedAlias, ".*, ", column(relatedAlias, target.Key()), " AS ", ident(ownerColumn),
			" FROM ", tableIdentifier(target), " AS ", relatedAlias,
			" WHERE ", column(relatedAlias, target.Key()), " IN (", in, ")")
	case model.HasMany:
		s.write("SELECT ", relatedAlias, ".*, ", column(relatedAlias, rel.ForeignKey), " AS ", ident(ownerColumn),
			" FROM ", tableIdentifier(target), " AS ", relatedAlias,
			" WHERE ", column(relatedAlias, rel.ForeignKey), " IN (", in, ")")
	default:
		s.write("SELECT ", relatedAlias, ".*, ", column(pivotAlias, rel.ForeignKey), " AS ", ident(ownerColumn),
			" FROM ", tableIdentifier(target), " AS ", relatedAlias,
			" JOIN ", pivotIdentifier(owner, rel), " AS ", pivotAlias,
			" ON ", column(pivotAlias, rel.RelatedKey), " = ", column(relatedAlias, target.Key()),
			" WHERE ", column(pivotAlias, rel.ForeignKey), " IN (", in, ")")
	}
	s.write(" ORDER BY ", column(relatedAlias, target.Key()))
	return s
}

func insertStatement(t *model.Type, attrs map[string]any) *statement {
	s := &statement{}
	s.write("INSERT INTO ", tableIdentifier(t))
	if len(attrs) == 0 {
		return s.write(" DEFAULT VALUES RETURNING *")
	}

	keys := slices.Sorted(maps.Keys(attrs))
	columns := make([]string, len(keys))
	values := make([]string, len(keys))
	for i, k := range keys {
		columns[i] = ident(k)
		values[i] = s.placeholder(attrs[k])
	}
	return s.write(" (", strings.Join(columns, ", "), ") VALUES (", strings.Join(values, ", "), ") RETURNING *")
}

func updateStatement(t *model.Type, id any, attrs map[string]any) *statement {
	s := &statement{}
	keys := slices.Sorted(maps.Keys(attrs))
	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = ident(k) + " = " + s.placeholder(attrs[k])
	}
	return s.write("UPDATE ", tableIdentifier(t), " SET ", strings.Join(sets, ", "),
		" WHERE ", ident(t.Key()), " = ", s.placeholder(id), " RETURNING *")
}

func deleteStatement(t *model.Type, id any) *statement {
	s := &statement{}
	return s.write("DELETE FROM ", tableIdentifier(t), " WHERE ", ident(t.Key()), " = ", s.placeholder(id))
}

// linkStatement persists an association. For belongsToMany, skipExisting turns
// the pivot insert into an insert-if-absent.
func linkStatement(owner *model.Type, parentID any, rel *model.Relation, relatedID any, skipExisting bool) *statement {
	target := rel.TargetType()
	s := &statement{}

	switch rel.Kind {
	case model.BelongsTo:
		return s.write("UPDATE ", tableIdentifier(owner), " SET ", ident(rel.ForeignKey), " = ", s.placeholder(relatedID),
			" WHERE ", ident(owner.Key()), " = ", s.placeholder(parentID))
	case model.HasMany:
		return s.write("UPDATE ", tableIdentifier(target), " SET ", ident(rel.ForeignKey), " = ", s.placeholder(parentID),
			" WHERE ", ident(target.Key()), " = ", s.placeholder(relatedID))
	}

	pivot := pivotIdentifier(owner, rel)
	fk, rk := ident(rel.ForeignKey), ident(rel.RelatedKey)
	if !skipExisting {
		return s.write("INSERT INTO ", pivot, " (", fk, ", ", rk, ") VALUES (",
			s.placeholder(parentID), ", ", s.placeholder(relatedID), ")")
	}
	p, r := s.placeholder(parentID), s.placeholder(relatedID)
	return s.write("INSERT INTO ", pivot, " (", fk, ", ", rk, ") SELECT ", p, ", ", r,
		" WHERE NOT EXISTS (SELECT 1 FROM ", pivot, " WHERE ", fk, " = ", p, " AND ", rk, " = ", r, ")")
}
