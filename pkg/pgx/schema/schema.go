// Package schema reads table metadata from information_schema so declared
// entity types can be checked against the live database.
package schema

import (
	"context"
	"errors"
	"fmt"
	"slices"

	pg "github.com/edgeflare/pgrepo/pkg/pgx"
	"github.com/jackc/pgx/v5"
)

// ErrTableNotFound is returned by LoadTable for a missing table or view.
var ErrTableNotFound = errors.New("table not found")

// Table is the shape of one relation as the database reports it.
type Table struct {
	Schema      string
	Name        string
	View        bool
	Columns     []Column
	PrimaryKeys []string
	// ForeignKeys is empty for views.
	ForeignKeys []ForeignKey
}

// Column fields are scanned by position.
type Column struct {
	Name       string
	DataType   string
	Nullable   bool
	PrimaryKey bool
}

// ForeignKey fields are scanned by position.
type ForeignKey struct {
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// FullName returns "schema.name".
func (t *Table) FullName() string {
	return t.Schema + "." + t.Name
}

// HasColumn reports whether the table has a column called name.
func (t *Table) HasColumn(name string) bool {
	return slices.ContainsFunc(t.Columns, func(c Column) bool { return c.Name == name })
}

// Missing returns the names that are not columns of the table, in order.
func (t *Table) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if !t.HasColumn(n) && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// References returns the foreign key constraint on column, if any.
func (t *Table) References(column string) (ForeignKey, bool) {
	i := slices.IndexFunc(t.ForeignKeys, func(fk ForeignKey) bool { return fk.Column == column })
	if i < 0 {
		return ForeignKey{}, false
	}
	return t.ForeignKeys[i], true
}

const tableSQL = `
SELECT table_type = 'VIEW'
FROM information_schema.tables
WHERE table_schema = $1 AND table_name = $2`

const columnsSQL = `
SELECT c.column_name, c.data_type, c.is_nullable = 'YES', pk.column_name IS NOT NULL
FROM information_schema.columns c
LEFT JOIN (
	SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		USING (constraint_schema, constraint_name)
	WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2
) pk USING (column_name)
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`

const foreignKeysSQL = `
SELECT kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
	USING (constraint_schema, constraint_name)
JOIN information_schema.constraint_column_usage ccu
	USING (constraint_schema, constraint_name)
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1 AND tc.table_name = $2
ORDER BY kcu.ordinal_position`

// LoadTable reads the columns, primary keys and foreign keys of one table or view.
func LoadTable(ctx context.Context, conn pg.Conn, schema, name string) (Table, error) {
	t := Table{Schema: schema, Name: name}

	err := conn.QueryRow(ctx, tableSQL, schema, name).Scan(&t.View)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, fmt.Errorf("%s: %w", t.FullName(), ErrTableNotFound)
	}
	if err != nil {
		return t, fmt.Errorf("query table %s: %w", t.FullName(), err)
	}

	if t.Columns, err = collect[Column](ctx, conn, columnsSQL, schema, name); err != nil {
		return t, fmt.Errorf("query columns %s: %w", t.FullName(), err)
	}
	for _, c := range t.Columns {
		if c.PrimaryKey {
			t.PrimaryKeys = append(t.PrimaryKeys, c.Name)
		}
	}

	if !t.View {
		if t.ForeignKeys, err = collect[ForeignKey](ctx, conn, foreignKeysSQL, schema, name); err != nil {
			return t, fmt.Errorf("query foreign keys %s: %w", t.FullName(), err)
		}
	}
	return t, nil
}

func collect[T any](ctx context.Context, conn pg.Conn, sql string, args ...any) ([]T, error) {
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[T])
}
