package model

import "slices"

// Operators accepted in conditions.
var Operators = []string{">=", "<=", "=", ">", "<"}

// Condition is a single comparison. With Relation set it matches when at least
// one related entity satisfies it.
type Condition struct {
	Relation string
	Field    string
	Op       string
	Value    any
}

// Order is a single ordering term. Field may be "relation.field" for belongsTo relations.
type Order struct {
	Field     string
	Direction string
}

// Query is the store-level query for one entity type. It is built by the query
// layer and handed to a store, which translates it natively.
type Query struct {
	Type       *Type
	Conditions []Condition
	With       []string
	WithCount  []string
	Orders     []Order
	Limit      int

	key    any
	hasKey bool
}

// NewQuery starts an unconstrained query over t.
func NewQuery(t *Type) *Query {
	return &Query{Type: t}
}

// Where adds a comparison on a field of the queried type.
func (q *Query) Where(field, op string, value any) *Query {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: op, Value: value})
	return q
}

// WhereHas adds a comparison on a field of a related type.
func (q *Query) WhereHas(relation, field, op string, value any) *Query {
	q.Conditions = append(q.Conditions, Condition{Relation: relation, Field: field, Op: op, Value: value})
	return q
}

// WhereKey restricts the query to the entity with the given primary key.
func (q *Query) WhereKey(id any) *Query {
	q.key = id
	q.hasKey = true
	return q
}

// Key returns the primary key restriction, if any.
func (q *Query) Key() (any, bool) {
	return q.key, q.hasKey
}

// Include eager-loads a relation. Repeated names are ignored.
func (q *Query) Include(relation string) *Query {
	if !slices.Contains(q.With, relation) {
		q.With = append(q.With, relation)
	}
	return q
}

// Count adds "<relation>_count" to every result. Repeated names are ignored.
func (q *Query) Count(relation string) *Query {
	if !slices.Contains(q.WithCount, relation) {
		q.WithCount = append(q.WithCount, relation)
	}
	return q
}

// OrderBy appends an ordering term.
func (q *Query) OrderBy(field, direction string) *Query {
	q.Orders = append(q.Orders, Order{Field: field, Direction: direction})
	return q
}

// Take limits the number of rows returned. Zero means no limit.
func (q *Query) Take(n int) *Query {
	q.Limit = n
	return q
}
