// Package model describes the entity types exposed through the query layer.
//
// A Type carries the allow-lists of an entity: which fields may be mass-assigned
// and filtered on, which relations may be included, what may be ordered by and
// which range filters exist. Types are declared once, wired together by
// NewRegistry and treated as read-only afterwards.
package model

import (
	"slices"
)

// Entity is a single persisted record. Loaded relations and relation counts are
// stored under their relation name and "<relation>_count".
type Entity map[string]any

// RelationKind tells the store how a relation is persisted.
type RelationKind string

const (
	// BelongsTo: the owner row holds ForeignKey pointing at the target's primary key.
	BelongsTo RelationKind = "belongsTo"
	// HasMany: target rows hold ForeignKey pointing at the owner's primary key.
	HasMany RelationKind = "hasMany"
	// BelongsToMany: Pivot rows hold ForeignKey (owner) and RelatedKey (target).
	BelongsToMany RelationKind = "belongsToMany"
)

// Relation is a named one-hop association to another entity type.
type Relation struct {
	Name       string       `json:"name"`
	Target     string       `json:"target"`
	Kind       RelationKind `json:"kind"`
	ForeignKey string       `json:"foreign_key,omitempty"`
	RelatedKey string       `json:"related_key,omitempty"`
	Pivot      string       `json:"pivot,omitempty"`

	target *Type
}

// TargetType returns the resolved related type. It is nil until the owning
// type has been registered.
func (r *Relation) TargetType() *Type {
	return r.target
}

// Singular reports whether the relation resolves to at most one entity.
func (r *Relation) Singular() bool {
	return r.Kind == BelongsTo
}

// CountKey is the entity key a relation count is stored under.
func (r *Relation) CountKey() string {
	return r.Name + "_count"
}

// ApplyFunc narrows a query with the bounds of a range filter.
type ApplyFunc func(q *Query, lower, upper string)

// Filter is a declared range filter: both bounds must satisfy Rule before Apply runs.
type Filter struct {
	Rule  string
	Apply ApplyFunc
}

// Between returns an ApplyFunc constraining column to the inclusive range [lower, upper].
func Between(column string) ApplyFunc {
	return func(q *Query, lower, upper string) {
		q.Where(column, ">=", lower).Where(column, "<=", upper)
	}
}

// Type is the capability descriptor of one entity kind.
//
// A nil Relations, OrderBys or RelationOrders means the feature is not activated
// for the type at all; an empty non-nil slice means it is activated but nothing
// is allowed. Callers surface the two cases as different errors.
type Type struct {
	Name           string
	Table          string
	Schema         string
	PrimaryKey     string
	Fillable       []string
	Relations      []Relation
	OrderBys       []string
	RelationOrders []string
	Filters        map[string]Filter
}

// Key returns the primary key column, "id" unless declared otherwise.
func (t *Type) Key() string {
	if t.PrimaryKey == "" {
		return "id"
	}
	return t.PrimaryKey
}

// TableName returns the declared table, falling back to the type name.
func (t *Type) TableName() string {
	if t.Table == "" {
		return t.Name
	}
	return t.Table
}

// SchemaName returns the declared schema, "public" by default.
func (t *Type) SchemaName() string {
	if t.Schema == "" {
		return "public"
	}
	return t.Schema
}

// IsFillable reports whether field may be mass-assigned and queried.
func (t *Type) IsFillable(field string) bool {
	return slices.Contains(t.Fillable, field)
}

// OrderingEnabled reports whether orderBy is activated for the type.
func (t *Type) OrderingEnabled() bool {
	return t.OrderBys != nil
}

// IsOrderable reports whether field may be used in orderBy. Fillable fields are
// orderable once ordering is activated.
func (t *Type) IsOrderable(field string) bool {
	if !t.OrderingEnabled() {
		return false
	}
	return t.IsFillable(field) || slices.Contains(t.OrderBys, field)
}

// RelationsEnabled reports whether relation inclusion is activated for the type.
func (t *Type) RelationsEnabled() bool {
	return t.Relations != nil
}

// Relation looks up a declared relation by name.
func (t *Type) Relation(name string) (*Relation, bool) {
	for i := range t.Relations {
		if t.Relations[i].Name == name {
			return &t.Relations[i], true
		}
	}
	return nil, false
}

// RelationOrderingEnabled reports whether orderByRelation is activated.
func (t *Type) RelationOrderingEnabled() bool {
	return t.RelationOrders != nil
}

// IsRelationOrderable reports whether the named relation may be used in orderByRelation.
func (t *Type) IsRelationOrderable(name string) bool {
	return slices.Contains(t.RelationOrders, name)
}

// LookupFilter returns the filter declared under key.
func (t *Type) LookupFilter(key string) (Filter, bool) {
	f, ok := t.Filters[key]
	return f, ok
}

// ID returns the primary key value of e.
func (t *Type) ID(e Entity) any {
	return e[t.Key()]
}

// Fill copies the fillable subset of attrs into a fresh map.
func (t *Type) Fill(attrs map[string]any) map[string]any {
	filled := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if t.IsFillable(k) {
			filled[k] = v
		}
	}
	return filled
}
