package model

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	ErrTypeNotFound  = errors.New("entity type not found")
	ErrDuplicateType = errors.New("entity type already registered")
)

// Registry holds every declared entity type. It is built once at start-up and
// never mutated afterwards, so concurrent reads need no locking.
type Registry struct {
	types map[string]*Type
}

// NewRegistry validates the declarations and resolves every relation target.
func NewRegistry(types ...*Type) (*Registry, error) {
	r := &Registry{types: make(map[string]*Type, len(types))}
	for _, t := range types {
		if t == nil || t.Name == "" {
			return nil, errors.New("model: entity type without a name")
		}
		if _, ok := r.types[t.Name]; ok {
			return nil, fmt.Errorf("model: %q: %w", t.Name, ErrDuplicateType)
		}
		r.types[t.Name] = t
	}

	for _, t := range types {
		if err := r.resolve(t); err != nil {
			return nil, fmt.Errorf("model: %s: %w", t.Name, err)
		}
	}
	return r, nil
}

func (r *Registry) resolve(t *Type) error {
	for i := range t.Relations {
		rel := &t.Relations[i]
		target, ok := r.types[rel.Target]
		if !ok {
			return fmt.Errorf("relation %q: target %q: %w", rel.Name, rel.Target, ErrTypeNotFound)
		}
		switch rel.Kind {
		case BelongsTo, HasMany:
			if rel.ForeignKey == "" {
				return fmt.Errorf("relation %q: foreign key required", rel.Name)
			}
		case BelongsToMany:
			if rel.Pivot == "" || rel.ForeignKey == "" || rel.RelatedKey == "" {
				return fmt.Errorf("relation %q: pivot, foreign key and related key required", rel.Name)
			}
		default:
			return fmt.Errorf("relation %q: unknown kind %q", rel.Name, rel.Kind)
		}
		rel.target = target
	}

	for _, name := range t.RelationOrders {
		rel, ok := t.Relation(name)
		if !ok {
			return fmt.Errorf("relation order %q: not a declared relation", name)
		}
		if !rel.Singular() {
			return fmt.Errorf("relation order %q: only %s relations can be ordered by", name, BelongsTo)
		}
	}

	for _, ob := range t.OrderBys {
		relName, field, dotted := strings.Cut(ob, ".")
		if !dotted {
			continue
		}
		rel, ok := t.Relation(relName)
		if !ok || !rel.Singular() {
			return fmt.Errorf("order by %q: %q is not a %s relation", ob, relName, BelongsTo)
		}
		if !rel.target.IsFillable(field) {
			return fmt.Errorf("order by %q: %q is not fillable on %s", ob, field, rel.Target)
		}
	}

	for key, f := range t.Filters {
		if f.Apply == nil {
			return fmt.Errorf("filter %q: apply function required", key)
		}
	}
	return nil
}

// Get returns the type registered under name.
func (r *Registry) Get(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Names lists the registered type names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.types))
}
