package query

import (
	"strconv"
	"strings"

	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/validation"
)

// Builder turns request parameters into a Spec for one entity type, checking
// every token against the type's allow-lists. A rejected token is recorded in
// the report and the remaining tokens are still processed.
type Builder struct {
	t *model.Type
}

// NewBuilder returns a Builder for t. t must belong to a built model.Registry.
func NewBuilder(t *model.Type) *Builder {
	return &Builder{t: t}
}

// Build processes every list parameter: with, where, filter, orderBy, limit and orderByRelation.
func (b *Builder) Build(p Params, report *Report) *Spec {
	spec := &Spec{}
	if p.With != "" {
		b.With(spec, p.With, report)
	}
	if p.Where != "" {
		b.Where(spec, p.Where, report)
	}
	if p.Filter != "" {
		b.Filter(spec, p.Filter, report)
	}
	if p.OrderBy != "" {
		b.OrderBy(spec, p.OrderBy, report)
	}
	if p.Limit != "" {
		b.Limit(spec, p.Limit, report)
	}
	if p.OrderByRelation != "" {
		b.OrderByRelation(spec, p.OrderByRelation, report)
	}
	return spec
}

// BuildOne processes the parameters that apply to a single-entity read: with, where and orderBy.
func (b *Builder) BuildOne(p Params, report *Report) *Spec {
	spec := &Spec{}
	if p.With != "" {
		b.With(spec, p.With, report)
	}
	if p.Where != "" {
		b.Where(spec, p.Where, report)
	}
	if p.OrderBy != "" {
		b.OrderBy(spec, p.OrderBy, report)
	}
	return spec
}

// With includes the requested relations, "name!" also counting them.
func (b *Builder) With(spec *Spec, raw string, report *Report) {
	if !b.t.RelationsEnabled() {
		report.Add(CategoryWith, "query_by_with_not_activated")
		return
	}

	var rejected []string
	for _, token := range strings.Split(raw, ",") {
		name, count := ParseWith(token)
		if _, ok := b.t.Relation(name); !ok {
			rejected = append(rejected, name)
			continue
		}
		spec.Includes = append(spec.Includes, Include{Relation: name, Count: count})
	}

	if len(rejected) > 0 {
		report.Add(CategoryWith, Detail{"relation_do_not_exists_or_is_unavailable": rejected})
	}
}

// Where accepts comparisons on fillable fields, or on fillable fields of a
// declared relation written as "relation.field".
func (b *Builder) Where(spec *Spec, raw string, report *Report) {
	exprs, ok := ParseWhere(raw)
	if !ok {
		report.Add(CategoryWhere, []Detail{{"incorrect_where_specified": raw}})
		return
	}

	var rejected []Detail
	for _, expr := range exprs {
		c, ok := ParseComparison(expr)
		if !ok {
			rejected = append(rejected, Detail{"check_value_key_operator": expr})
			continue
		}

		if b.t.IsFillable(c.Key) {
			spec.Clauses = append(spec.Clauses, Clause{Field: c.Key, Operator: c.Operator, Value: c.Value})
			continue
		}

		relName, field, ok := SplitPath(c.Key)
		if !ok {
			rejected = append(rejected, Detail{"key_not_a_valid_where_property": c.Key})
			continue
		}
		rel, ok := b.t.Relation(relName)
		if !ok {
			rejected = append(rejected, Detail{"sub_key_not_a_valid_relation": relName})
			continue
		}
		if target := rel.TargetType(); target == nil || !target.IsFillable(field) {
			rejected = append(rejected, Detail{"sub_key_not_a_valid_property": c.Key})
			continue
		}
		spec.Clauses = append(spec.Clauses, Clause{Relation: relName, Field: field, Operator: c.Operator, Value: c.Value})
	}

	if len(rejected) > 0 {
		report.Add(CategoryWhere, rejected)
	}
}

// Filter applies declared range filters in order. The first malformed segment,
// unknown key or invalid bound stops filter processing; filters accepted before
// it stay applied.
func (b *Builder) Filter(spec *Spec, raw string, report *Report) {
	filters, malformed, complete := ParseRangeFilters(raw)

	var rejected []Detail
	for _, f := range filters {
		decl, ok := b.t.LookupFilter(f.Key)
		if !ok {
			rejected = append(rejected, Detail{"is_not_a_filter": f.Key})
			break
		}
		if decl.Rule != "" {
			minKey, maxKey := f.Key+"_min", f.Key+"_max"
			res := validation.Check(
				map[string]any{minKey: f.Lower, maxKey: f.Upper},
				map[string]string{minKey: decl.Rule, maxKey: decl.Rule},
			)
			if res.Fails() {
				rejected = append(rejected, Detail{"filter_not_valid_values": res})
				break
			}
		}
		spec.Filters = append(spec.Filters, AppliedFilter{RangeFilter: f, apply: decl.Apply})
	}

	if len(rejected) == 0 && !complete {
		rejected = append(rejected, Detail{"incorrect_filter_specified": malformed})
	}
	if len(rejected) > 0 {
		report.Add(CategoryFilter, rejected)
	}
}

// OrderBy accepts a single "field[:direction]" token.
func (b *Builder) OrderBy(spec *Spec, raw string, report *Report) {
	if !b.t.OrderingEnabled() {
		report.Add(CategoryOrderBy, "is_not_allowed")
		return
	}

	tok := ParseOrder(raw)
	if !b.t.IsOrderable(tok.Field) {
		report.Add(CategoryOrderBy, tok.Field)
		return
	}
	spec.Order = &tok
}

// Limit accepts a positive integer.
func (b *Builder) Limit(spec *Spec, raw string, report *Report) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		report.Add(CategoryLimit, Detail{"limit_is_not_an_integer": raw})
		return
	}
	if n <= 0 {
		report.Add(CategoryLimit, Detail{"limit_has_to_be_larger_than_0": n})
		return
	}
	spec.Limit = n
}

// OrderByRelation accepts "relation.field[:direction]" when the relation is
// allowed for ordering and field is fillable on the related type. The ordering
// itself happens after the fetch.
func (b *Builder) OrderByRelation(spec *Spec, raw string, report *Report) {
	if !b.t.RelationOrderingEnabled() {
		report.Add(CategoryOrderByRelation, "orderByRelation_not_activated_on_this_resource")
		return
	}

	tok := ParseOrder(raw)
	relName, field, ok := SplitPath(tok.Field)
	if !ok {
		report.Add(CategoryOrderByRelation, Detail{"orderByRelation_needs_a_relation_and_a_property": raw})
		return
	}
	if !b.t.IsRelationOrderable(relName) {
		report.Add(CategoryOrderByRelation, Detail{"relation_not_allowed_ordering_by": relName})
		return
	}
	var target *model.Type
	if rel, ok := b.t.Relation(relName); ok {
		target = rel.TargetType()
	}
	if target == nil || !target.IsFillable(field) {
		report.Add(CategoryOrderByRelation, Detail{"property_not_found_in_relation": field})
		return
	}
	spec.RelationOrder = &RelationOrder{Relation: relName, Field: field, Direction: tok.Direction}
}
