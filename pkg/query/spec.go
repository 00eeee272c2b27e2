package query

import (
	"net/url"

	"github.com/edgeflare/pgrepo/pkg/model"
)

// Params is the request parameter bag read by the query layer. Every field is
// optional; an empty string means "not requested".
type Params struct {
	With            string
	Where           string
	Filter          string
	OrderBy         string
	OrderByRelation string
	Limit           string
	Paginate        string
	Page            string
}

// ParamsFromValues reads Params from URL query values.
func ParamsFromValues(v url.Values) Params {
	return Params{
		With:            v.Get("with"),
		Where:           v.Get("where"),
		Filter:          v.Get("filter"),
		OrderBy:         v.Get("orderBy"),
		OrderByRelation: v.Get("orderByRelation"),
		Limit:           v.Get("limit"),
		Paginate:        v.Get("paginate"),
		Page:            v.Get("page"),
	}
}

// Include is an accepted relation of the with parameter.
type Include struct {
	Relation string
	Count    bool
}

// Clause is an accepted where comparison. Relation is empty for direct fields.
type Clause struct {
	Relation string
	Field    string
	Operator string
	Value    string
}

// AppliedFilter is a range filter that passed validation.
type AppliedFilter struct {
	RangeFilter
	apply model.ApplyFunc
}

// RelationOrder is an accepted orderByRelation request.
type RelationOrder struct {
	Relation  string
	Field     string
	Direction string
}

// Spec is the validated intent of a read request. It only ever contains
// accepted tokens; rejected ones live in the Report built alongside it.
type Spec struct {
	Includes      []Include
	Clauses       []Clause
	Filters       []AppliedFilter
	Order         *OrderToken
	Limit         int
	RelationOrder *RelationOrder
}

// Apply replays the accepted clauses of s onto q and returns q.
func (s *Spec) Apply(q *model.Query) *model.Query {
	for _, inc := range s.Includes {
		q.Include(inc.Relation)
		if inc.Count {
			q.Count(inc.Relation)
		}
	}
	for _, c := range s.Clauses {
		if c.Relation != "" {
			q.WhereHas(c.Relation, c.Field, c.Operator, c.Value)
			continue
		}
		q.Where(c.Field, c.Operator, c.Value)
	}
	for _, f := range s.Filters {
		f.apply(q, f.Lower, f.Upper)
	}
	if s.Order != nil {
		q.OrderBy(s.Order.Field, s.Order.Direction)
	}
	if s.Limit > 0 {
		q.Take(s.Limit)
	}
	if s.RelationOrder != nil {
		q.Include(s.RelationOrder.Relation)
	}
	return q
}
