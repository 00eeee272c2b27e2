package query

import "encoding/json"

// Error categories. Each request parameter reports under its own name.
const (
	CategoryWith            = "with"
	CategoryWhere           = "where"
	CategoryFilter          = "filter"
	CategoryOrderBy         = "orderBy"
	CategoryOrderByRelation = "orderByRelation"
	CategoryLimit           = "limit"
)

// Detail is a single keyed error detail, e.g. {"is_not_a_filter": "price"}.
type Detail map[string]any

// Error is one reported problem.
type Error struct {
	Category string
	Detail   any
}

func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{e.Category: e.Detail})
}

// Report is the ordered list of problems found while serving one request. It is
// never nil-checked by callers: the zero value is an empty report.
type Report []Error

// Add appends an error under category.
func (r *Report) Add(category string, detail any) {
	*r = append(*r, Error{Category: category, Detail: detail})
}

// Empty reports whether nothing was rejected.
func (r Report) Empty() bool {
	return len(r) == 0
}

// Categories lists the category of every error in order.
func (r Report) Categories() []string {
	out := make([]string, len(r))
	for i, e := range r {
		out[i] = e.Category
	}
	return out
}

// Get returns the detail of the first error in category.
func (r Report) Get(category string) (any, bool) {
	for _, e := range r {
		if e.Category == category {
			return e.Detail, true
		}
	}
	return nil, false
}

func (r Report) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Error(r))
}
