package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func libraryTypes() (*Type, *Type, *Type) {
	authors := &Type{
		Name:      "authors",
		Fillable:  []string{"name", "born"},
		Relations: []Relation{{Name: "books", Target: "books", Kind: HasMany, ForeignKey: "author_id"}},
		OrderBys:  []string{},
	}
	tags := &Type{
		Name:     "tags",
		Fillable: []string{"label"},
	}
	books := &Type{
		Name:     "books",
		Fillable: []string{"title", "price", "author_id"},
		Relations: []Relation{
			{Name: "author", Target: "authors", Kind: BelongsTo, ForeignKey: "author_id"},
			{Name: "tags", Target: "tags", Kind: BelongsToMany, Pivot: "book_tags", ForeignKey: "book_id", RelatedKey: "tag_id"},
		},
		OrderBys:       []string{"author.name"},
		RelationOrders: []string{"author"},
		Filters: map[string]Filter{
			"price": {Rule: "numeric", Apply: Between("price")},
		},
	}
	return authors, tags, books
}

func TestNewRegistry(t *testing.T) {
	authors, tags, books := libraryTypes()
	reg, err := NewRegistry(authors, tags, books)
	require.NoError(t, err)

	assert.Equal(t, []string{"authors", "books", "tags"}, reg.Names())

	rel, ok := books.Relation("author")
	require.True(t, ok)
	assert.Same(t, authors, rel.TargetType())

	got, ok := reg.Get("books")
	require.True(t, ok)
	assert.Same(t, books, got)
	_, ok = reg.Get("missing")
	assert.False(t, ok)

	assert.True(t, got.IsFillable("title"))
	assert.False(t, got.IsFillable("secret"))
	assert.True(t, got.IsOrderable("price"))
	assert.True(t, got.IsOrderable("author.name"))
	_, ok = got.Relation("tags")
	assert.True(t, ok)
	_, ok = got.Relation("comments")
	assert.False(t, ok)
	assert.True(t, got.IsRelationOrderable("author"))

	f, ok := got.LookupFilter("price")
	require.True(t, ok)
	assert.Equal(t, "numeric", f.Rule)
	_, ok = got.LookupFilter("title")
	assert.False(t, ok)
}

func TestActivationIsDistinctFromEmpty(t *testing.T) {
	authors, tags, books := libraryTypes()
	_, err := NewRegistry(authors, tags, books)
	require.NoError(t, err)

	// tags declares neither relations nor orderBys
	assert.False(t, tags.RelationsEnabled())
	assert.False(t, tags.OrderingEnabled())
	assert.False(t, tags.IsOrderable("label"))

	// authors declares an empty orderBys: activated, fillable fields still orderable
	assert.True(t, authors.OrderingEnabled())
	assert.True(t, authors.IsOrderable("name"))
	assert.False(t, authors.IsOrderable("books"))
	assert.False(t, authors.RelationOrderingEnabled())
}

func TestNewRegistryRejectsBadDeclarations(t *testing.T) {
	tests := []struct {
		name  string
		types func() []*Type
	}{
		{
			name: "unknown target",
			types: func() []*Type {
				return []*Type{{Name: "a", Relations: []Relation{{Name: "b", Target: "b", Kind: BelongsTo, ForeignKey: "b_id"}}}}
			},
		},
		{
			name: "duplicate",
			types: func() []*Type {
				return []*Type{{Name: "a"}, {Name: "a"}}
			},
		},
		{
			name: "to-many relation order",
			types: func() []*Type {
				authors, tags, books := libraryTypes()
				authors.RelationOrders = []string{"books"}
				return []*Type{authors, tags, books}
			},
		},
		{
			name: "dotted order on unknown field",
			types: func() []*Type {
				authors, tags, books := libraryTypes()
				books.OrderBys = []string{"author.secret"}
				return []*Type{authors, tags, books}
			},
		},
		{
			name: "pivot missing",
			types: func() []*Type {
				authors, tags, books := libraryTypes()
				books.Relations[1].Pivot = ""
				return []*Type{authors, tags, books}
			},
		},
		{
			name: "filter without apply",
			types: func() []*Type {
				authors, tags, books := libraryTypes()
				books.Filters["year"] = Filter{Rule: "numeric"}
				return []*Type{authors, tags, books}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.types()...)
			assert.Error(t, err)
		})
	}
}

func TestBetween(t *testing.T) {
	_, _, books := libraryTypes()
	q := NewQuery(books)
	Between("price")(q, "1000", "2000")

	assert.Equal(t, []Condition{
		{Field: "price", Op: ">=", Value: "1000"},
		{Field: "price", Op: "<=", Value: "2000"},
	}, q.Conditions)
}

func TestFill(t *testing.T) {
	_, _, books := libraryTypes()
	filled := books.Fill(map[string]any{"title": "Dune", "id": 4, "relations": map[string]any{}})
	assert.Equal(t, map[string]any{"title": "Dune"}, filled)
}
