package testutil

import (
	"testing"

	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/store/memory"
	"github.com/stretchr/testify/require"
)

// LibraryTypes declares the authors/books/tags/publishers fixture used across tests.
//
//   - authors: relations and orderBy activated, no relation ordering
//   - books: everything activated, price and published_at filters
//   - tags: nothing activated
//   - publishers: relations activated but empty
func LibraryTypes() []*model.Type {
	return []*model.Type{
		{
			Name:     "authors",
			Fillable: []string{"name", "born"},
			Relations: []model.Relation{
				{Name: "books", Target: "books", Kind: model.HasMany, ForeignKey: "author_id"},
			},
			OrderBys: []string{},
		},
		{
			Name:     "books",
			Fillable: []string{"title", "price", "published_at", "author_id"},
			Relations: []model.Relation{
				{Name: "author", Target: "authors", Kind: model.BelongsTo, ForeignKey: "author_id"},
				{Name: "tags", Target: "tags", Kind: model.BelongsToMany, Pivot: "book_tags", ForeignKey: "book_id", RelatedKey: "tag_id"},
			},
			OrderBys:       []string{"author.name"},
			RelationOrders: []string{"author"},
			Filters: map[string]model.Filter{
				"price":        {Rule: "numeric", Apply: model.Between("price")},
				"published_at": {Rule: "datetime=2006-01-02", Apply: model.Between("published_at")},
			},
		},
		{
			Name:     "tags",
			Fillable: []string{"label"},
		},
		{
			Name:      "publishers",
			Fillable:  []string{"name"},
			Relations: []model.Relation{},
		},
	}
}

// Library builds a registry from LibraryTypes. It panics on a declaration error.
func Library() *model.Registry {
	reg, err := model.NewRegistry(LibraryTypes()...)
	if err != nil {
		panic(err)
	}
	return reg
}

// MustType returns the named type of reg.
func MustType(reg *model.Registry, name string) *model.Type {
	t, ok := reg.Get(name)
	if !ok {
		panic("testutil: unknown type " + name)
	}
	return t
}

// SeededLibrary returns the library registry and a memory store loaded with
// library.json.
func SeededLibrary(t testing.TB) (*model.Registry, *memory.Store) {
	t.Helper()

	var data map[string][]model.Entity
	LoadJSON(t, "library.json", &data)

	reg := Library()
	s := memory.New()
	require.NoError(t, s.Load(reg, data))
	return reg, s
}
