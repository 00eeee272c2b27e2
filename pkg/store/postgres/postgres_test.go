package postgres

import (
	"context"
	"testing"

	"github.com/edgeflare/pgrepo/internal/testutil"
	"github.com/edgeflare/pgrepo/internal/testutil/pgtest"
	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/pgx/schema"
	"github.com/edgeflare/pgrepo/pkg/store"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryDDL = `
CREATE TABLE authors (id SERIAL PRIMARY KEY, name TEXT NOT NULL, born INT);
CREATE TABLE books (
	id SERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	price INT,
	published_at DATE,
	author_id INT REFERENCES authors(id)
);
CREATE TABLE tags (id SERIAL PRIMARY KEY, label TEXT NOT NULL);
CREATE TABLE book_tags (book_id INT REFERENCES books(id), tag_id INT REFERENCES tags(id));
CREATE TABLE publishers (id SERIAL PRIMARY KEY, name TEXT);

INSERT INTO authors (id, name, born) VALUES (1, 'Frank Herbert', 1920), (2, 'Ursula K. Le Guin', 1929), (3, 'Iain M. Banks', 1954);
INSERT INTO books (id, title, price, published_at, author_id) VALUES
	(1, 'Dune', 1200, '1965-08-01', 1),
	(2, 'Children of Dune', 900, '1976-04-01', 1),
	(3, 'The Left Hand of Darkness', 1500, '1969-03-01', 2),
	(4, 'The Dispossessed', 4800, '1974-05-01', 2),
	(5, 'Consider Phlebas', 6000, '1987-04-23', 3),
	(6, 'Untitled Draft', 300, '2001-01-01', NULL);
INSERT INTO tags (id, label) VALUES (1, 'classic'), (2, 'space');
INSERT INTO book_tags (book_id, tag_id) VALUES (1, 1), (1, 2), (3, 1), (5, 2);
SELECT setval('books_id_seq', 6);
`

// withLibrary runs fn against the library schema inside a rolled back
// transaction, in a schema of its own.
func withLibrary(t *testing.T, fn func(ctx context.Context, s *Store, reg *model.Registry)) {
	ctx := context.Background()
	pgtest.WithTx(ctx, t, func(tx pgx.Tx) {
		_, err := tx.Exec(ctx, "CREATE SCHEMA pgrepo_test; SET LOCAL search_path TO pgrepo_test")
		require.NoError(t, err)
		_, err = tx.Exec(ctx, libraryDDL)
		require.NoError(t, err)

		types := testutil.LibraryTypes()
		for _, typ := range types {
			typ.Schema = "pgrepo_test"
		}
		reg, err := model.NewRegistry(types...)
		require.NoError(t, err)

		fn(ctx, New(tx), reg)
	})
}

func TestStoreReads(t *testing.T) {
	withLibrary(t, func(ctx context.Context, s *Store, reg *model.Registry) {
		books := testutil.MustType(reg, "books")

		rows, err := s.Get(ctx, model.NewQuery(books).
			Where("price", ">=", "1000").
			Where("price", "<=", "5000").
			Include("author").
			Count("tags").
			OrderBy("price", "desc"))
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "The Dispossessed", rows[0]["title"])
		assert.Equal(t, "Ursula K. Le Guin", rows[0]["author"].(model.Entity)["name"])
		assert.Equal(t, int64(2), rows[2]["tags_count"])

		rows, err = s.Get(ctx, model.NewQuery(books).WhereHas("tags", "label", "=", "space").Include("tags").OrderBy("title", "asc"))
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "Dune", rows[1]["title"])
		assert.Len(t, rows[1]["tags"], 2)

		rows, err = s.Get(ctx, model.NewQuery(books).OrderBy("author.name", "asc").Include("author"))
		require.NoError(t, err)
		assert.Equal(t, "Frank Herbert", rows[0]["author"].(model.Entity)["name"])
		assert.Nil(t, rows[5]["author"])

		page, err := s.Paginate(ctx, model.NewQuery(books).OrderBy("title", "asc"), 4, 2)
		require.NoError(t, err)
		assert.Equal(t, 6, page.Total)
		assert.Equal(t, 2, page.LastPage)
		assert.Len(t, page.Data, 2)

		_, err = s.Find(ctx, books, 42)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestStoreWrites(t *testing.T) {
	withLibrary(t, func(ctx context.Context, s *Store, reg *model.Registry) {
		books := testutil.MustType(reg, "books")
		tags := testutil.MustType(reg, "tags")

		created, err := s.Insert(ctx, books, map[string]any{"title": "Excession", "price": 700})
		require.NoError(t, err)
		assert.Equal(t, int32(7), created["id"])

		updated, err := s.Update(ctx, books, 7, map[string]any{"price": 800})
		require.NoError(t, err)
		assert.Equal(t, int32(800), updated["price"])

		_, err = s.Update(ctx, books, 99, map[string]any{"price": 1})
		assert.ErrorIs(t, err, store.ErrNotFound)

		rel, _ := books.Relation("tags")
		tag, err := s.Find(ctx, tags, 2)
		require.NoError(t, err)
		require.NoError(t, s.AttachRelation(ctx, books, created, rel, tag))
		require.NoError(t, s.AttachRelation(ctx, books, created, rel, tag))
		counted, err := s.First(ctx, model.NewQuery(books).WhereKey(7).Count("tags"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), counted["tags_count"])

		require.NoError(t, s.Delete(ctx, books, 6))
		assert.ErrorIs(t, s.Delete(ctx, books, 6), store.ErrNotFound)
	})
}

func TestVerify(t *testing.T) {
	withLibrary(t, func(ctx context.Context, s *Store, reg *model.Registry) {
		require.NoError(t, s.Verify(ctx, reg))

		broken, err := model.NewRegistry(&model.Type{Name: "books", Schema: "pgrepo_test", Fillable: []string{"title", "isbn"}},
			&model.Type{Name: "reviews", Schema: "pgrepo_test"})
		require.NoError(t, err)

		err = s.Verify(ctx, broken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lacks columns isbn")
		assert.ErrorIs(t, err, schema.ErrTableNotFound)

		wrongTarget, err := model.NewRegistry(
			&model.Type{Name: "books", Schema: "pgrepo_test", Relations: []model.Relation{
				{Name: "author", Target: "tags", Kind: model.BelongsTo, ForeignKey: "author_id"},
			}},
			&model.Type{Name: "tags", Schema: "pgrepo_test"},
		)
		require.NoError(t, err)
		assert.ErrorContains(t, s.Verify(ctx, wrongTarget), "author_id references authors, not tags")

		wrongKey, err := model.NewRegistry(&model.Type{Name: "tags", Schema: "pgrepo_test", PrimaryKey: "label"})
		require.NoError(t, err)
		assert.ErrorContains(t, s.Verify(ctx, wrongKey), "primary key is id, not label")
	})
}
