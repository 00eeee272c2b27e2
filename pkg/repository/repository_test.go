package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/edgeflare/pgrepo/internal/testutil"
	"github.com/edgeflare/pgrepo/pkg/events"
	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/query"
	"github.com/edgeflare/pgrepo/pkg/repository"
	"github.com/edgeflare/pgrepo/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func books(t *testing.T, opts ...repository.Option) (*repository.Repository, *memory.Store) {
	reg, s := testutil.SeededLibrary(t)
	return repository.New(s, testutil.MustType(reg, "books"), opts...), s
}

func ids(rows []model.Entity) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = model.KeyString(r["id"])
	}
	return out
}

func errorsJSON(t *testing.T, r query.Report) string {
	t.Helper()
	b, err := json.Marshal(r)
	require.NoError(t, err)
	return string(b)
}

func TestListPagination(t *testing.T) {
	repo, _ := books(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		p        query.Params
		paged    bool
		perPage  int
		page     int
		wantIDs  []string
		lastPage int
	}{
		{"no paginate", query.Params{}, false, 0, 0, []string{"1", "2", "3", "4", "5", "6"}, 0},
		{"non numeric fetches all", query.Params{Paginate: "all"}, false, 0, 0, []string{"1", "2", "3", "4", "5", "6"}, 0},
		{"in range", query.Params{Paginate: "5", Page: "2"}, true, 5, 2, []string{"6"}, 2},
		{"below range falls back", query.Params{Paginate: "2"}, true, 5, 1, []string{"1", "2", "3", "4", "5"}, 2},
		{"above range falls back", query.Params{Paginate: "5000"}, true, 5, 1, []string{"1", "2", "3", "4", "5"}, 2},
		{"fraction falls back", query.Params{Paginate: "7.5"}, true, 5, 1, []string{"1", "2", "3", "4", "5"}, 2},
		{"bad page", query.Params{Paginate: "10", Page: "zero"}, true, 10, 1, []string{"1", "2", "3", "4", "5", "6"}, 1},
		{"page past any offset", query.Params{Paginate: "5", Page: "3689348814741910324"}, true, 5, 3689348814741910324, []string{}, 2},
		{"pagination overrides limit", query.Params{Paginate: "6", Limit: "2"}, true, 6, 1, []string{"1", "2", "3", "4", "5", "6"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coll, report, err := repo.List(ctx, tt.p)
			require.NoError(t, err)
			assert.True(t, report.Empty())
			assert.Equal(t, tt.wantIDs, ids(coll.Items))
			if !tt.paged {
				assert.Nil(t, coll.Page)
				return
			}
			require.NotNil(t, coll.Page)
			assert.Equal(t, tt.perPage, coll.Page.PerPage)
			assert.Equal(t, tt.page, coll.Page.CurrentPage)
			assert.Equal(t, 6, coll.Page.Total)
			assert.Equal(t, tt.lastPage, coll.Page.LastPage)
		})
	}
}

func TestListLimitAndOrder(t *testing.T) {
	repo, _ := books(t)
	coll, report, err := repo.List(context.Background(), query.Params{OrderBy: "price:desc", Limit: "3"})
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, []string{"5", "4", "3"}, ids(coll.Items))
}

func TestListOrderByRelation(t *testing.T) {
	repo, _ := books(t)
	ctx := context.Background()

	coll, report, err := repo.List(ctx, query.Params{Where: "[price>=1000]", OrderByRelation: "author.name:desc"})
	require.NoError(t, err)
	assert.True(t, report.Empty(), errorsJSON(t, report))
	assert.Equal(t, []string{"3", "4", "5", "1"}, ids(coll.Items))
	assert.Equal(t, "Ursula K. Le Guin", coll.Items[0]["author"].(model.Entity)["name"])

	coll, report, err = repo.List(ctx, query.Params{OrderBy: "price:asc", OrderByRelation: "author.name"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"orderByRelation":{"relation_value_missing":[6]}}]`, errorsJSON(t, report))
	assert.Equal(t, []string{"6", "2", "1", "3", "4", "5"}, ids(coll.Items))
}

func TestListRejectedParamsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	repo, _ := books(t, repository.WithLogger(zap.New(core)))

	coll, report, err := repo.List(context.Background(), query.Params{Where: "[price>=1000]", Filter: "isbn[1:2]"})
	require.NoError(t, err)
	assert.Len(t, coll.Items, 4)
	assert.Equal(t, []string{query.CategoryFilter}, report.Categories())

	entries := logs.FilterMessage("rejected request parameters").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "books", entries[0].ContextMap()["entity"])
	assert.Equal(t, "list", entries[0].ContextMap()["op"])
}

func TestShow(t *testing.T) {
	repo, _ := books(t)
	ctx := context.Background()

	resp, err := repo.Show(ctx, &repository.Request{Params: query.Params{With: "author,tags!"}}, int64(1))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.Errors.Empty())
	book := resp.Result.(model.Entity)
	assert.Equal(t, "Dune", book["title"])
	assert.Equal(t, "Frank Herbert", book["author"].(model.Entity)["name"])
	assert.Equal(t, 2, book["tags_count"])

	resp, err = repo.Show(ctx, &repository.Request{}, int64(42))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Nil(t, resp.Result)
	assert.JSONEq(t, `[{"could_not_find_model":42}]`, errorsJSON(t, resp.Errors))
}

func TestStoreCreatesAndRelates(t *testing.T) {
	repo, s := books(t)
	ctx := context.Background()

	resp, err := repo.Store(ctx, &repository.Request{
		Attributes: map[string]any{"title": "Excession", "price": 700.0, "secret": "x"},
		Relations:  map[string]any{"author": 3.0, "tags": 2.0},
	})
	require.NoError(t, err)
	assert.True(t, resp.Errors.Empty(), errorsJSON(t, resp.Errors))

	book := resp.Result.(model.Entity)
	assert.Equal(t, "Excession", book["title"])
	assert.NotContains(t, book, "secret")
	assert.Equal(t, "Iain M. Banks", book["author"].(model.Entity)["name"])
	assert.Len(t, book["tags"], 1)

	// insert plus two relation writes
	assert.Equal(t, 3, s.Writes())
}

func TestStoreWithMissingRelation(t *testing.T) {
	repo, s := books(t)
	ctx := context.Background()

	resp, err := repo.Store(ctx, &repository.Request{
		Attributes: map[string]any{"title": "Orphan"},
		Relations:  map[string]any{"author": 9.0, "reviews": 1.0},
	})
	require.NoError(t, err)

	book := resp.Result.(model.Entity)
	assert.Equal(t, "Orphan", book["title"])
	assert.JSONEq(t, `[{"relation_errors":["author does not have object with id 9","reviews is not a relation."]}]`,
		errorsJSON(t, resp.Errors))

	stored, err := s.Find(ctx, repo.Type(), book["id"])
	require.NoError(t, err)
	assert.Equal(t, "Orphan", stored["title"])
}

func TestStoreValidation(t *testing.T) {
	repo, s := books(t, repository.WithValidator(repository.Rules{
		Store: map[string]string{"title": "required", "price": "gte=0"},
	}))

	resp, err := repo.Store(context.Background(), &repository.Request{Attributes: map[string]any{"price": -1.0}})
	require.NoError(t, err)
	assert.Nil(t, resp.Result)
	assert.JSONEq(t, `[{"could_not_store_model":{"price":["price does not satisfy gte=0"],"title":["title is required"]}}]`,
		errorsJSON(t, resp.Errors))
	assert.Zero(t, s.Writes())
}

func TestStoreRuleUnfitForValue(t *testing.T) {
	repo, s := books(t, repository.WithValidator(repository.Rules{
		Store: map[string]string{"title": "required,max=200"},
	}))

	var resp *repository.Response
	require.NotPanics(t, func() {
		var err error
		resp, err = repo.Store(context.Background(), &repository.Request{Attributes: map[string]any{"title": true}})
		require.NoError(t, err)
	})
	assert.Nil(t, resp.Result)
	assert.JSONEq(t, `[{"could_not_store_model":{"title":["title has an unsupported type for required,max=200"]}}]`,
		errorsJSON(t, resp.Errors))
	assert.Zero(t, s.Writes())
}

func TestUpdateMissingEntity(t *testing.T) {
	repo, s := books(t)

	resp, err := repo.Update(context.Background(), &repository.Request{
		Attributes: map[string]any{"title": "Nope"},
	}, int64(42))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Nil(t, resp.Result)
	assert.JSONEq(t, `[{"could_not_find_model":42}]`, errorsJSON(t, resp.Errors))
	assert.Zero(t, s.Writes())
}

func TestUpdateAttachesRelations(t *testing.T) {
	repo, s := books(t)
	ctx := context.Background()
	req := &repository.Request{
		Attributes: map[string]any{"price": 1300.0},
		Relations:  map[string]any{"tags": 1.0},
	}

	resp, err := repo.Update(ctx, req, int64(1))
	require.NoError(t, err)
	assert.True(t, resp.Errors.Empty())
	book := resp.Result.(model.Entity)
	assert.Equal(t, 1300.0, book["price"])
	// already tagged classic
	assert.Len(t, book["tags"], 2)

	resp, err = repo.Update(ctx, req, int64(1))
	require.NoError(t, err)
	assert.Len(t, resp.Result.(model.Entity)["tags"], 2)
	assert.Equal(t, 4, s.Writes())
}

func TestUpdateValidation(t *testing.T) {
	repo, s := books(t, repository.WithValidator(repository.Rules{
		Update: map[string]string{"title": "max=5"},
	}))

	resp, err := repo.Update(context.Background(), &repository.Request{
		Attributes: map[string]any{"title": "Far too long"},
	}, int64(1))
	require.NoError(t, err)
	assert.Nil(t, resp.Result)
	assert.JSONEq(t, `[{"could_not_update_model":{"title":["title does not satisfy max=5"]}}]`, errorsJSON(t, resp.Errors))
	assert.Zero(t, s.Writes())
}

func TestDestroy(t *testing.T) {
	repo, s := books(t)
	ctx := context.Background()

	resp, err := repo.Destroy(ctx, &repository.Request{}, int64(6))
	require.NoError(t, err)
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":{"deleted":6},"errors":[]}`, string(b))

	resp, err = repo.Destroy(ctx, &repository.Request{}, int64(6))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"could_not_find_model":6}]`, errorsJSON(t, resp.Errors))
	assert.Equal(t, 1, s.Writes())
}

func TestWritesArePublished(t *testing.T) {
	pub := &testutil.Publisher{}
	repo, _ := books(t, repository.WithPublisher(pub))
	ctx := context.Background()

	resp, err := repo.Store(ctx, &repository.Request{Attributes: map[string]any{"title": "Matter"}})
	require.NoError(t, err)
	id := resp.Result.(model.Entity)["id"]

	_, err = repo.Update(ctx, &repository.Request{Attributes: map[string]any{"price": 900.0}}, id)
	require.NoError(t, err)
	_, err = repo.Update(ctx, &repository.Request{}, int64(42))
	require.NoError(t, err)
	_, err = repo.Destroy(ctx, &repository.Request{}, id)
	require.NoError(t, err)

	published := pub.Events()
	require.Len(t, published, 3)
	ops := []events.Operation{published[0].Op, published[1].Op, published[2].Op}
	assert.Equal(t, []events.Operation{events.OpCreate, events.OpUpdate, events.OpDelete}, ops)
	for _, e := range published {
		assert.Equal(t, "books", e.Entity)
		assert.Equal(t, model.KeyString(id), model.KeyString(e.Key))
	}
	assert.Equal(t, "Matter", published[0].After["title"])
	assert.Equal(t, 900.0, published[1].After["price"])
	assert.Nil(t, published[2].After)
}

func TestPublishFailureKeepsResponse(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pub := &testutil.Publisher{Err: errors.New("broker down")}
	repo, s := books(t, repository.WithPublisher(pub), repository.WithLogger(zap.New(core)))

	resp, err := repo.Store(context.Background(), &repository.Request{Attributes: map[string]any{"title": "Matter"}})
	require.NoError(t, err)
	assert.True(t, resp.Errors.Empty())
	assert.Equal(t, 1, s.Writes())
	require.Equal(t, 1, logs.FilterMessage("publishing write event failed").Len())
}

func TestIndexEnvelope(t *testing.T) {
	repo, _ := books(t)

	resp, err := repo.Index(context.Background(), &repository.Request{Params: query.Params{
		Where: "[title=Dune]", Paginate: "5",
	}})
	require.NoError(t, err)
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"result": {
			"data": [{"id": 1, "title": "Dune", "price": 1200, "published_at": "1965-08-01", "author_id": 1}],
			"current_page": 1, "per_page": 5, "total": 1, "last_page": 1
		},
		"errors": []
	}`, string(b))
}
