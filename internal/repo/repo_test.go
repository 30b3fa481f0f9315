package repo_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whygo/internal/config"
	"whygo/internal/db"
	"whygo/internal/domain"
	"whygo/internal/migrate"
	"whygo/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn, Now: func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }}
}

type doc struct {
	Name   string   `json:"name"`
	Rank   int      `json:"rank"`
	Parent *string  `json:"parent"`
	Score  *float64 `json:"score"`
}

func TestCreateRejectsDuplicate(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, "things", "a", doc{Name: "first"}))
	err := r.Create(ctx, "things", "a", doc{Name: "second"})
	assert.ErrorIs(t, err, repo.ErrAlreadyExists)

	var got doc
	require.NoError(t, r.Get(ctx, "things", "a", &got))
	assert.Equal(t, "first", got.Name)
}

func TestGetMissing(t *testing.T) {
	r := newRepo(t)
	var got doc
	assert.ErrorIs(t, r.Get(context.Background(), "things", "nope", &got), repo.ErrNotFound)
}

func TestUpdateMergesAndKeepsNull(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	score := 4.5
	require.NoError(t, r.Create(ctx, "things", "a", doc{Name: "first", Rank: 1, Score: &score}))
	require.NoError(t, r.Update(ctx, "things", "a", map[string]any{"score": nil, "rank": 2}))

	var got doc
	require.NoError(t, r.Get(ctx, "things", "a", &got))
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, 2, got.Rank)
	assert.Nil(t, got.Score)

	var raw map[string]any
	require.NoError(t, r.Get(ctx, "things", "a", &raw))
	v, present := raw["score"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	r := newRepo(t)
	err := r.Update(context.Background(), "things", "ghost", map[string]any{"rank": 1})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	r := newRepo(t)
	assert.NoError(t, r.Delete(context.Background(), "things", "ghost"))
}

func TestQueryFiltersAndOrder(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	parent := "p1"
	require.NoError(t, r.Create(ctx, "things", "c", doc{Name: "c", Rank: 3, Parent: &parent}))
	require.NoError(t, r.Create(ctx, "things", "a", doc{Name: "a", Rank: 1, Parent: &parent}))
	require.NoError(t, r.Create(ctx, "things", "b", doc{Name: "b", Rank: 2}))
	require.NoError(t, r.Create(ctx, "other", "z", doc{Name: "z", Rank: 0, Parent: &parent}))

	docs, err := r.Query(ctx, repo.Query{
		Collection: "things",
		Where:      []repo.Filter{repo.Where("parent", repo.OpEq, "p1")},
		OrderBy:    []repo.Order{{Field: "rank"}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)

	docs, err = r.Query(ctx, repo.Query{Collection: "things", Where: []repo.Filter{repo.Where("parent", repo.OpEq, nil)}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)

	docs, err = r.Query(ctx, repo.Query{Collection: "things", Where: []repo.Filter{repo.Where("name", repo.OpIn, []string{"a", "b"})}})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = r.Query(ctx, repo.Query{Collection: "things", Where: []repo.Filter{repo.Where("name", repo.OpIn, []string{})}})
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = r.Query(ctx, repo.Query{Collection: "things", Where: []repo.Filter{repo.Where("rank", repo.OpGte, 2)}, OrderBy: []repo.Order{{Field: "rank", Desc: true}}})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0].ID)

	_, err = r.Query(ctx, repo.Query{Collection: "things", Where: []repo.Filter{repo.Where("x') OR 1=1 --", repo.OpEq, 1)}})
	assert.Error(t, err)
}

func TestBatchIsAllOrNothing(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, "things", "taken", doc{Name: "taken"}))

	err := r.Batch(ctx, func(w repo.Writer) error {
		if err := w.Create(ctx, "things", "new-1", doc{Name: "one"}); err != nil {
			return err
		}
		return w.Create(ctx, "things", "taken", doc{Name: "clash"})
	})
	require.ErrorIs(t, err, repo.ErrAlreadyExists)

	var got doc
	assert.ErrorIs(t, r.Get(ctx, "things", "new-1", &got), repo.ErrNotFound)
}

func TestBatchRollsBackOnDriverError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	r := repo.Repo{DB: conn}
	ctx := context.Background()

	insert := regexp.QuoteMeta("INSERT INTO documents")
	mock.ExpectBegin()
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(insert).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = r.Batch(ctx, func(w repo.Writer) error {
		for _, id := range []string{"g", "g_o1", "g_o2"} {
			if err := w.Create(ctx, "things", id, doc{Name: id}); err != nil {
				return err
			}
		}
		return nil
	})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeesAndSettings(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	boss := "e-1"
	_, err := r.UpsertEmployee(ctx, nil, domain.Actor{ID: "e-2", Name: "Zed", Level: domain.LevelManager, Department: "Sales", ReportsTo: &boss})
	require.NoError(t, err)
	_, err = r.UpsertEmployee(ctx, nil, domain.Actor{ID: "e-1", Name: "Ann", Level: domain.LevelExecutive, Department: "Executive"})
	require.NoError(t, err)

	all, err := r.ListEmployees(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Ann", all[0].Name)

	sales, err := r.ListEmployees(ctx, "Sales")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "e-2", sales[0].ID)

	_, err = r.GetConfig(ctx)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	cfg := config.Default("Acme")
	require.NoError(t, r.UpsertConfig(ctx, cfg))
	stored, err := r.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme", stored.Organization.Name)
}

func TestAPIKeys(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	hash := repo.HashAPIKey("secret-key")
	require.NoError(t, r.InsertAPIKey(ctx, domain.APIKey{ID: "k1", ActorID: "e-1", Name: "ci", KeyHash: hash}))

	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(" secret-key "))
	require.NoError(t, err)
	assert.Equal(t, "e-1", got.ActorID)

	keys, err := r.ListAPIKeys(ctx, "e-1")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	assert.ErrorIs(t, r.DeleteAPIKey(ctx, "k1"), repo.ErrNotFound)
}
