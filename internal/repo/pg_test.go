package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dom "tasktracker/internal/domain"
	"tasktracker/migrations"
)

// setupPG connects to the database named by TEST_PG_DSN and applies the
// migrations. Tests are skipped when it is unset or unreachable.
func setupPG(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(pool.Close)

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()
	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.Up(db, "."))
	return pool
}

// pgOwner inserts a throwaway user and removes it with its tasks afterwards.
func pgOwner(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	_, err := NewPGUserRepo(pool).Create(ctx, dom.User{ID: id, Name: "pg test", Email: id + "@example.com", PasswordHash: "x", Role: dom.RoleUser})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = NewPGTaskRepo(pool).DeleteByOwners(ctx, []string{id})
		_, _ = NewPGUserRepo(pool).DeleteByIDs(ctx, []string{id})
	})
	return id
}

func TestPGTaskRepo_CompareAndSwap(t *testing.T) {
	pool := setupPG(t)
	ctx := context.Background()
	owner := pgOwner(t, pool)
	tasks := NewPGTaskRepo(pool)

	created, err := tasks.Create(ctx, dom.Task{Title: "report", Status: dom.StatusDraft, OwnerID: owner})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, dom.StatusDraft, created.Status)

	next := created
	next.Status = dom.StatusInProgress
	updated, err := tasks.Update(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, dom.StatusInProgress, updated.Status)

	// created still carries version 1.
	_, err = tasks.Update(ctx, created)
	assert.ErrorIs(t, err, ErrStale)
	assert.ErrorIs(t, tasks.Delete(ctx, created.ID, created.Version), ErrStale)

	got, err := tasks.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, dom.StatusInProgress, got.Status, "stale writes change nothing")

	require.NoError(t, tasks.Delete(ctx, got.ID, got.Version))
	_, err = tasks.GetByID(ctx, got.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGTaskRepo_ListFilters(t *testing.T) {
	pool := setupPG(t)
	ctx := context.Background()
	owner := pgOwner(t, pool)
	other := pgOwner(t, pool)
	tasks := NewPGTaskRepo(pool)

	for _, tk := range []dom.Task{
		{Title: "Buy milk", Status: dom.StatusDraft, OwnerID: owner},
		{Title: "100% done", Status: dom.StatusCompleted, OwnerID: owner},
		{Title: "Buy bread", Status: dom.StatusDraft, OwnerID: other},
	} {
		_, err := tasks.Create(ctx, tk)
		require.NoError(t, err)
	}

	list, err := tasks.List(ctx, dom.TaskFilter{OwnerID: owner})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = tasks.List(ctx, dom.TaskFilter{OwnerID: owner, Status: dom.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "100% done", list[0].Title)

	list, err = tasks.List(ctx, dom.TaskFilter{OwnerID: owner, Query: "MILK"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = tasks.List(ctx, dom.TaskFilter{OwnerID: owner, Query: "%"})
	require.NoError(t, err)
	require.Len(t, list, 1, "wildcards match literally")

	_, err = tasks.Create(ctx, dom.Task{Title: "orphan", Status: dom.StatusDraft, OwnerID: uuid.NewString()})
	assert.ErrorIs(t, err, ErrUnknownOwner)
}

func TestPGUserRepo_Duplicate(t *testing.T) {
	pool := setupPG(t)
	ctx := context.Background()
	owner := pgOwner(t, pool)
	users := NewPGUserRepo(pool)

	_, err := users.Create(ctx, dom.User{ID: uuid.NewString(), Name: "dup", Email: owner + "@example.com", PasswordHash: "x", Role: dom.RoleUser})
	assert.ErrorIs(t, err, ErrDuplicate)

	u, err := users.SetRole(ctx, owner, dom.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, dom.RoleManager, u.Role)
}
