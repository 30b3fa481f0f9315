package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whygo/internal/config"
	"whygo/internal/db"
	"whygo/internal/domain"
	"whygo/internal/migrate"
	"whygo/internal/repo"
)

func newRepo(t *testing.T, workspace string) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func TestResolveAppliesOverrideOnlyInDevMode(t *testing.T) {
	r := newRepo(t, t.TempDir())
	ctx := context.Background()
	_, err := r.UpsertEmployee(ctx, nil, domain.Actor{ID: "e-1", Name: "Ann", Level: domain.LevelIndividualContributor, Department: "Sales"})
	require.NoError(t, err)
	ov := &Override{Department: "marketing", Level: domain.LevelDepartmentHead}

	prod := ActorResolver{Repo: r}
	a, err := prod.Resolve(ctx, "e-1", ov)
	require.NoError(t, err)
	assert.Equal(t, "Sales", a.Department)
	assert.Equal(t, domain.LevelIndividualContributor, a.Level)

	dev := ActorResolver{Repo: r, DevMode: true}
	a, err = dev.Resolve(ctx, "e-1", ov)
	require.NoError(t, err)
	assert.Equal(t, "Marketing", a.Department)
	assert.Equal(t, domain.LevelDepartmentHead, a.Level)

	_, err = dev.Resolve(ctx, "e-1", &Override{Level: "overlord"})
	assert.ErrorIs(t, err, ErrInvalidOverride)

	_, err = dev.Resolve(ctx, "ghost", nil)
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestResolveConfigPrefersWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	r := newRepo(t, dir)
	ctx := context.Background()

	cfg, err := ResolveConfig(ctx, dir, r)
	require.NoError(t, err)
	assert.Equal(t, "WhyGo", cfg.Organization.Name)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "whygo.yml"), []byte(config.GenerateDefault("Acme")), 0o644))
	cfg, err = ResolveConfig(ctx, dir, r)
	require.NoError(t, err)
	assert.Equal(t, "Acme", cfg.Organization.Name)

	stored, err := r.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Acme", stored.Organization.Name)
}
