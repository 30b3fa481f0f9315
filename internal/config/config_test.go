package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("Acme")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Acme", cfg.Organization.Name)
	assert.Equal(t, 10, cfg.Goals.MinGoalLength)
	assert.Equal(t, 50, cfg.Goals.MinWhyLength)
	assert.Equal(t, 500, cfg.Store.MaxBatchWrites)
	assert.False(t, cfg.DevMode())
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
mode: development
organization:
  name: Acme
  departments: [Sales, Production]
store:
  max_batch_writes: 20
`))
	require.NoError(t, err)
	assert.True(t, cfg.DevMode())
	assert.Equal(t, 20, cfg.Store.MaxBatchWrites)
	assert.Equal(t, 50, cfg.Goals.MinWhyLength)
	assert.True(t, cfg.HasDepartment("sales"))
	assert.False(t, cfg.HasDepartment("Finance"))
}

func TestValidateRejectsUnknownDepartment(t *testing.T) {
	_, err := FromYAML([]byte("organization:\n  name: Acme\n  departments: [Sorcery]\n"))
	assert.ErrorContains(t, err, "unknown department")
}

func TestValidateRejectsBadMode(t *testing.T) {
	_, err := FromYAML([]byte("mode: staging\n"))
	assert.ErrorContains(t, err, "config.mode")
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "whygo.yml"), []byte(GenerateDefault("Acme")), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "Acme", cfg.Organization.Name)
}
