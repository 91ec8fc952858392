package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, []string{"2025"}, cfg.Years)
	assert.Empty(t, cfg.DynamoTable, "badger is the default backend")
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	def := []byte("dataDir: /var/arkiv\ndynamoTable: valgarkiv\nyears: [\"2023\", \"2025\"]\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), def, 0o644))
	t.Chdir(dir)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/var/arkiv", cfg.DataDir)
	assert.Equal(t, "valgarkiv", cfg.DynamoTable)
	assert.Equal(t, []string{"2023", "2025"}, cfg.Years)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VALGARKIV_DATA_DIR", "/srv/arkiv")
	t.Setenv("VALGARKIV_YEARS", "2021,2023")
	t.Setenv("VALGARKIV_DYNAMO_TABLE", "valgarkiv-prod")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/srv/arkiv", cfg.DataDir)
	assert.Equal(t, []string{"2021", "2023"}, cfg.Years)
	assert.Equal(t, "valgarkiv-prod", cfg.DynamoTable)
}

func TestPerYearStorageNames(t *testing.T) {
	cfg := Config{DataDir: "/var/arkiv", DynamoTable: "valgarkiv"}

	assert.Equal(t, filepath.Join("/var/arkiv", "2025"), cfg.yearDir("2025"))
	assert.Equal(t, "valgarkiv-2025", cfg.dynamoTableFor("2025"))
}
