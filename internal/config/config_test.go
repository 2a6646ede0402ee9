package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100.0, cfg.Geofence.BufferMeters)
	assert.Equal(t, "proximity", cfg.Geofence.Strategy)
	assert.Equal(t, 10, cfg.Geofence.TimeoutSeconds)
	assert.Equal(t, 7, cfg.Violations.DefaultFixDeadlineDays)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("geofence:\n  strategy: containment\nwebhooks:\n  - url: http://example.test/hook\n    events: [violation.raised]\n"))
	require.NoError(t, err)
	assert.Equal(t, "containment", cfg.Geofence.Strategy)
	assert.Equal(t, 100.0, cfg.Geofence.BufferMeters)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, []string{"violation.raised"}, cfg.Webhooks[0].Events)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"strategy":    "geofence:\n  strategy: polygon\n",
		"buffer":      "geofence:\n  buffer_meters: -1\n",
		"timeout":     "geofence:\n  timeout_seconds: 0\n",
		"log level":   "logging:\n  level: loud\n",
		"webhook url": "webhooks:\n  - events: [object.created]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(Path(dir), []byte("violations:\n  default_fix_deadline_days: 3\n"), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Violations.DefaultFixDeadlineDays)

	_, err = Load(t.TempDir())
	assert.Error(t, err)
}

func TestFilesDir(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("ws", ".oversight", "uploads"), cfg.FilesDir("ws"))
	cfg.Files.Dir = "uploads"
	assert.Equal(t, filepath.Join("ws", "uploads"), cfg.FilesDir("ws"))
	cfg.Files.Dir = "/srv/files"
	assert.Equal(t, "/srv/files", cfg.FilesDir("ws"))
}

func TestParseEnvFrom(t *testing.T) {
	rt, err := ParseEnvFrom(map[string]string{"OVERSIGHT_JWT_SECRET": "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", rt.Addr)
	assert.Equal(t, "/v0", rt.BasePath)
	assert.False(t, rt.AllowActorHeader)
	require.NoError(t, rt.Validate())

	rt, err = ParseEnvFrom(map[string]string{})
	require.NoError(t, err)
	assert.Error(t, rt.Validate())

	rt, err = ParseEnvFrom(map[string]string{"OVERSIGHT_ALLOW_ACTOR_HEADER": "true", "OVERSIGHT_BASE_PATH": "api"})
	require.NoError(t, err)
	assert.True(t, rt.AllowActorHeader)
	assert.Error(t, rt.Validate())
}
