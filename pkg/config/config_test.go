package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiredFieldMissing(t *testing.T) {
	t.Setenv("SILVERAN_LIBRARY_ROOT", "")
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	cfg, err := New()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required config")
	assert.Contains(t, err.Error(), "SILVERAN_LIBRARY_ROOT")
	assert.Contains(t, err.Error(), "library_root")
}

func TestNew_WithEnvVar(t *testing.T) {
	t.Setenv("SILVERAN_LIBRARY_ROOT", "/books")
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/books", cfg.LibraryRoot)
}

func TestNew_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
library_root: /data/books
data_dir: /data/state
server_port: 8080
database_debug: true
sync_interval: 30s
cover_fallbacks:
  - cover.jpg
  - images/front.png
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	t.Setenv("CONFIG_FILE", configPath)

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/data/books", cfg.LibraryRoot)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.True(t, cfg.DatabaseDebug)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, []string{"cover.jpg", "images/front.png"}, cfg.CoverFallbacks)
	assert.Equal(t, "/data/state/silveran.sqlite", cfg.DatabaseFilePath)
	assert.Equal(t, "/data/state/catalog.bolt", cfg.CatalogCachePath)
}

func TestNew_EnvVarOverridesConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
library_root: /data/from-file
server_port: 8080
verify_mime_types: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("SILVERAN_LIBRARY_ROOT", "/data/from-env")
	t.Setenv("SILVERAN_SERVER_PORT", "9090")
	t.Setenv("SILVERAN_VERIFY_MIME_TYPES", "false")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "/data/from-env", cfg.LibraryRoot)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.False(t, cfg.VerifyMimeTypes)
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("SILVERAN_LIBRARY_ROOT", "/books")
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.DatabaseConnectRetryCount)
	assert.Equal(t, 2*time.Second, cfg.DatabaseConnectRetryDelay)
	assert.False(t, cfg.DatabaseDebug)
	assert.Equal(t, "0.0.0.0", cfg.ServerHost)
	assert.Equal(t, 5566, cfg.ServerPort)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.VerifyMimeTypes)
	assert.Equal(t, filepath.Join("data", "silveran.sqlite"), filepath.Clean(cfg.DatabaseFilePath))
}

func TestNew_InvalidRemoteURL(t *testing.T) {
	t.Setenv("SILVERAN_LIBRARY_ROOT", "/books")
	t.Setenv("SILVERAN_REMOTE_URL", "not a url")
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote_url")
}

func TestNewForTest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	cfg := NewForTest(dir)
	assert.Equal(t, filepath.Join(dir, "library"), cfg.LibraryRoot)
	assert.Equal(t, filepath.Join(dir, "data", "silveran.sqlite"), cfg.DatabaseFilePath)
	assert.Equal(t, "127.0.0.1", cfg.ServerHost)
	assert.Zero(t, cfg.RetryBaseDelay)
}

func TestRetrieveHidesToken(t *testing.T) {
	t.Parallel()

	cfg := NewForTest(t.TempDir())
	cfg.RemoteURL = "https://books.example.com"
	cfg.RemoteToken = "super-secret"

	e := echo.New()
	RegisterRoutes(e, cfg)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret")
	assert.Contains(t, rec.Body.String(), `"remote_token_set":true`)
	assert.Contains(t, rec.Body.String(), `"remote_url":"https://books.example.com"`)
}
