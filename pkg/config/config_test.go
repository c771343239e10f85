package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8090", cfg.Server.Addr())
	assert.True(t, cfg.Server.IsDevelopment())
	assert.Equal(t, "http://localhost:8080", cfg.Backend.URL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout())
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval())
	assert.Equal(t, 5, cfg.Poll.ToolWarningThreshold)
	assert.Equal(t, "1.1.1.1:53", cfg.DNS.Resolver)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Len(t, cfg.Server.AllowedOrigins, 2)
	assert.Empty(t, cfg.Render.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BACKEND_URL", "http://scanner.internal:9000/")
	t.Setenv("POLL_INTERVAL_MS", "500")
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://scanner.internal:9000", cfg.Backend.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval())
	assert.False(t, cfg.Server.IsDevelopment())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SERVER_PORT=9100\nTOOL_WARNING_THRESHOLD=3\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Poll.ToolWarningThreshold)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad_env", "SERVER_ENV", "staging"},
		{"bad_port", "SERVER_PORT", "70000"},
		{"bad_backend_url", "BACKEND_URL", "not a url"},
		{"interval_too_small", "POLL_INTERVAL_MS", "10"},
		{"resolver_without_port", "DNS_RESOLVER", "1.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoadRenderOverrides(t *testing.T) {
	t.Run("empty_path", func(t *testing.T) {
		o, err := LoadRenderOverrides("")
		require.NoError(t, err)
		assert.Nil(t, o)
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "render.yaml")
		body := "tools:\n  - ffuf\n  - amass\nwarning_keywords:\n  - WARN\nicons:\n  error: \"[x] \"\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		o, err := LoadRenderOverrides(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"ffuf", "amass"}, o.Tools)
		assert.Equal(t, []string{"WARN"}, o.WarningKeywords)
		assert.Nil(t, o.ErrorKeywords)
		assert.Equal(t, map[string]string{"error": "[x] "}, o.Icons)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "render.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"error_keywords":["FATAL"]}`), 0o600))

		o, err := LoadRenderOverrides(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"FATAL"}, o.ErrorKeywords)
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadRenderOverrides(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent to testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
