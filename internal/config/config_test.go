package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memory-server/internal/logging"
)

// isolate clears every bound variable and pins HOME and PWD to a temp tree,
// returning the working directory to use.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(strings.ToUpper(k), "")
	}
	home := t.TempDir()
	cwd := filepath.Join(home, "work")
	require.NoError(t, os.MkdirAll(cwd, 0o755))
	t.Setenv("HOME", home)
	t.Setenv("PWD", cwd)
	return cwd
}

func writeJSON(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cwd := isolate(t)

	cfg, err := Load(Options{Cwd: cwd, Logger: logging.Discard()})
	require.NoError(t, err)

	assert.Equal(t, "sse", cfg.Transport)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8484, cfg.Port)
	assert.Equal(t, 8484, cfg.HTTPServerPort)
	assert.Equal(t, "0.0.0.0", cfg.HTTPServerHost)
	assert.Equal(t, "local", cfg.StorageProvider)
	assert.Equal(t, "user", cfg.DefaultUserID)
	assert.Equal(t, DefaultServerName, cfg.MCPServerName)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, 3, cfg.MaxSearchResults)
	assert.Equal(t, DefaultCORSOrigins, cfg.CORSOrigins)
	assert.False(t, cfg.Production())
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoadFromEnv(t *testing.T) {
	cwd := isolate(t)
	t.Setenv("PORT", "9000")
	t.Setenv("HTTP_SERVER_HOST", "127.0.0.1")
	t.Setenv("DEBUG", "true")
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://*.b.example,")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "60000")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("LOCAL_STORAGE_DIR", "/data/mem")

	cfg, err := Load(Options{Cwd: cwd, Logger: logging.Discard()})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTPServerPort)
	assert.Equal(t, "127.0.0.1", cfg.HTTPServerHost)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "secret", cfg.APIToken)
	assert.Equal(t, []string{"https://a.example", "https://*.b.example"}, cfg.CORSOrigins)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.True(t, cfg.Production())
	assert.Equal(t, "/data/mem", cfg.Env.StorageDir)
}

func TestLoadPrecedence(t *testing.T) {
	cwd := isolate(t)
	t.Setenv("DEFAULT_USER_ID", "from-env")
	t.Setenv("STORAGE_PROVIDER", "sqlite")
	t.Setenv("API_TOKEN", "env-token")

	writeJSON(t, filepath.Join(cwd, "mcp.json"), `{
		"mcpServers": {
			"other": {"command": "x"},
			"mem0-local": {
				"default_user_id": "from-file",
				"storage_provider": "local",
				"max_search_results": 7,
				"env": {"API_TOKEN": "file-token", "HTTP_SERVER_ENABLED": "true", "UNRELATED": "x"}
			}
		}
	}`)

	cfg, err := Load(Options{
		Cwd:       cwd,
		Overrides: map[string]any{KeyStorageProvider: "sqlite"},
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cwd, "mcp.json"), cfg.ConfigFile)
	assert.Equal(t, "mem0-local", cfg.MCPServerName)
	assert.Equal(t, "from-file", cfg.DefaultUserID, "file beats env")
	assert.Equal(t, "file-token", cfg.APIToken, "file env map beats env")
	assert.True(t, cfg.HTTPServerEnabled)
	assert.Equal(t, 7, cfg.MaxSearchResults)
	assert.Equal(t, "sqlite", cfg.StorageProvider, "flag beats file")
}

func TestLoadPrefersRooConfigAndExplicitPath(t *testing.T) {
	cwd := isolate(t)
	writeJSON(t, filepath.Join(cwd, ".roo", "mcp.json"), `{"mcpServers": {"roo-mem0": {}}}`)
	writeJSON(t, filepath.Join(cwd, "mcp.json"), `{"mcpServers": {"plain-mem0": {}}}`)

	cfg, err := Load(Options{Cwd: cwd, Logger: logging.Discard()})
	require.NoError(t, err)
	assert.Equal(t, "roo-mem0", cfg.MCPServerName)

	explicit := filepath.Join(t.TempDir(), "custom.json")
	writeJSON(t, explicit, `{"mcpServers": {"memory": {"description": "Mem0 storage"}}}`)

	cfg, err = Load(Options{ConfigPath: explicit, Cwd: cwd, Logger: logging.Discard()})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.MCPServerName)
	assert.Equal(t, explicit, cfg.ConfigFile)
}

func TestLoadStorageDirectoryValidation(t *testing.T) {
	cwd := isolate(t)
	good := filepath.Join(t.TempDir(), "store")

	writeJSON(t, filepath.Join(cwd, "mcp.json"), `{"mcpServers": {"mem0": {"storage_directory": "`+good+`"}}}`)
	cfg, err := Load(Options{Cwd: cwd, Logger: logging.Discard()})
	require.NoError(t, err)
	assert.Equal(t, good, cfg.StorageDirectory)
	_, err = os.Stat(filepath.Join(good, ".write-test"))
	assert.True(t, os.IsNotExist(err), "probe file removed")

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	writeJSON(t, filepath.Join(cwd, "mcp.json"), `{"mcpServers": {"mem0": {"storage_directory": "`+filepath.Join(blocker, "sub")+`"}}}`)
	cfg, err = Load(Options{Cwd: cwd, Logger: logging.Discard()})
	require.NoError(t, err)
	assert.Empty(t, cfg.StorageDirectory)
}

func TestParseClientConfig(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantName string
		wantErr  bool
	}{
		{"first match in document order", `{"mcpServers": {"zz-mem0": {}, "aa-mem0": {}}}`, "zz-mem0", false},
		{"url match", `{"mcpServers": {"remote": {"url": "http://host/mem0/sse"}}}`, "remote", false},
		{"no match", `{"mcpServers": {"github": {}}}`, "", false},
		{"no servers", `{}`, "", false},
		{"bad json", `{`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, _, err := ParseClientConfig([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestWorkspaceOptions(t *testing.T) {
	cwd := isolate(t)
	t.Setenv("PROJECT_DIR", "/srv/project")

	cfg, err := Load(Options{Cwd: cwd, Overrides: map[string]any{KeyStorageDirectory: "/tmp/explicit"}, Logger: logging.Discard()})
	require.NoError(t, err)

	opts := cfg.Workspace(cwd, nil)
	assert.Equal(t, "/tmp/explicit", opts.StorageDir)
	assert.Equal(t, "/srv/project", opts.Env.ProjectDir)
	assert.Equal(t, cwd, opts.Cwd)
}
