package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memory-server/internal/config"
	"github.com/rcliao/memory-server/internal/model"
	"github.com/rcliao/memory-server/internal/workspace"
)

func resetFlags() {
	RootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetIn(strings.NewReader(stdin))
	RootCmd.SetArgs(args)
	require.NoError(t, RootCmd.Execute())
	return out.String()
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, k := range []string{"LOCAL_STORAGE_DIR", "VSCODE_WORKSPACE_FOLDER", "VSCODE_CWD", "INIT_CWD", "MCP_CONFIG_PATH", "STORAGE_PROVIDER", "DEFAULT_USER_ID"} {
		t.Setenv(k, "")
	}
	t.Setenv("PROJECT_DIR", dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestWhere(t *testing.T) {
	dir := isolate(t)

	var got struct {
		Dir    string           `json:"dir"`
		Source workspace.Source `json:"source"`
		UserID string           `json:"userId"`
	}
	out := run(t, "", "--storage-dir", dir, "--user", "alice", "where")
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, filepath.Join(dir, workspace.DefaultDirName), got.Dir)
	assert.Equal(t, workspace.SourceExplicit, got.Source)
	assert.Equal(t, "alice", got.UserID)
}

func TestSaveListSearchExportImport(t *testing.T) {
	dir := isolate(t)
	flags := []string{"--storage-dir", dir, "--user", "cli"}
	cmd := func(args ...string) []string { return append(append([]string{}, flags...), args...) }

	var saved map[string]any
	require.NoError(t, json.Unmarshal([]byte(run(t, "", cmd("save", "I", "like", "green", "tea")...)), &saved))
	assert.Equal(t, "cli", saved["userId"])
	id := saved["id"].(string)

	run(t, "piped coffee note\n", cmd("save")...)

	var records []model.Record
	require.NoError(t, json.Unmarshal([]byte(run(t, "", cmd("list")...)), &records))
	require.Len(t, records, 2)
	assert.ElementsMatch(t, []string{"I like green tea", "piped coffee note"},
		[]string{records[0].Memory, records[1].Memory})

	var results []model.SearchResult
	require.NoError(t, json.Unmarshal([]byte(run(t, "", cmd("search", "tea")...)), &results))
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)

	assert.Equal(t, "[]\n", run(t, "", cmd("search", "nothing-matches")...))

	exported := run(t, "", cmd("export")...)
	out := run(t, exported, "--storage-dir", dir, "--user", "copy", "import")
	assert.Equal(t, `{"ok":true,"imported":2}`+"\n", out)

	assert.Contains(t, run(t, "", cmd("rm", id)...), `"ok":true`)
	assert.Equal(t, "[]\n", run(t, "", cmd("search", "tea")...))
}

func TestFlagOverridesOnlyChangedFlags(t *testing.T) {
	resetFlags()
	t.Cleanup(resetFlags)
	require.NoError(t, RootCmd.PersistentFlags().Set("provider", "sqlite"))

	got := flagOverrides()
	assert.Equal(t, "sqlite", got[config.KeyStorageProvider])
	assert.NotContains(t, got, config.KeyDefaultUserID)
}
