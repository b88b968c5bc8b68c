package mcptools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/memory-server/internal/logging"
	"github.com/rcliao/memory-server/internal/metrics"
	"github.com/rcliao/memory-server/internal/model"
	"github.com/rcliao/memory-server/internal/service"
	"github.com/rcliao/memory-server/internal/store"
)

func newDeps(t *testing.T) *Deps {
	t.Helper()
	st := store.NewLocalStore(filepath.Join(t.TempDir(), ".Mem0-Files"), store.LocalOptions{Logger: logging.Discard()})
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { st.Close() })

	return &Deps{
		Service:       service.New(service.Options{Store: st, Logger: logging.Discard()}),
		DefaultUserID: "user",
		Metrics:       metrics.New(),
		Logger:        logging.Discard(),
	}
}

func call(t *testing.T, tool Tool, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = tool.Definition().Name
	req.Params.Arguments = args
	res, err := tool.Handle(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestSaveListSearch(t *testing.T) {
	d := newDeps(t)

	res := call(t, NewSaveTool(d), map[string]any{"text": "I like green tea"})
	assert.False(t, res.IsError)
	assert.Equal(t, "Successfully saved memory: I like green tea", text(t, res))

	call(t, NewSaveTool(d), map[string]any{"text": "tea for bob", "userId": "bob"})

	res = call(t, NewGetAllTool(d), map[string]any{})
	var records []model.Record
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "user", records[0].UserID)

	res = call(t, NewSearchTool(d), map[string]any{"query": "TEA", "userId": "bob", "limit": float64(5)})
	var results []model.SearchResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "bob", results[0].UserID)
	assert.Equal(t, 2, results[0].RelevanceScore)
}

func TestSearchDefaultLimit(t *testing.T) {
	d := newDeps(t)
	for i := 0; i < 5; i++ {
		call(t, NewSaveTool(d), map[string]any{"text": "note"})
	}

	res := call(t, NewSearchTool(d), map[string]any{"query": "note"})
	var results []model.SearchResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &results))
	assert.Len(t, results, DefaultSearchLimit)
}

func TestEmptySearchIsJSONArray(t *testing.T) {
	d := newDeps(t)
	res := call(t, NewSearchTool(d), map[string]any{"query": "nothing"})
	assert.Equal(t, "[]", text(t, res))
}

func TestMissingArgumentsBecomeErrorResults(t *testing.T) {
	d := newDeps(t)

	tests := []struct {
		tool Tool
		args map[string]any
	}{
		{NewSaveTool(d), map[string]any{}},
		{NewSaveTool(d), map[string]any{"text": "   "}},
		{NewSearchTool(d), map[string]any{"limit": 3}},
		{NewUpdateTool(d), map[string]any{"id": "x"}},
		{NewDeleteTool(d), map[string]any{}},
	}
	for _, tt := range tests {
		name := tt.tool.Definition().Name
		t.Run(name, func(t *testing.T) {
			res := call(t, tt.tool, tt.args)
			assert.True(t, res.IsError)
			assert.Contains(t, text(t, res), "Error executing "+name+":")
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	d := newDeps(t)
	saved, err := d.Service.SaveMemory(context.Background(), "old", "user", nil)
	require.NoError(t, err)

	res := call(t, NewUpdateTool(d), map[string]any{"id": saved.ID, "text": "new"})
	assert.False(t, res.IsError)
	assert.Contains(t, text(t, res), saved.ID)

	rec, err := d.Service.GetMemory(context.Background(), saved.ID, "user")
	require.NoError(t, err)
	assert.Equal(t, "new", rec.Memory)

	res = call(t, NewDeleteTool(d), map[string]any{"id": saved.ID})
	assert.False(t, res.IsError)

	res = call(t, NewDeleteTool(d), map[string]any{"id": saved.ID})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "not found")

	res = call(t, NewUpdateTool(d), map[string]any{"id": saved.ID, "text": "again"})
	assert.True(t, res.IsError)
}

func TestNewServerRegistersTools(t *testing.T) {
	d := newDeps(t)
	s := NewServer("mem0-test", d)
	require.NotNil(t, s)

	names := make([]string, 0, len(Tools(d)))
	for _, tool := range Tools(d) {
		names = append(names, tool.Definition().Name)
	}
	assert.Equal(t, service.Tools, names)

	sse := NewSSE(s, "http://localhost:8484")
	assert.NotNil(t, sse.SSEHandler())
	assert.NotNil(t, sse.MessageHandler())
}

func TestToolsWithoutLogger(t *testing.T) {
	d := newDeps(t)
	d.Logger = nil
	d.Metrics = nil

	res := call(t, Tools(d)[0], map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "Error executing save_memory:")
}
