// Package mcptools exposes the memory service as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"github.com/rcliao/memory-server/internal/metrics"
	"github.com/rcliao/memory-server/internal/service"
)

// Default limits when the caller passes none.
const (
	DefaultListLimit   = 50
	DefaultSearchLimit = 3
)

// Tool is one registrable MCP tool.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Deps are shared by every tool.
type Deps struct {
	Service       *service.Service
	DefaultUserID string
	// SearchLimit overrides DefaultSearchLimit.
	SearchLimit int
	Metrics     *metrics.Exporter
	Logger      *log.Logger
}

func (d *Deps) userID(req mcp.CallToolRequest) string {
	if u := strings.TrimSpace(req.GetString("userId", "")); u != "" {
		return u
	}
	return d.DefaultUserID
}

// finish converts a handler outcome into a tool result. Failures become
// error results rather than protocol errors.
func (d *Deps) finish(name string, text string, err error) (*mcp.CallToolResult, error) {
	d.Metrics.ObserveToolCall(name, err)
	if err != nil {
		logger := d.Logger
		if logger == nil {
			logger = log.Default()
		}
		logger.Error("tool failed", "tool", name, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("Error executing %s: %s", name, err.Error())), nil
	}
	return mcp.NewToolResultText(text), nil
}

func requireText(req mcp.CallToolRequest, key string) (string, error) {
	v, err := req.RequireString(key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", errors.Errorf("%s must not be empty", key)
	}
	return v, nil
}

func pretty(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode result")
	}
	return string(b), nil
}

func userIDOption(defaultUser string) mcp.ToolOption {
	return mcp.WithString("userId",
		mcp.Description(fmt.Sprintf("User ID for memory isolation (optional, defaults to %q)", defaultUser)),
	)
}

// --- save_memory ---

// SaveTool stores a new memory.
type SaveTool struct{ deps *Deps }

func NewSaveTool(d *Deps) *SaveTool { return &SaveTool{deps: d} }

func (t *SaveTool) Definition() mcp.Tool {
	return mcp.NewTool("save_memory",
		mcp.WithDescription("Save information to your long-term memory. Store anything that might be useful later; it can be retrieved with search_memories."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The content to store in memory, including any relevant details and context"),
		),
		userIDOption(t.deps.DefaultUserID),
	)
}

func (t *SaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := requireText(req, "text")
	if err != nil {
		return t.deps.finish("save_memory", "", err)
	}
	res, err := t.deps.Service.SaveMemory(ctx, text, t.deps.userID(req), nil)
	if err != nil {
		return t.deps.finish("save_memory", "", err)
	}
	return t.deps.finish("save_memory", res.Message, nil)
}

// --- get_all_memories ---

// GetAllTool lists every memory of a user.
type GetAllTool struct{ deps *Deps }

func NewGetAllTool(d *Deps) *GetAllTool { return &GetAllTool{deps: d} }

func (t *GetAllTool) Definition() mcp.Tool {
	return mcp.NewTool("get_all_memories",
		mcp.WithDescription("Get all stored memories for the user. Call this when you need the complete context of previously stored memories."),
		userIDOption(t.deps.DefaultUserID),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of memories to return (default: %d)", DefaultListLimit)),
		),
	)
}

func (t *GetAllTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", DefaultListLimit)
	records, err := t.deps.Service.GetAllMemories(ctx, t.deps.userID(req), limit)
	if err != nil {
		return t.deps.finish("get_all_memories", "", err)
	}
	text, err := pretty(records)
	return t.deps.finish("get_all_memories", text, err)
}

// --- search_memories ---

// SearchTool ranks a user's memories against a query.
type SearchTool struct{ deps *Deps }

func NewSearchTool(d *Deps) *SearchTool { return &SearchTool{deps: d} }

func (t *SearchTool) limit() int {
	if t.deps.SearchLimit > 0 {
		return t.deps.SearchLimit
	}
	return DefaultSearchLimit
}

func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_memories",
		mcp.WithDescription("Search memories for relevant information. Results are ranked by relevance. Search before making decisions to reuse existing knowledge."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query describing what you are looking for"),
		),
		userIDOption(t.deps.DefaultUserID),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results to return (default: %d)", t.limit())),
		),
	)
}

func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := requireText(req, "query")
	if err != nil {
		return t.deps.finish("search_memories", "", err)
	}
	results, err := t.deps.Service.SearchMemories(ctx, query, t.deps.userID(req), req.GetInt("limit", t.limit()))
	if err != nil {
		return t.deps.finish("search_memories", "", err)
	}
	text, err := pretty(results)
	return t.deps.finish("search_memories", text, err)
}

// --- update_memory ---

// UpdateTool replaces the text of an existing memory.
type UpdateTool struct{ deps *Deps }

func NewUpdateTool(d *Deps) *UpdateTool { return &UpdateTool{deps: d} }

func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("update_memory",
		mcp.WithDescription("Replace the content of a stored memory by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Memory ID")),
		mcp.WithString("text", mcp.Required(), mcp.Description("The new memory content")),
		userIDOption(t.deps.DefaultUserID),
	)
}

func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireText(req, "id")
	if err != nil {
		return t.deps.finish("update_memory", "", err)
	}
	text, err := requireText(req, "text")
	if err != nil {
		return t.deps.finish("update_memory", "", err)
	}
	ok, err := t.deps.Service.UpdateMemory(ctx, id, t.deps.userID(req), text, nil)
	if err != nil {
		return t.deps.finish("update_memory", "", err)
	}
	if !ok {
		return t.deps.finish("update_memory", "", errors.Errorf("memory %s not found", id))
	}
	return t.deps.finish("update_memory", "Successfully updated memory: "+id, nil)
}

// --- delete_memory ---

// DeleteTool removes a memory.
type DeleteTool struct{ deps *Deps }

func NewDeleteTool(d *Deps) *DeleteTool { return &DeleteTool{deps: d} }

func (t *DeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_memory",
		mcp.WithDescription("Delete a stored memory by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Memory ID")),
		userIDOption(t.deps.DefaultUserID),
	)
}

func (t *DeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireText(req, "id")
	if err != nil {
		return t.deps.finish("delete_memory", "", err)
	}
	ok, err := t.deps.Service.DeleteMemory(ctx, id, t.deps.userID(req))
	if err != nil {
		return t.deps.finish("delete_memory", "", err)
	}
	if !ok {
		return t.deps.finish("delete_memory", "", errors.Errorf("memory %s not found", id))
	}
	return t.deps.finish("delete_memory", "Successfully deleted memory: "+id, nil)
}
