// Package processor defines the memory-processing collaborator consulted
// before text is stored and before storage search runs.
package processor

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/rcliao/memory-server/internal/model"
)

// Processor transforms memory text and may answer searches itself.
type Processor interface {
	// Process returns the text to store for the given input.
	Process(ctx context.Context, text string) (string, error)

	// Search returns results and true when it answered the query. False
	// defers to storage search.
	Search(ctx context.Context, query, userID string, limit int) ([]model.SearchResult, bool, error)

	// Name identifies the processor in health output.
	Name() string
}

// Config carries the LLM settings a processor would use.
type Config struct {
	Provider string // LLM_PROVIDER
	APIKey   string // LLM_API_KEY
	Model    string // LLM_CHOICE
}

// Defaults applied by New.
const (
	DefaultProvider = "openai"
	DefaultModel    = "gpt-4o-mini"
)

// Passthrough stores text unchanged and never answers searches.
type Passthrough struct {
	cfg    Config
	logger *log.Logger
}

// New returns a Passthrough configured from cfg. A missing API key is
// logged, except for the ollama provider which needs none.
func New(cfg Config, logger *log.Logger) *Passthrough {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKey == "" && !strings.EqualFold(cfg.Provider, "ollama") {
		logger.Warn("LLM_API_KEY not provided, memory processing is limited to passthrough", "provider", cfg.Provider)
	}
	logger.Debug("memory processor ready", "provider", cfg.Provider, "model", cfg.Model)
	return &Passthrough{cfg: cfg, logger: logger}
}

func (p *Passthrough) Process(ctx context.Context, text string) (string, error) {
	return text, nil
}

func (p *Passthrough) Search(ctx context.Context, query, userID string, limit int) ([]model.SearchResult, bool, error) {
	return nil, false, nil
}

func (p *Passthrough) Name() string {
	return "passthrough"
}

// Config returns the effective configuration.
func (p *Passthrough) Config() Config {
	return p.cfg
}
