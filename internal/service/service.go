// Package service holds the memory operations shared by the MCP tools, the
// HTTP API and the CLI.
package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/rcliao/memory-server/internal/metrics"
	"github.com/rcliao/memory-server/internal/model"
	"github.com/rcliao/memory-server/internal/processor"
	"github.com/rcliao/memory-server/internal/store"
)

const (
	// Name and Version identify the server in Info and to MCP clients.
	Name    = "memory-server"
	Version = "0.1.0"

	// DefaultSearchLimit applies when SearchMemories gets no positive limit.
	DefaultSearchLimit = 3

	// MessagePreviewLength bounds the text echoed in save messages.
	MessagePreviewLength = 100

	healthUser = "_health"
)

// Tools lists the MCP tool names the server exposes.
var Tools = []string{"save_memory", "get_all_memories", "search_memories", "update_memory", "delete_memory"}

// Options configures a Service.
type Options struct {
	Store     store.Store
	Processor processor.Processor
	Metrics   *metrics.Exporter
	Logger    *log.Logger
	// Provider is the storage provider name reported by Health and Info.
	Provider string
	// SearchLimit overrides DefaultSearchLimit.
	SearchLimit int
	Now         func() time.Time
}

// Service orchestrates processing, persistence and search.
type Service struct {
	store       store.Store
	proc        processor.Processor
	metrics     *metrics.Exporter
	logger      *log.Logger
	provider    string
	searchLimit int
	now         func() time.Time
}

// New returns a Service. A nil Processor means a Passthrough.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	proc := opts.Processor
	if proc == nil {
		proc = processor.New(processor.Config{Provider: "ollama"}, logger)
	}
	limit := opts.SearchLimit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	provider := opts.Provider
	if provider == "" {
		provider = store.ProviderLocal
	}
	return &Service{
		store:       opts.Store,
		proc:        proc,
		metrics:     opts.Metrics,
		logger:      logger,
		provider:    provider,
		searchLimit: limit,
		now:         now,
	}
}

// SaveResult is returned by SaveMemory.
type SaveResult struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// SaveMemory processes text and stores it for userID.
func (s *Service) SaveMemory(ctx context.Context, text, userID string, meta model.Metadata) (res *SaveResult, err error) {
	defer s.observe("save", time.Now(), &err)

	processed, err := s.proc.Process(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "process memory")
	}

	md := meta.Clone()
	if _, ok := md[model.MetaTimestamp]; !ok {
		md[model.MetaTimestamp] = model.FormatTime(s.now())
	}
	md[model.MetaOriginalText] = text

	id, err := s.store.Save(ctx, userID, processed, md)
	if err != nil {
		s.logger.Error("error saving memory", "user", userID, "err", err)
		return nil, err
	}

	s.logger.Info("saved memory", "id", id, "user", userID)
	return &SaveResult{ID: id, Message: SaveMessage(text)}, nil
}

// SaveMessage renders the confirmation for a saved text.
func SaveMessage(text string) string {
	if len([]rune(text)) > MessagePreviewLength {
		return "Successfully saved memory: " + model.Preview(text, MessagePreviewLength) + "..."
	}
	return "Successfully saved memory: " + text
}

// GetAllMemories lists a user's memories, newest first.
func (s *Service) GetAllMemories(ctx context.Context, userID string, limit int) (records []model.Record, err error) {
	defer s.observe("get_all", time.Now(), &err)

	records, err = s.store.GetAll(ctx, userID, limit)
	if err != nil {
		s.logger.Error("error retrieving memories", "user", userID, "err", err)
		return nil, err
	}
	s.logger.Info("retrieved memories", "user", userID, "count", len(records))
	return records, nil
}

// GetMemory returns one memory, or nil when it does not exist.
func (s *Service) GetMemory(ctx context.Context, id, userID string) (rec *model.Record, err error) {
	defer s.observe("get", time.Now(), &err)

	rec, err = s.store.Get(ctx, id, userID)
	if err != nil {
		s.logger.Error("error retrieving memory", "id", id, "user", userID, "err", err)
		return nil, err
	}
	if rec == nil {
		s.logger.Warn("memory not found", "id", id, "user", userID)
	}
	return rec, nil
}

// SearchMemories asks the processor first and falls back to storage search.
// The result is never nil.
func (s *Service) SearchMemories(ctx context.Context, query, userID string, limit int) (results []model.SearchResult, err error) {
	defer s.observe("search", time.Now(), &err)
	if limit <= 0 {
		limit = s.searchLimit
	}

	results, ok, err := s.proc.Search(ctx, query, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "processor search")
	}
	if !ok {
		results, err = store.Search(ctx, s.store, store.SearchParams{UserID: userID, Query: query, Limit: limit})
		if err != nil {
			s.logger.Error("error searching memories", "user", userID, "err", err)
			return nil, err
		}
	}
	if results == nil {
		results = []model.SearchResult{}
	}

	s.metrics.ObserveSearchResults(len(results))
	s.logger.Info("searched memories", "query", query, "user", userID, "count", len(results))
	return results, nil
}

// UpdateMemory processes text and replaces the memory. It reports false
// when the memory does not exist.
func (s *Service) UpdateMemory(ctx context.Context, id, userID, text string, meta model.Metadata) (ok bool, err error) {
	defer s.observe("update", time.Now(), &err)

	processed, err := s.proc.Process(ctx, text)
	if err != nil {
		return false, errors.Wrap(err, "process memory")
	}

	md := meta.Clone()
	md[model.MetaOriginalText] = text

	ok, err = s.store.Update(ctx, id, userID, processed, md)
	if err != nil {
		s.logger.Error("error updating memory", "id", id, "user", userID, "err", err)
		return false, err
	}
	if ok {
		s.logger.Info("updated memory", "id", id, "user", userID)
	} else {
		s.logger.Warn("memory not found for update", "id", id, "user", userID)
	}
	return ok, nil
}

// DeleteMemory removes a memory. It reports false when the memory does not
// exist.
func (s *Service) DeleteMemory(ctx context.Context, id, userID string) (ok bool, err error) {
	defer s.observe("delete", time.Now(), &err)

	ok, err = s.store.Delete(ctx, id, userID)
	if err != nil {
		s.logger.Error("error deleting memory", "id", id, "user", userID, "err", err)
		return false, err
	}
	if ok {
		s.logger.Info("deleted memory", "id", id, "user", userID)
	} else {
		s.logger.Warn("memory not found for delete", "id", id, "user", userID)
	}
	return ok, nil
}

func (s *Service) observe(op string, started time.Time, err *error) {
	s.metrics.ObserveOperation(op, started, *err)
}

// Health is the payload of the health endpoint.
type Health struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Storage   StorageHealth   `json:"storage"`
	Processor ProcessorHealth `json:"processor"`
	Error     string          `json:"error,omitempty"`
}

type StorageHealth struct {
	Provider    string `json:"provider"`
	Initialized bool   `json:"initialized"`
}

type ProcessorHealth struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Healthy reports whether the status is healthy.
func (h Health) Healthy() bool {
	return h.Status == "healthy"
}

// Health probes the store with a read.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		Status:    "healthy",
		Timestamp: model.FormatTime(s.now()),
		Storage:   StorageHealth{Provider: s.provider, Initialized: true},
		Processor: ProcessorHealth{Name: s.proc.Name(), Enabled: true},
	}
	if _, err := s.store.GetAll(ctx, healthUser, 1); err != nil {
		h.Status = "unhealthy"
		h.Storage.Initialized = !errors.Is(err, store.ErrNotInitialized)
		h.Error = err.Error()
	}
	return h
}

// Info describes the server.
type Info struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Description  string       `json:"description"`
	Capabilities Capabilities `json:"capabilities"`
	Timestamp    string       `json:"timestamp"`
}

type Capabilities struct {
	Tools      []string `json:"tools"`
	Transports []string `json:"transports"`
	Storage    string   `json:"storage"`
	Processor  string   `json:"processor"`
}

// Info returns the server description.
func (s *Service) Info() Info {
	return Info{
		Name:        Name,
		Version:     Version,
		Description: "MCP server for long term memory storage and retrieval",
		Capabilities: Capabilities{
			Tools:      Tools,
			Transports: []string{"stdio", "sse", "http"},
			Storage:    s.provider,
			Processor:  s.proc.Name(),
		},
		Timestamp: model.FormatTime(s.now()),
	}
}
