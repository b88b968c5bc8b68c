// Package store provides the memory storage interface and its providers.
package store

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/rcliao/memory-server/internal/model"
)

var (
	// ErrNotInitialized is returned by data operations issued before Init
	// or after Close.
	ErrNotInitialized = errors.New("storage provider not initialized")

	// ErrInvalidKey is returned for user or record ids that cannot be used
	// as a single path component.
	ErrInvalidKey = errors.New("invalid id")

	// ErrNotImplemented is returned by providers that are declared but not
	// yet backed by an implementation.
	ErrNotImplemented = errors.New("storage provider not implemented")
)

// Provider names accepted by Open.
const (
	ProviderLocal      = "local"
	ProviderSQLite     = "sqlite"
	ProviderPostgreSQL = "postgresql"
)

// Store defines the memory storage interface.
//
// Not-found is reported through the boolean or nil results, never as an
// error.
type Store interface {
	// Init prepares the backing storage. It is idempotent.
	Init(ctx context.Context) error

	// Save stores a new record and returns its generated id.
	Save(ctx context.Context, userID, memory string, meta model.Metadata) (string, error)

	// GetAll returns up to limit records of a user, newest first.
	GetAll(ctx context.Context, userID string, limit int) ([]model.Record, error)

	// Get returns one record, or nil when it does not exist.
	Get(ctx context.Context, id, userID string) (*model.Record, error)

	// Update replaces the memory text and merges meta into the existing
	// metadata. It reports false when the record does not exist.
	Update(ctx context.Context, id, userID, memory string, meta model.Metadata) (bool, error)

	// Delete removes a record. It reports false when the record does not
	// exist.
	Delete(ctx context.Context, id, userID string) (bool, error)

	// Close releases resources and marks the store uninitialized. Stored
	// data is left in place.
	Close() error
}

// Options selects and configures a provider for Open.
type Options struct {
	Provider string
	// BaseDir is the resolved base storage directory.
	BaseDir string
	// SQLitePath overrides <BaseDir>/memories.db for the sqlite provider.
	SQLitePath string
	// DatabaseURL is the DSN for the postgresql provider.
	DatabaseURL string
	// LegacyListing makes the local provider truncate the directory
	// listing before sorting, as older releases did.
	LegacyListing bool
	Logger        *log.Logger
}

// Open builds the provider named in opts and initializes it.
func Open(ctx context.Context, opts Options) (Store, error) {
	var s Store
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderLocal:
		s = NewLocalStore(opts.BaseDir, LocalOptions{
			LegacyListing: opts.LegacyListing,
			Logger:        opts.Logger,
		})
	case ProviderSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.BaseDir, "memories.db")
		}
		s = NewSQLiteStore(path)
	case ProviderPostgreSQL:
		s = NewUnimplementedStore(ProviderPostgreSQL, opts.DatabaseURL)
	default:
		return nil, errors.Errorf("unknown storage provider %q", opts.Provider)
	}

	if err := s.Init(ctx); err != nil {
		return nil, errors.Wrapf(err, "init %s storage", providerName(opts.Provider))
	}
	return s, nil
}

func providerName(p string) string {
	if p == "" {
		return ProviderLocal
	}
	return strings.ToLower(p)
}

// checkKey rejects ids that would escape their directory.
func checkKey(kind, v string) error {
	if v == "" || v == "." || strings.Contains(v, "..") || strings.ContainsAny(v, `/\`) || strings.ContainsRune(v, 0) {
		return errors.Wrapf(ErrInvalidKey, "%s %q", kind, v)
	}
	return nil
}
