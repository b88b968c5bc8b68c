package store

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/rcliao/memory-server/internal/model"
)

// UnimplementedStore is a declared provider with no backing implementation.
// Init validates its configuration and then fails with ErrNotImplemented.
type UnimplementedStore struct {
	name string
	dsn  string
}

// NewUnimplementedStore returns the placeholder for provider name.
func NewUnimplementedStore(name, dsn string) *UnimplementedStore {
	return &UnimplementedStore{name: name, dsn: dsn}
}

func (s *UnimplementedStore) Init(ctx context.Context) error {
	if s.dsn == "" {
		return errors.New("DATABASE_URL is required")
	}
	if _, err := pq.ParseURL(s.dsn); err != nil {
		return errors.Wrap(err, "parse DATABASE_URL")
	}
	return errors.Wrap(ErrNotImplemented, s.name)
}

func (s *UnimplementedStore) Save(ctx context.Context, userID, memory string, meta model.Metadata) (string, error) {
	return "", ErrNotImplemented
}

func (s *UnimplementedStore) GetAll(ctx context.Context, userID string, limit int) ([]model.Record, error) {
	return nil, ErrNotImplemented
}

func (s *UnimplementedStore) Get(ctx context.Context, id, userID string) (*model.Record, error) {
	return nil, ErrNotImplemented
}

func (s *UnimplementedStore) Update(ctx context.Context, id, userID, memory string, meta model.Metadata) (bool, error) {
	return false, ErrNotImplemented
}

func (s *UnimplementedStore) Delete(ctx context.Context, id, userID string) (bool, error) {
	return false, ErrNotImplemented
}

func (s *UnimplementedStore) Close() error {
	return nil
}
