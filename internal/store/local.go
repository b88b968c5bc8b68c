package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/rcliao/memory-server/internal/model"
)

// DefaultListLimit is used by GetAll when no positive limit is given.
const DefaultListLimit = 50

// LocalOptions configures a LocalStore.
type LocalOptions struct {
	// LegacyListing truncates the directory listing to the limit before
	// sorting by creation time.
	LegacyListing bool
	Logger        *log.Logger
	// Now overrides the clock used for createdAt and updatedAt.
	Now func() time.Time
}

// LocalStore implements Store as one JSON file per record:
//
//	<base>/users/<userId>/<id>.json
//	<base>/index/<userId>.json
type LocalStore struct {
	baseDir     string
	index       *Index
	legacy      bool
	logger      *log.Logger
	now         func() time.Time
	initialized bool
}

// NewLocalStore returns a store rooted at baseDir. Init must be called
// before use.
func NewLocalStore(baseDir string, opts LocalOptions) *LocalStore {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &LocalStore{
		baseDir: baseDir,
		index:   NewIndex(filepath.Join(baseDir, "index")),
		legacy:  opts.LegacyListing,
		logger:  logger,
		now:     now,
	}
}

// BaseDir returns the base storage directory.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// Index returns the store's summary index.
func (s *LocalStore) Index() *Index {
	return s.index
}

func (s *LocalStore) usersDir() string {
	return filepath.Join(s.baseDir, "users")
}

func (s *LocalStore) userDir(userID string) string {
	return filepath.Join(s.usersDir(), userID)
}

func (s *LocalStore) recordPath(userID, id string) string {
	return filepath.Join(s.userDir(userID), id+".json")
}

func (s *LocalStore) Init(ctx context.Context) error {
	for _, dir := range []string{s.baseDir, s.usersDir(), filepath.Join(s.baseDir, "index")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create storage dir")
		}
	}
	s.initialized = true

	abs, err := filepath.Abs(s.baseDir)
	if err != nil {
		abs = s.baseDir
	}
	s.logger.Info("local storage initialized", "dir", abs)
	return nil
}

func (s *LocalStore) ready(userID string, ids ...string) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if err := checkKey("user id", userID); err != nil {
		return err
	}
	for _, id := range ids {
		if err := checkKey("memory id", id); err != nil {
			return err
		}
	}
	return nil
}

func (s *LocalStore) Save(ctx context.Context, userID, memory string, meta model.Metadata) (string, error) {
	if err := s.ready(userID); err != nil {
		return "", err
	}

	id := uuid.NewString()
	ts := model.FormatTime(s.now())

	md := meta.Clone()
	md[model.MetaCreatedAt] = ts
	md[model.MetaUpdatedAt] = ts

	if err := os.MkdirAll(s.userDir(userID), 0o755); err != nil {
		return "", errors.Wrap(err, "create user dir")
	}
	rec := model.Record{ID: id, UserID: userID, Memory: memory, Metadata: md}
	if err := s.writeRecord(rec); err != nil {
		return "", err
	}

	s.bestEffort("index upsert", s.index.Upsert(userID, id, memory, ts))
	s.logger.Debug("saved memory", "id", id, "user", userID)
	return id, nil
}

func (s *LocalStore) GetAll(ctx context.Context, userID string, limit int) ([]model.Record, error) {
	if err := s.ready(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	entries, err := os.ReadDir(s.userDir(userID))
	if os.IsNotExist(err) {
		return []model.Record{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "list user dir")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if s.legacy && len(names) > limit {
		names = names[:limit]
	}

	records := make([]model.Record, 0, len(names))
	for _, name := range names {
		rec, err := readRecord(filepath.Join(s.userDir(userID), name))
		if err != nil {
			s.logger.Warn("skipping unreadable memory file", "file", name, "err", err)
			continue
		}
		records = append(records, *rec)
	}

	sortByCreated(records)
	if len(records) > limit {
		records = records[:limit]
	}
	s.logger.Debug("listed memories", "user", userID, "count", len(records))
	return records, nil
}

func (s *LocalStore) Get(ctx context.Context, id, userID string) (*model.Record, error) {
	if err := s.ready(userID, id); err != nil {
		return nil, err
	}
	rec, err := readRecord(s.recordPath(userID, id))
	switch {
	case err == nil:
		return rec, nil
	case os.IsNotExist(errors.Cause(err)):
		return nil, nil
	case errors.Is(err, errCorruptRecord):
		s.logger.Warn("unreadable memory file", "id", id, "user", userID, "err", err)
		return nil, nil
	default:
		return nil, errors.Wrapf(err, "read memory %s", id)
	}
}

func (s *LocalStore) Update(ctx context.Context, id, userID, memory string, meta model.Metadata) (bool, error) {
	if err := s.ready(userID, id); err != nil {
		return false, err
	}

	existing, err := readRecord(s.recordPath(userID, id))
	switch {
	case err == nil:
	case os.IsNotExist(errors.Cause(err)):
		s.logger.Warn("memory not found", "id", id, "user", userID)
		return false, nil
	case errors.Is(err, errCorruptRecord):
		s.logger.Warn("unreadable memory file", "id", id, "user", userID, "err", err)
		return false, nil
	default:
		return false, errors.Wrapf(err, "read memory %s", id)
	}

	md := lo.Assign(existing.Metadata.Clone(), meta)
	if created, ok := existing.Metadata[model.MetaCreatedAt]; ok {
		md[model.MetaCreatedAt] = created
	}
	ts := model.FormatTime(s.now())
	md[model.MetaUpdatedAt] = ts

	existing.Memory = memory
	existing.Metadata = md
	if err := s.writeRecord(*existing); err != nil {
		return false, err
	}

	s.bestEffort("index upsert", s.index.Upsert(userID, id, memory, ts))
	s.logger.Debug("updated memory", "id", id, "user", userID)
	return true, nil
}

func (s *LocalStore) Delete(ctx context.Context, id, userID string) (bool, error) {
	if err := s.ready(userID, id); err != nil {
		return false, err
	}

	path := s.recordPath(userID, id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		s.logger.Warn("memory not found", "id", id, "user", userID)
		return false, nil
	} else if err != nil {
		return false, errors.Wrapf(err, "stat memory %s", id)
	}
	if err := os.Remove(path); err != nil {
		return false, errors.Wrap(err, "remove memory file")
	}

	s.bestEffort("index remove", s.index.Remove(userID, id))
	s.logger.Debug("deleted memory", "id", id, "user", userID)
	return true, nil
}

func (s *LocalStore) Close() error {
	s.initialized = false
	s.logger.Info("local storage closed")
	return nil
}

// bestEffort logs a failed secondary write without failing the caller.
func (s *LocalStore) bestEffort(op string, err error) {
	if err != nil {
		s.logger.Warn("index update failed", "op", op, "err", err)
	}
}

func (s *LocalStore) writeRecord(rec model.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal memory")
	}
	if err := os.WriteFile(s.recordPath(rec.UserID, rec.ID), data, 0o644); err != nil {
		return errors.Wrapf(err, "write memory %s", rec.ID)
	}
	return nil
}

// errCorruptRecord marks a record file that exists but does not decode.
var errCorruptRecord = errors.New("corrupt memory file")

func readRecord(path string) (*model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(errCorruptRecord, "parse %s: %v", filepath.Base(path), err)
	}
	return &rec, nil
}

// sortByCreated orders records newest first. Records without a parsable
// createdAt sort last.
func sortByCreated(records []model.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt().After(records[j].CreatedAt())
	})
}
