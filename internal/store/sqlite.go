package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/rcliao/memory-server/internal/model"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	path string
	db   *sql.DB
	now  func() time.Time
}

// NewSQLiteStore returns a store backed by the database at dbPath. The file
// is created by Init.
func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{path: dbPath, now: time.Now}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create db dir")
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return errors.Wrap(err, "open db")
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return errors.Wrap(err, "migrate")
	}
	s.db = db
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		memory     TEXT NOT NULL,
		meta       TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at DESC);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) ready(userID string, ids ...string) error {
	if s.db == nil {
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

func (s *SQLiteStore) Save(ctx context.Context, userID, memory string, meta model.Metadata) (string, error) {
	if err := s.ready(userID); err != nil {
		return "", err
	}

	id := uuid.NewString()
	ts := model.FormatTime(s.now())
	md := meta.Clone()
	md[model.MetaCreatedAt] = ts
	md[model.MetaUpdatedAt] = ts

	metaJSON, err := json.Marshal(md)
	if err != nil {
		return "", errors.Wrap(err, "marshal metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, memory, meta, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, memory, string(metaJSON), ts, ts)
	if err != nil {
		return "", errors.Wrap(err, "insert memory")
	}
	return id, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, userID string, limit int) ([]model.Record, error) {
	if err := s.ready(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, memory, meta FROM memories
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query memories")
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id, userID string) (*model.Record, error) {
	if err := s.ready(userID, id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, memory, meta FROM memories WHERE id = ? AND user_id = ?`, id, userID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id, userID, memory string, meta model.Metadata) (bool, error) {
	existing, err := s.Get(ctx, id, userID)
	if err != nil || existing == nil {
		return false, err
	}

	md := existing.Metadata.Clone()
	for k, v := range meta {
		md[k] = v
	}
	if created, ok := existing.Metadata[model.MetaCreatedAt]; ok {
		md[model.MetaCreatedAt] = created
	}
	ts := model.FormatTime(s.now())
	md[model.MetaUpdatedAt] = ts

	metaJSON, err := json.Marshal(md)
	if err != nil {
		return false, errors.Wrap(err, "marshal metadata")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET memory = ?, meta = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		memory, string(metaJSON), ts, id, userID)
	if err != nil {
		return false, errors.Wrap(err, "update memory")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id, userID string) (bool, error) {
	if err := s.ready(userID, id); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, errors.Wrap(err, "delete memory")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (model.Record, error) {
	var r model.Record
	var meta string
	if err := row.Scan(&r.ID, &r.UserID, &r.Memory, &meta); err != nil {
		return r, err
	}
	r.Metadata = model.Metadata{}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return r, errors.Wrapf(err, "parse metadata of %s", r.ID)
		}
	}
	return r, nil
}
