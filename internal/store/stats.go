package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rcliao/memory-server/internal/model"
)

// Stats holds storage statistics.
type Stats struct {
	BaseDir      string      `json:"base_dir"`
	TotalRecords int         `json:"total_records"`
	TotalIndexed int         `json:"total_indexed"`
	Users        []UserStats `json:"users"`
}

// UserStats holds per-user counts. Records and Indexed differ when the
// summary index has drifted from the record files.
type UserStats struct {
	UserID  string `json:"user_id"`
	Records int    `json:"records"`
	Indexed int    `json:"indexed"`
	Words   int    `json:"words"`
	Drift   bool   `json:"drift"`
}

// Stats walks the users and index directories and reports per-user counts.
func (s *LocalStore) Stats(ctx context.Context) (*Stats, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	st := &Stats{BaseDir: s.baseDir}
	byUser := map[string]*UserStats{}
	get := func(id string) *UserStats {
		u, ok := byUser[id]
		if !ok {
			u = &UserStats{UserID: id}
			byUser[id] = u
		}
		return u
	}

	users, err := os.ReadDir(s.usersDir())
	if err != nil {
		return st, err
	}
	for _, d := range users {
		if !d.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.usersDir(), d.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable user dir", "user", d.Name(), "err", err)
			continue
		}
		u := get(d.Name())
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".json") {
				u.Records++
			}
		}
	}

	indexes, err := os.ReadDir(s.index.dir)
	if err != nil {
		return st, err
	}
	for _, f := range indexes {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		userID := strings.TrimSuffix(f.Name(), ".json")
		idx, err := s.index.Read(userID)
		if err != nil {
			s.logger.Warn("skipping unreadable index", "user", userID, "err", err)
			continue
		}
		u := get(userID)
		u.Indexed = len(idx.Memories)
		for _, e := range idx.Memories {
			u.Words += e.WordCount
		}
	}

	for _, u := range byUser {
		u.Drift = u.Records != u.Indexed
		st.TotalRecords += u.Records
		st.TotalIndexed += u.Indexed
		st.Users = append(st.Users, *u)
	}
	sort.Slice(st.Users, func(i, j int) bool {
		return st.Users[i].UserID < st.Users[j].UserID
	})
	return st, nil
}

// RebuildIndex rewrites a user's index from the record files.
func (s *LocalStore) RebuildIndex(ctx context.Context, userID string) (int, error) {
	records, err := s.GetAll(ctx, userID, ExportLimit)
	if err != nil {
		return 0, err
	}
	idx := &model.UserIndex{Memories: make(map[string]model.IndexEntry, len(records))}
	for _, r := range records {
		idx.Memories[r.ID] = model.IndexEntry{
			Preview:   model.Preview(r.Memory, PreviewLength),
			Timestamp: r.Metadata.String(model.MetaUpdatedAt),
			WordCount: model.WordCount(r.Memory),
		}
	}
	if err := s.index.write(userID, idx); err != nil {
		return 0, err
	}
	return len(records), nil
}
