package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rcliao/memory-server/internal/model"
)

// PreviewLength is the number of characters kept in an index preview.
const PreviewLength = 100

// Index maintains the per-user summary files under <base>/index. The files
// are a denormalized view of the record files and may lag behind them.
type Index struct {
	dir string
}

// NewIndex returns an index rooted at dir.
func NewIndex(dir string) *Index {
	return &Index{dir: dir}
}

func (x *Index) path(userID string) string {
	return filepath.Join(x.dir, userID+".json")
}

// Read loads a user's index. A missing or corrupt file yields an empty
// index together with the read error.
func (x *Index) Read(userID string) (*model.UserIndex, error) {
	idx := &model.UserIndex{Memories: map[string]model.IndexEntry{}}
	data, err := os.ReadFile(x.path(userID))
	if err != nil {
		return idx, err
	}
	if err := json.Unmarshal(data, idx); err != nil {
		return &model.UserIndex{Memories: map[string]model.IndexEntry{}}, errors.Wrap(err, "parse index")
	}
	if idx.Memories == nil {
		idx.Memories = map[string]model.IndexEntry{}
	}
	return idx, nil
}

// Upsert sets the entry for a record. An unreadable index is replaced by a
// fresh one.
func (x *Index) Upsert(userID, id, memory, timestamp string) error {
	idx, _ := x.Read(userID)
	idx.Memories[id] = model.IndexEntry{
		Preview:   model.Preview(memory, PreviewLength),
		Timestamp: timestamp,
		WordCount: model.WordCount(memory),
	}
	return x.write(userID, idx)
}

// Remove drops the entry for a record. A missing or unreadable index, or an
// absent entry, is not an error.
func (x *Index) Remove(userID, id string) error {
	idx, err := x.Read(userID)
	if err != nil {
		return nil
	}
	if _, ok := idx.Memories[id]; !ok {
		return nil
	}
	delete(idx.Memories, id)
	return x.write(userID, idx)
}

func (x *Index) write(userID string, idx *model.UserIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal index")
	}
	if err := os.WriteFile(x.path(userID), data, 0o644); err != nil {
		return errors.Wrapf(err, "write index for %s", userID)
	}
	return nil
}
