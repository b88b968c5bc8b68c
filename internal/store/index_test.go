package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIndexUpsertAndRemove(t *testing.T) {
	x := NewIndex(t.TempDir())

	long := strings.Repeat("é", 150)
	if err := x.Upsert("u", "id1", long, "2024-01-01T00:00:00.000Z"); err != nil {
		t.Fatal(err)
	}
	if err := x.Upsert("u", "id2", "two  words", "2024-01-02T00:00:00.000Z"); err != nil {
		t.Fatal(err)
	}

	idx, err := x.Read("u")
	if err != nil {
		t.Fatal(err)
	}
	if n := len([]rune(idx.Memories["id1"].Preview)); n != PreviewLength {
		t.Errorf("expected preview of %d runes, got %d", PreviewLength, n)
	}
	if idx.Memories["id2"].WordCount != 2 {
		t.Errorf("expected 2 words, got %d", idx.Memories["id2"].WordCount)
	}

	if err := x.Remove("u", "id1"); err != nil {
		t.Fatal(err)
	}
	// Removing an absent entry or from an absent index is a no-op.
	if err := x.Remove("u", "id1"); err != nil {
		t.Fatal(err)
	}
	if err := x.Remove("nobody", "id1"); err != nil {
		t.Fatal(err)
	}

	idx, _ = x.Read("u")
	if len(idx.Memories) != 1 {
		t.Errorf("expected 1 entry, got %d", len(idx.Memories))
	}
}

func TestIndexRecoversFromCorruptFile(t *testing.T) {
	dir := t.TempDir()
	x := NewIndex(dir)
	os.WriteFile(filepath.Join(dir, "u.json"), []byte("garbage"), 0o644)

	if _, err := x.Read("u"); err == nil {
		t.Error("expected parse error")
	}
	if err := x.Remove("u", "id"); err != nil {
		t.Errorf("remove on corrupt index: %v", err)
	}
	if err := x.Upsert("u", "id", "fresh", "2024-01-01T00:00:00.000Z"); err != nil {
		t.Fatal(err)
	}
	idx, err := x.Read("u")
	if err != nil || len(idx.Memories) != 1 {
		t.Errorf("expected fresh index with 1 entry, got %v %v", idx, err)
	}
}
