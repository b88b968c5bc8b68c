// Package model defines the core memory data types.
package model

import (
	"strings"
	"time"
)

// TimeFormat is the timestamp layout written into record metadata and index
// entries: RFC 3339, UTC, millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Well-known metadata keys.
const (
	MetaOriginalText = "originalText"
	MetaCreatedAt    = "createdAt"
	MetaUpdatedAt    = "updatedAt"
	MetaTimestamp    = "timestamp"
)

// Metadata is the open key/value bag stored with every record.
type Metadata map[string]any

// Record represents one stored memory. It is persisted as-is, one JSON file
// per record.
type Record struct {
	ID       string   `json:"id"`
	UserID   string   `json:"userId"`
	Memory   string   `json:"memory"`
	Metadata Metadata `json:"metadata"`
}

// SearchResult wraps a record with its relevance score.
type SearchResult struct {
	Record
	RelevanceScore int `json:"relevanceScore"`
}

// IndexEntry is the per-record summary kept in a user's index file.
type IndexEntry struct {
	Preview   string `json:"preview"`
	Timestamp string `json:"timestamp"`
	WordCount int    `json:"wordCount"`
}

// UserIndex is the on-disk shape of index/<userId>.json.
type UserIndex struct {
	Memories map[string]IndexEntry `json:"memories"`
}

// FormatTime renders t in TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// String returns the string value stored under key, or "".
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Time parses the timestamp stored under key. Missing or malformed values
// yield the zero time.
func (m Metadata) Time(key string) time.Time {
	s := m.String(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+3)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// OriginalText returns metadata.originalText.
func (r Record) OriginalText() string {
	return r.Metadata.String(MetaOriginalText)
}

// CreatedAt returns metadata.createdAt.
func (r Record) CreatedAt() time.Time {
	return r.Metadata.Time(MetaCreatedAt)
}

// UpdatedAt returns metadata.updatedAt.
func (r Record) UpdatedAt() time.Time {
	return r.Metadata.Time(MetaUpdatedAt)
}

// Preview truncates s to at most n runes.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// WordCount counts whitespace-separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
