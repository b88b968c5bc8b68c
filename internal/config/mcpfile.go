package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/rcliao/memory-server/internal/workspace"
)

// ServerMarker selects the mcpServers entry this server reads.
const ServerMarker = "mem0"

// ServerEntry is one mcpServers entry of a client mcp.json.
type ServerEntry struct {
	Description      string         `json:"description"`
	URL              string         `json:"url"`
	Env              map[string]any `json:"env"`
	StorageProvider  string         `json:"storage_provider"`
	StorageDirectory string         `json:"storage_directory"`
	DefaultUserID    string         `json:"default_user_id"`
	MaxSearchResults int            `json:"max_search_results"`
}

func (e ServerEntry) matches(name string) bool {
	return strings.Contains(name, ServerMarker) ||
		strings.Contains(strings.ToLower(e.Description), ServerMarker) ||
		strings.Contains(e.URL, ServerMarker)
}

type clientFile struct {
	path   string
	name   string
	server ServerEntry
}

// CandidatePaths lists where mcp.json is looked for, in order.
func CandidatePaths(v *viper.Viper, explicit, cwd string, logger *log.Logger) []string {
	var paths []string
	add := func(dir string) {
		if dir == "" {
			return
		}
		paths = append(paths, filepath.Join(dir, ".roo", "mcp.json"), filepath.Join(dir, "mcp.json"))
	}
	differs := func(dir string) bool {
		if dir == "" {
			return false
		}
		a, _ := filepath.Abs(dir)
		b, _ := filepath.Abs(cwd)
		return a != b
	}

	if explicit != "" {
		paths = append(paths, explicit)
	}
	add(v.GetString(KeyProjectDir))
	add(v.GetString(KeyVSCodeWorkspace))
	add(v.GetString(KeyVSCodeCWD))
	if pwd := v.GetString(KeyPWD); differs(pwd) {
		add(pwd)
	}
	if initCwd := v.GetString(KeyInitCWD); differs(initCwd) {
		add(initCwd)
	}
	if root, ok := workspace.DetectProjectRoot(cwd, envFrom(v).Home, logger); ok {
		add(root)
	}
	add(cwd)
	if p := v.GetString(KeyMCPConfigPath); p != "" {
		paths = append(paths, p)
	}
	return lo.Uniq(paths)
}

// discover returns the first readable mcp.json with a matching server
// entry. The first file that parses ends the search even when it has no
// matching entry.
func discover(v *viper.Viper, explicit, cwd string, logger *log.Logger) (*clientFile, error) {
	for _, p := range CandidatePaths(v, explicit, cwd, logger) {
		data, err := os.ReadFile(p)
		if err != nil {
			logger.Debug("config file not found", "path", p, "err", err)
			continue
		}
		name, entry, err := ParseClientConfig(data)
		if err != nil {
			logger.Debug("config file unusable", "path", p, "err", err)
			continue
		}
		logger.Info("found MCP configuration", "path", p)
		if name == "" {
			logger.Warn("no mem0 server configuration found", "path", p)
			return nil, nil
		}
		logger.Info("using configuration from server", "server", name)
		return &clientFile{path: p, name: name, server: entry}, nil
	}
	logger.Debug("no MCP configuration file found")
	return nil, nil
}

// ParseClientConfig decodes an mcp.json document and returns the first
// mcpServers entry, in document order, that refers to this server. An
// empty name means the document has no such entry.
func ParseClientConfig(data []byte) (string, ServerEntry, error) {
	var doc struct {
		MCPServers json.RawMessage `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", ServerEntry{}, errors.Wrap(err, "parse mcp.json")
	}
	if len(doc.MCPServers) == 0 {
		return "", ServerEntry{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(doc.MCPServers))
	tok, err := dec.Token()
	if err != nil {
		return "", ServerEntry{}, errors.Wrap(err, "parse mcpServers")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", ServerEntry{}, errors.New("mcpServers is not an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", ServerEntry{}, errors.Wrap(err, "parse mcpServers")
		}
		name, _ := tok.(string)

		var entry ServerEntry
		if err := dec.Decode(&entry); err != nil {
			return "", ServerEntry{}, errors.Wrapf(err, "parse server %q", name)
		}
		if entry.matches(name) {
			return name, entry, nil
		}
	}
	return "", ServerEntry{}, nil
}

func (f *clientFile) apply(v *viper.Viper, logger *log.Logger) {
	for k, val := range f.server.Env {
		key := strings.ToLower(k)
		if !lo.Contains(envKeys, key) {
			logger.Debug("ignoring unknown env override", "key", k)
			continue
		}
		v.Set(key, fmt.Sprint(val))
		logger.Debug("env override", "key", k)
	}

	v.Set(KeyMCPServerName, f.name)
	if f.server.StorageProvider != "" {
		v.Set(KeyStorageProvider, f.server.StorageProvider)
	}
	if f.server.DefaultUserID != "" {
		v.Set(KeyDefaultUserID, f.server.DefaultUserID)
	}
	if f.server.MaxSearchResults > 0 {
		v.Set(KeyMaxSearchResults, f.server.MaxSearchResults)
	}
	if dir := f.server.StorageDirectory; dir != "" {
		if err := ValidateStorageDir(dir); err != nil {
			logger.Warn("invalid storage directory in MCP config, falling back", "dir", dir, "err", err)
		} else {
			v.Set(KeyStorageDirectory, dir)
		}
	}
}

// ValidateStorageDir creates dir if needed and checks it is writable.
func ValidateStorageDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return errors.Wrap(err, "create storage dir")
	}
	probe := filepath.Join(abs, ".write-test")
	if err := os.WriteFile(probe, []byte("test"), 0o644); err != nil {
		return errors.Wrap(err, "write probe")
	}
	return os.Remove(probe)
}
