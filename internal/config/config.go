// Package config assembles the server configuration from defaults, the
// process environment, an optional mcp.json client file and CLI flags, in
// increasing order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/rcliao/memory-server/internal/processor"
	"github.com/rcliao/memory-server/internal/workspace"
)

// Configuration keys. Each is bound to the environment variable of the
// same name in upper case.
const (
	KeyTransport         = "transport"
	KeyHost              = "host"
	KeyPort              = "port"
	KeyStorageProvider   = "storage_provider"
	KeyStorageDirectory  = "storage_directory"
	KeyDefaultUserID     = "default_user_id"
	KeyDebug             = "debug"
	KeyHTTPServerEnabled = "http_server_enabled"
	KeyHTTPServerHost    = "http_server_host"
	KeyHTTPServerPort    = "http_server_port"
	KeyAPIToken          = "api_token"
	KeyMCPServerName     = "mcp_server_name"
	KeyRateLimitWindowMS = "rate_limit_window_ms"
	KeyRateLimitMax      = "rate_limit_max_requests"
	KeyCORSOrigins       = "cors_origins"
	KeyNodeEnv           = "node_env"
	KeyDatabaseURL       = "database_url"
	KeySQLitePath        = "sqlite_path"
	KeyLLMProvider       = "llm_provider"
	KeyLLMAPIKey         = "llm_api_key"
	KeyLLMChoice         = "llm_choice"
	KeyMaxSearchResults  = "max_search_results"
	KeyLegacyListing     = "legacy_listing"
	KeyLocalStorageDir   = "local_storage_dir"
	KeyProjectDir        = "project_dir"
	KeyVSCodeWorkspace   = "vscode_workspace_folder"
	KeyVSCodeCWD         = "vscode_cwd"
	KeyPWD               = "pwd"
	KeyInitCWD           = "init_cwd"
	KeyHome              = "home"
	KeyMCPConfigPath     = "mcp_config_path"
)

// DefaultServerName is the MCP server name used when nothing else is set.
const DefaultServerName = "mem0-http"

// DefaultCORSOrigins allow any local development origin.
var DefaultCORSOrigins = []string{"http://localhost:*", "https://localhost:*"}

var envKeys = []string{
	KeyTransport, KeyHost, KeyPort, KeyStorageProvider, KeyDefaultUserID, KeyDebug,
	KeyHTTPServerEnabled, KeyHTTPServerHost, KeyHTTPServerPort, KeyAPIToken, KeyMCPServerName,
	KeyRateLimitWindowMS, KeyRateLimitMax, KeyCORSOrigins, KeyNodeEnv, KeyDatabaseURL,
	KeySQLitePath, KeyLLMProvider, KeyLLMAPIKey, KeyLLMChoice, KeyMaxSearchResults,
	KeyLegacyListing, KeyLocalStorageDir, KeyProjectDir, KeyVSCodeWorkspace, KeyVSCodeCWD,
	KeyPWD, KeyInitCWD, KeyHome, KeyMCPConfigPath,
}

// Config is the resolved server configuration.
type Config struct {
	Transport       string
	Host            string
	Port            int
	StorageProvider string
	// StorageDirectory is an explicit storage root from a flag or mcp.json.
	StorageDirectory string
	DefaultUserID    string
	Debug            bool

	HTTPServerEnabled bool
	HTTPServerHost    string
	HTTPServerPort    int
	APIToken          string
	RateLimitWindow   time.Duration
	RateLimitMax      int
	CORSOrigins       []string
	Mode              string

	MCPServerName    string
	MaxSearchResults int

	DatabaseURL   string
	SQLitePath    string
	LegacyListing bool

	LLM processor.Config
	Env workspace.Env

	// ConfigFile is the mcp.json that was applied, if any.
	ConfigFile string
}

// Production reports whether NODE_ENV is production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Mode, "production") || strings.EqualFold(c.Mode, "prod")
}

// Workspace returns resolver options for this configuration.
func (c *Config) Workspace(cwd string, logger *log.Logger) workspace.Options {
	return workspace.Options{
		StorageDir: c.StorageDirectory,
		Cwd:        cwd,
		Env:        c.Env,
		Logger:     logger,
	}
}

// Options controls Load.
type Options struct {
	// ConfigPath is an explicit mcp.json path searched before all others.
	ConfigPath string
	// Cwd is the working directory. Empty means os.Getwd.
	Cwd string
	// Overrides are values set on the command line, keyed like the
	// configuration keys. They beat every other source.
	Overrides map[string]any
	Logger    *log.Logger
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyTransport, "sse")
	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 8484)
	v.SetDefault(KeyStorageProvider, "local")
	v.SetDefault(KeyDefaultUserID, "user")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyHTTPServerEnabled, false)
	v.SetDefault(KeyMCPServerName, DefaultServerName)
	v.SetDefault(KeyRateLimitWindowMS, 15*60*1000)
	v.SetDefault(KeyRateLimitMax, 100)
	v.SetDefault(KeyNodeEnv, "development")
	v.SetDefault(KeyLLMProvider, processor.DefaultProvider)
	v.SetDefault(KeyLLMChoice, processor.DefaultModel)
	v.SetDefault(KeyMaxSearchResults, 3)
	v.SetDefault(KeyLegacyListing, false)

	for _, k := range envKeys {
		// BindEnv only fails without a key.
		_ = v.BindEnv(k, strings.ToUpper(k))
	}
	return v
}

// Load resolves the configuration.
func Load(opts Options) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	cwd := opts.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cwd = wd
	}

	v := New()

	file, err := discover(v, opts.ConfigPath, cwd, logger)
	if err != nil {
		return nil, err
	}
	if file != nil {
		file.apply(v, logger)
	}

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	cfg := fromViper(v)
	if file != nil {
		cfg.ConfigFile = file.path
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Transport:         v.GetString(KeyTransport),
		Host:              v.GetString(KeyHost),
		Port:              v.GetInt(KeyPort),
		StorageProvider:   v.GetString(KeyStorageProvider),
		StorageDirectory:  v.GetString(KeyStorageDirectory),
		DefaultUserID:     v.GetString(KeyDefaultUserID),
		Debug:             v.GetBool(KeyDebug),
		HTTPServerEnabled: v.GetBool(KeyHTTPServerEnabled),
		HTTPServerHost:    v.GetString(KeyHTTPServerHost),
		HTTPServerPort:    v.GetInt(KeyHTTPServerPort),
		APIToken:          v.GetString(KeyAPIToken),
		RateLimitWindow:   time.Duration(v.GetInt64(KeyRateLimitWindowMS)) * time.Millisecond,
		RateLimitMax:      v.GetInt(KeyRateLimitMax),
		CORSOrigins:       splitList(v.GetString(KeyCORSOrigins)),
		Mode:              v.GetString(KeyNodeEnv),
		MCPServerName:     v.GetString(KeyMCPServerName),
		MaxSearchResults:  v.GetInt(KeyMaxSearchResults),
		DatabaseURL:       v.GetString(KeyDatabaseURL),
		SQLitePath:        v.GetString(KeySQLitePath),
		LegacyListing:     v.GetBool(KeyLegacyListing),
		LLM: processor.Config{
			Provider: v.GetString(KeyLLMProvider),
			APIKey:   v.GetString(KeyLLMAPIKey),
			Model:    v.GetString(KeyLLMChoice),
		},
		Env: envFrom(v),
	}

	if cfg.HTTPServerHost == "" {
		cfg.HTTPServerHost = cfg.Host
	}
	if cfg.HTTPServerPort <= 0 {
		cfg.HTTPServerPort = cfg.Port
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = DefaultCORSOrigins
	}
	if cfg.MCPServerName == "" {
		cfg.MCPServerName = DefaultServerName
	}
	if cfg.DefaultUserID == "" {
		cfg.DefaultUserID = "user"
	}
	return cfg
}

func envFrom(v *viper.Viper) workspace.Env {
	home := v.GetString(KeyHome)
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return workspace.Env{
		StorageDir:      v.GetString(KeyLocalStorageDir),
		ProjectDir:      v.GetString(KeyProjectDir),
		WorkspaceFolder: v.GetString(KeyVSCodeWorkspace),
		VSCodeCWD:       v.GetString(KeyVSCodeCWD),
		PWD:             v.GetString(KeyPWD),
		InitCWD:         v.GetString(KeyInitCWD),
		Home:            home,
	}
}

func splitList(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Compact(parts)
}
