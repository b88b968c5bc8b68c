// Package cli implements the memory-server commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/rcliao/memory-server/internal/config"
	"github.com/rcliao/memory-server/internal/logging"
	"github.com/rcliao/memory-server/internal/metrics"
	"github.com/rcliao/memory-server/internal/processor"
	"github.com/rcliao/memory-server/internal/service"
	"github.com/rcliao/memory-server/internal/store"
	"github.com/rcliao/memory-server/internal/workspace"
)

var (
	configPath   string
	storageDir   string
	providerFlag string
	userFlag     string
	debugFlag    bool

	cfg    *config.Config
	logger *log.Logger
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memory-server",
	Short: "Long-term memory for AI agents",
	Long: "Stores agent memories as JSON files inside the current workspace and serves them " +
		"over MCP (stdio or SSE), a JSON HTTP API, and this CLI.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentPreRunE = setup

	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to an mcp.json client config (searched before the default locations)")
	RootCmd.PersistentFlags().StringVarP(&storageDir, "storage-dir", "s", "", "Storage root; memories go to <dir>/.Mem0-Files")
	RootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "Storage provider: local, sqlite, postgresql")
	RootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID (default: $DEFAULT_USER_ID or \"user\")")
	RootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

// setup loads .env and the configuration before every command.
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "load .env")
	}

	boot := logging.New(os.Stderr, debugFlag)
	c, err := config.Load(config.Options{
		ConfigPath: configPath,
		Overrides:  flagOverrides(),
		Logger:     logging.Component(boot, "config"),
	})
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	cfg = c
	logger = logging.New(os.Stderr, cfg.Debug)
	if cfg.ConfigFile != "" {
		logger.Debug("applied client config", "path", cfg.ConfigFile)
	}
	return nil
}

// flagOverrides returns the configuration keys set explicitly on the
// command line.
func flagOverrides() map[string]any {
	out := map[string]any{}
	flags := RootCmd.PersistentFlags()
	if flags.Changed("storage-dir") {
		out[config.KeyStorageDirectory] = storageDir
	}
	if flags.Changed("provider") {
		out[config.KeyStorageProvider] = providerFlag
	}
	if flags.Changed("user") {
		out[config.KeyDefaultUserID] = userFlag
	}
	if flags.Changed("debug") {
		out[config.KeyDebug] = debugFlag
	}
	return out
}

// app bundles what a command needs to reach the memories.
type app struct {
	where   workspace.Resolution
	store   store.Store
	svc     *service.Service
	metrics *metrics.Exporter
}

func resolveWorkspace() workspace.Resolution {
	return workspace.Resolve(cfg.Workspace("", logging.Component(logger, "workspace")))
}

func openApp(cmd *cobra.Command) (*app, error) {
	where := resolveWorkspace()
	st, err := store.Open(cmd.Context(), store.Options{
		Provider:      cfg.StorageProvider,
		BaseDir:       where.Dir,
		SQLitePath:    cfg.SQLitePath,
		DatabaseURL:   cfg.DatabaseURL,
		LegacyListing: cfg.LegacyListing,
		Logger:        logging.Component(logger, "store"),
	})
	if err != nil {
		return nil, err
	}

	exporter := metrics.New()
	svc := service.New(service.Options{
		Store:       st,
		Processor:   processor.New(cfg.LLM, logging.Component(logger, "processor")),
		Metrics:     exporter,
		Logger:      logging.Component(logger, "service"),
		Provider:    cfg.StorageProvider,
		SearchLimit: cfg.MaxSearchResults,
	})
	return &app{where: where, store: st, svc: svc, metrics: exporter}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("close store", "err", err)
	}
}

func mustOpenApp(cmd *cobra.Command) *app {
	a, err := openApp(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	return a
}

// readText takes the text from the positional args, or from stdin when it
// is piped.
func readText(cmd *cobra.Command, args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return ""
		}
	}
	b, err := io.ReadAll(in)
	if err != nil {
		exitErr("read stdin", err)
	}
	return string(b)
}

func printJSON(cmd *cobra.Command, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
