package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-server/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show storage statistics",
		Long:  "Show per-user record and index counts for the local provider. With --rebuild-index, rewrite the user's index from the record files first.",
		Run:   runStats,
	}

	cmd.Flags().Bool("rebuild-index", false, "Rebuild the index of the current user before reporting")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	rebuild, _ := cmd.Flags().GetBool("rebuild-index")

	a := mustOpenApp(cmd)
	defer a.Close()

	local, ok := a.store.(*store.LocalStore)
	if !ok {
		exitErr("stats", fmt.Errorf("stats requires the %s provider, got %s", store.ProviderLocal, cfg.StorageProvider))
	}

	if rebuild {
		n, err := local.RebuildIndex(cmd.Context(), cfg.DefaultUserID)
		if err != nil {
			exitErr("rebuild index", err)
		}
		logger.Info("rebuilt index", "user", cfg.DefaultUserID, "entries", n)
	}

	stats, err := local.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	printJSON(cmd, stats)
}
