package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "where",
		Short: "Print the storage directory and the signal that chose it",
		Run:   runWhere,
	}

	RootCmd.AddCommand(cmd)
}

func runWhere(cmd *cobra.Command, args []string) {
	where := resolveWorkspace()
	printJSON(cmd, map[string]any{
		"dir":        where.Dir,
		"source":     where.Source,
		"provider":   cfg.StorageProvider,
		"userId":     cfg.DefaultUserID,
		"configFile": cfg.ConfigFile,
	})
}
