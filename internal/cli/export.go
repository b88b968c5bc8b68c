package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/memory-server/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export every memory of the user as a JSON array, newest first. The output can be fed to import.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	a := mustOpenApp(cmd)
	defer a.Close()

	records, err := store.Export(cmd.Context(), a.store, cfg.DefaultUserID)
	if err != nil {
		exitErr("export", err)
	}

	printJSON(cmd, records)
}
