package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	id := args[0]

	a := mustOpenApp(cmd)
	defer a.Close()

	rec, err := a.svc.GetMemory(cmd.Context(), id, cfg.DefaultUserID)
	if err != nil {
		exitErr("get", err)
	}
	if rec == nil {
		exitErr("get", fmt.Errorf("memory %s not found for user %s", id, cfg.DefaultUserID))
	}

	printJSON(cmd, rec)
}
