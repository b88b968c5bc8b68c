package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	id := args[0]

	a := mustOpenApp(cmd)
	defer a.Close()

	ok, err := a.svc.DeleteMemory(cmd.Context(), id, cfg.DefaultUserID)
	if err != nil {
		exitErr("rm", err)
	}
	if !ok {
		exitErr("rm", fmt.Errorf("memory %s not found for user %s", id, cfg.DefaultUserID))
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q,"userId":%q}`+"\n", id, cfg.DefaultUserID)
}
