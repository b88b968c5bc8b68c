package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-server/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id> [text]",
		Short: "Replace the text of a memory",
		Long:  "Replace the text of a memory. Text can follow the id or be piped via stdin.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().String("meta", "", "JSON object merged into the record metadata")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	metaStr, _ := cmd.Flags().GetString("meta")
	id := args[0]

	text := strings.TrimSpace(readText(cmd, args[1:]))
	if text == "" {
		exitErr("update", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	var meta model.Metadata
	if metaStr != "" {
		if err := json.Unmarshal([]byte(metaStr), &meta); err != nil {
			exitErr("parse meta", err)
		}
	}

	a := mustOpenApp(cmd)
	defer a.Close()

	ok, err := a.svc.UpdateMemory(cmd.Context(), id, cfg.DefaultUserID, text, meta)
	if err != nil {
		exitErr("update", err)
	}
	if !ok {
		exitErr("update", fmt.Errorf("memory %s not found for user %s", id, cfg.DefaultUserID))
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q,"userId":%q}`+"\n", id, cfg.DefaultUserID)
}
