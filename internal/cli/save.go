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
		Use:   "save [text]",
		Short: "Store a memory",
		Long:  "Store a memory. Text can be a positional arg or piped via stdin.",
		Run:   runSave,
	}

	cmd.Flags().String("meta", "", "JSON object merged into the record metadata")

	RootCmd.AddCommand(cmd)
}

func runSave(cmd *cobra.Command, args []string) {
	metaStr, _ := cmd.Flags().GetString("meta")

	text := strings.TrimSpace(readText(cmd, args))
	if text == "" {
		exitErr("save", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	var meta model.Metadata
	if metaStr != "" {
		if err := json.Unmarshal([]byte(metaStr), &meta); err != nil {
			exitErr("parse meta", err)
		}
	}

	a := mustOpenApp(cmd)
	defer a.Close()

	res, err := a.svc.SaveMemory(cmd.Context(), text, cfg.DefaultUserID, meta)
	if err != nil {
		exitErr("save", err)
	}

	printJSON(cmd, map[string]any{
		"id":      res.ID,
		"message": res.Message,
		"userId":  cfg.DefaultUserID,
	})
}
