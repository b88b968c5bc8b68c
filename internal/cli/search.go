package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by substring",
		Long:  "Search memory text for the query, case-insensitively. Results are ranked by match count, then recency.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", 0, "Max results (default: $MAX_SEARCH_RESULTS or 3)")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	a := mustOpenApp(cmd)
	defer a.Close()

	results, err := a.svc.SearchMemories(cmd.Context(), query, cfg.DefaultUserID, limit)
	if err != nil {
		exitErr("search", err)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "[]")
		return
	}
	printJSON(cmd, results)
}
