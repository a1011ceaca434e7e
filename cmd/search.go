package cmd

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/siftlab/sift/internal/query"
	"github.com/siftlab/sift/internal/report"
)

var (
	flagIntent string
	flagLabURL string
	flagJSON   bool
	flagCSV    bool
)

func init() {
	searchCmd.Flags().StringVar(&flagIntent, "intent", "all", "source to query (grants|papers|news|all)")
	searchCmd.Flags().StringVar(&flagLabURL, "url", "", "research a lab page instead of a text query")
	searchCmd.Flags().BoolVar(&flagJSON, "json", false, "print the envelope as JSON")
	searchCmd.Flags().BoolVar(&flagCSV, "csv", false, "print the merged feed as CSV")
}

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Run one aggregation request and print the ranked feed",
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 && flagLabURL == "" {
		return errors.New("a query or --url is required")
	}

	app, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	env, err := app.orchestrator.Handle(cmd.Context(), query.Request{
		UserQuery: strings.Join(args, " "),
		Intent:    flagIntent,
		LabURL:    flagLabURL,
	})
	if err != nil {
		return err
	}

	switch {
	case flagJSON:
		return report.WriteJSON(os.Stdout, env)
	case flagCSV:
		return report.WriteCSV(os.Stdout, env)
	default:
		return report.WriteText(os.Stdout, env)
	}
}
