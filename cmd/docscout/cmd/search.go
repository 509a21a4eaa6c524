package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/query"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit         int
	kind          string
	pathPrefix    string
	format        string
	after         string
	before        string
	excludeFailed bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Search the index built by 'docscout ingest'.

Results are ranked by relevance; exact phrases rank above scattered
word matches, and ties go to the most recently indexed document.

Examples:
  docscout search "invoice 4821"
  docscout search receipt --kind image --limit 5
  docscout search contract --path /legal/ --format json
  docscout search report --after 2026-01-01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "Filter by content kind: image, pdf, text, csv")
	cmd.Flags().StringVarP(&opts.pathPrefix, "path", "p", "", "Filter by path prefix")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.after, "after", "", "Only documents indexed after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.before, "before", "", "Only documents indexed before this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.excludeFailed, "exclude-failed", false, "Hide documents whose extraction failed")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, queryStr string, opts searchOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	idx, err := index.Open(cfg.IndexPath())
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	svc, err := query.New(idx, query.Config{
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
	})
	if err != nil {
		return err
	}

	qopts := query.Options{
		Kind:          opts.kind,
		PathPrefix:    opts.pathPrefix,
		ExcludeFailed: opts.excludeFailed,
		Limit:         opts.limit,
	}
	if qopts.After, err = parseDateFlag(opts.after); err != nil {
		return err
	}
	if qopts.Before, err = parseDateFlag(opts.before); err != nil {
		return err
	}

	matches, err := svc.Search(ctx, queryStr, qopts)
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		return formatJSON(cmd, matches)
	default:
		return formatText(cmd, queryStr, matches)
	}
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// formatText renders matches for the terminal, with snippet highlight tags
// stripped.
func formatText(cmd *cobra.Command, queryStr string, matches []query.Match) error {
	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintf(out, "No results found for %q\n", queryStr)
		return nil
	}

	fmt.Fprintf(out, "Found %d results for %q:\n\n", len(matches), queryStr)
	for i, m := range matches {
		fmt.Fprintf(out, "%d. %s (score: %.2f, %s)\n", i+1, m.Path, m.Score, m.Kind)
		for _, snippet := range m.Snippets {
			fmt.Fprintf(out, "   %s\n", stripMarks(snippet))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func formatJSON(cmd *cobra.Command, matches []query.Match) error {
	type jsonMatch struct {
		Path      string   `json:"path"`
		Score     float64  `json:"score"`
		Snippets  []string `json:"snippets,omitempty"`
		Kind      string   `json:"kind"`
		Status    string   `json:"status"`
		IndexedAt string   `json:"indexed_at"`
	}

	results := make([]jsonMatch, 0, len(matches))
	for _, m := range matches {
		results = append(results, jsonMatch{
			Path:      m.Path,
			Score:     m.Score,
			Snippets:  m.Snippets,
			Kind:      m.Kind,
			Status:    m.Status,
			IndexedAt: m.IndexedAt.Format(time.RFC3339),
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

var markReplacer = strings.NewReplacer("<mark>", "", "</mark>", "")

func stripMarks(s string) string {
	return strings.Join(strings.Fields(markReplacer.Replace(s)), " ")
}
