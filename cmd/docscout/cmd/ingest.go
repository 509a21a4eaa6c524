package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/extract"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/ingest"
	"github.com/docscout/docscout/internal/normalize"
	"github.com/docscout/docscout/internal/remote"
	"github.com/docscout/docscout/internal/tracker"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Synchronize the remote folder into the search index",
		Long: `Run one ingestion pass: list the remote folder, diff against the
last committed state, extract and index changed files, and remove
deleted ones.

Interrupted runs are safe to repeat; the next run picks up from the
last committed state.

Examples:
  docscout ingest
  docscout ingest --debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	client, err := remote.NewDropboxClient(cfg.Remote.AccessToken, cfg.Remote.RootPath)
	if err != nil {
		return err
	}

	store, err := tracker.NewSQLiteStore(cfg.RevisionDBPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	idx, err := index.Open(cfg.IndexPath())
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	ocr := extract.NewTesseractOCR(cfg.Extract.OCRCommand, cfg.Extract.OCRLanguage)
	extractor := extract.New(extract.Config{
		MaxFileBytes:           cfg.Extract.MaxFileBytes,
		OCRConfidenceThreshold: cfg.Extract.OCRConfidenceThreshold,
	}, ocr)

	orch := ingest.New(client, store, extractor, normalize.New(cfg.Extract.MaxTextRunes), idx,
		ingest.Config{
			Workers:      cfg.Ingest.Workers,
			FetchTimeout: cfg.Ingest.FetchTimeout,
			LockDir:      cfg.DataDir,
		}, nil)

	summary, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s finished in %s\n", summary.RunID, summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  added:   %d\n", summary.Added)
	fmt.Fprintf(out, "  updated: %d\n", summary.Updated)
	fmt.Fprintf(out, "  removed: %d\n", summary.Removed)
	fmt.Fprintf(out, "  indexed: %d (%d partial)\n", summary.Indexed, summary.Partial)
	if summary.Failed > 0 {
		fmt.Fprintf(out, "  failed:  %d (retried next run)\n", summary.Failed)
	}
	return nil
}
