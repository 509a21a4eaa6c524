package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/tracker"
)

// statusInfo is what 'docscout status' reports.
type statusInfo struct {
	DataDir       string `json:"data_dir"`
	Documents     uint64 `json:"documents"`
	TrackedPaths  int    `json:"tracked_paths"`
	PartialPaths  int    `json:"partial_paths"`
	FailedPaths   int    `json:"failed_paths"`
	PendingPaths  int    `json:"pending_paths"`
	CursorPresent bool   `json:"cursor_present"`
	IndexBytes    int64  `json:"index_bytes"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and ingestion state",
		Long: `Display the current state of the local index:
  - Number of indexed documents and tracked paths
  - Paths with partial or failed extractions
  - Whether an incremental listing cursor is stored
  - Index size on disk`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.RevisionDBPath()); os.IsNotExist(err) {
		return fmt.Errorf("no index found in %s\nRun 'docscout ingest' to create one", cfg.DataDir)
	}

	info, err := collectStatus(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "Data directory: %s\n", info.DataDir)
	fmt.Fprintf(out, "Documents:      %d\n", info.Documents)
	fmt.Fprintf(out, "Tracked paths:  %d (%d partial, %d failed, %d pending retry)\n",
		info.TrackedPaths, info.PartialPaths, info.FailedPaths, info.PendingPaths)
	fmt.Fprintf(out, "Cursor:         %s\n", presentOrNot(info.CursorPresent))
	fmt.Fprintf(out, "Index size:     %s\n", formatBytes(info.IndexBytes))
	return nil
}

func collectStatus(ctx context.Context, cfg *config.Config) (*statusInfo, error) {
	info := &statusInfo{DataDir: cfg.DataDir}

	store, err := tracker.NewSQLiteStore(cfg.RevisionDBPath())
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	records, err := store.All(ctx)
	if err != nil {
		return nil, err
	}
	info.TrackedPaths = len(records)
	for _, rec := range records {
		switch rec.LastStatus {
		case tracker.StatusPartial:
			info.PartialPaths++
		case tracker.StatusFailed:
			info.FailedPaths++
		case tracker.StatusRetry, tracker.StatusRemoving:
			info.PendingPaths++
		}
	}

	cursor, err := store.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	info.CursorPresent = cursor != ""

	idx, err := index.Open(cfg.IndexPath())
	if err != nil {
		return nil, err
	}
	defer func() { _ = idx.Close() }()

	if info.Documents, err = idx.DocCount(); err != nil {
		return nil, err
	}
	info.IndexBytes = dirSize(cfg.IndexPath())

	return info, nil
}

func presentOrNot(present bool) string {
	if present {
		return "present (incremental listing)"
	}
	return "none (next run lists everything)"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// dirSize returns the total size of all files under path.
func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !fi.IsDir() {
			size += fi.Size()
		}
		return nil
	})
	return size
}
