package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"golang.org/x/time/rate"

	scouterrors "github.com/docscout/docscout/internal/errors"
)

// Dropbox's documented burst behavior tolerates short spikes; stay well
// below the per-app limit so long ingestion runs never trip 429s.
const (
	dropboxRequestsPerSecond = 8.0
	dropboxBurstSize         = 10
)

// DropboxClient implements Client against a Dropbox account.
type DropboxClient struct {
	client   files.Client
	rootPath string
	limiter  *rate.Limiter
	retry    scouterrors.RetryConfig
}

// Verify interface implementation at compile time.
var _ Client = (*DropboxClient)(nil)

// NewDropboxClient creates a Dropbox-backed remote client.
// rootPath restricts listing to a folder; empty means the whole account.
func NewDropboxClient(accessToken, rootPath string) (*DropboxClient, error) {
	if accessToken == "" {
		return nil, scouterrors.New(scouterrors.ErrCodeConfigInvalid, "dropbox access token is not set", nil)
	}

	cfg := dropbox.Config{
		Token:    accessToken,
		LogLevel: dropbox.LogOff,
	}

	retry := scouterrors.DefaultRetryConfig()
	retry.Jitter = true

	return &DropboxClient{
		client:   files.New(cfg),
		rootPath: rootPath,
		limiter:  rate.NewLimiter(rate.Limit(dropboxRequestsPerSecond), dropboxBurstSize),
		retry:    retry,
	}, nil
}

// List enumerates the account. With an empty cursor it walks the full tree;
// with a cursor it returns only entries changed since that cursor, including
// deletion tombstones. An expired cursor falls back to a full walk.
func (d *DropboxClient) List(ctx context.Context, cursor string) (*Listing, error) {
	if cursor != "" {
		listing, err := d.listContinue(ctx, cursor)
		if err == nil {
			return listing, nil
		}
		slog.Warn("dropbox cursor rejected, falling back to full listing",
			slog.String("error", err.Error()))
	}
	return d.listFull(ctx)
}

func (d *DropboxClient) listFull(ctx context.Context) (*Listing, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	arg := files.NewListFolderArg(d.rootPath)
	arg.Recursive = true

	res, err := scouterrors.RetryWithResult(ctx, d.retry, func() (*files.ListFolderResult, error) {
		return d.client.ListFolder(arg)
	})
	if err != nil {
		return nil, scouterrors.Wrap(scouterrors.ErrCodeListingFailed, fmt.Errorf("dropbox list folder: %w", err))
	}

	listing := &Listing{}
	for {
		d.appendEntries(listing, res.Entries)

		if !res.HasMore {
			listing.Cursor = res.Cursor
			return listing, nil
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		arg := files.NewListFolderContinueArg(res.Cursor)
		res, err = scouterrors.RetryWithResult(ctx, d.retry, func() (*files.ListFolderResult, error) {
			return d.client.ListFolderContinue(arg)
		})
		if err != nil {
			return nil, scouterrors.Wrap(scouterrors.ErrCodeListingFailed, fmt.Errorf("dropbox list continue: %w", err))
		}
	}
}

func (d *DropboxClient) listContinue(ctx context.Context, cursor string) (*Listing, error) {
	listing := &Listing{Incremental: true}

	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		res, err := d.client.ListFolderContinue(files.NewListFolderContinueArg(cursor))
		if err != nil {
			return nil, scouterrors.Wrap(scouterrors.ErrCodeListingFailed, fmt.Errorf("dropbox list continue: %w", err))
		}

		d.appendEntries(listing, res.Entries)
		cursor = res.Cursor

		if !res.HasMore {
			listing.Cursor = cursor
			return listing, nil
		}
	}
}

// appendEntries converts Dropbox metadata entries into Files, skipping folders.
func (d *DropboxClient) appendEntries(listing *Listing, entries []files.IsMetadata) {
	for _, entry := range entries {
		switch m := entry.(type) {
		case *files.FileMetadata:
			listing.Files = append(listing.Files, File{
				Path:         m.PathLower,
				Revision:     m.Rev,
				Size:         int64(m.Size),
				ModifiedTime: m.ServerModified,
				DeclaredKind: DeclaredKindOf(m.PathLower),
			})
		case *files.DeletedMetadata:
			listing.Files = append(listing.Files, File{
				Path:    m.PathLower,
				Deleted: true,
			})
		}
	}
}

// Fetch downloads a file and returns its content plus the revision actually
// downloaded, which callers compare against the listing-time revision.
func (d *DropboxClient) Fetch(ctx context.Context, filePath string) ([]byte, string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	type download struct {
		data []byte
		rev  string
	}

	res, err := scouterrors.RetryWithResult(ctx, d.retry, func() (download, error) {
		meta, rc, err := d.client.Download(files.NewDownloadArg(filePath))
		if err != nil {
			return download{}, err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return download{}, err
		}
		return download{data: data, rev: meta.Rev}, nil
	})
	if err != nil {
		return nil, "", scouterrors.Wrap(scouterrors.ErrCodeFetchFailed, fmt.Errorf("dropbox download %s: %w", filePath, err))
	}

	return res.data, res.rev, nil
}
