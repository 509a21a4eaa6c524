package tracker

import (
	"context"
	"fmt"

	"github.com/docscout/docscout/internal/remote"
)

// Tracker computes ChangeSets against a RevisionStore.
type Tracker struct {
	store RevisionStore
}

// New creates a Tracker over the given store.
func New(store RevisionStore) *Tracker {
	return &Tracker{store: store}
}

// Store exposes the underlying revision store.
func (t *Tracker) Store() RevisionStore {
	return t.store
}

// Diff computes the change set for a listing against the committed table.
//
// For a full listing: a path absent from the table is added; present with a
// different revision is updated; present in the table but absent from the
// listing is removed. For an incremental listing only the listed entries are
// classified and tombstones drive removals; absence means "unchanged
// remotely", with two exceptions below.
//
// Records in retry or removing state get another attempt every run
// regardless of listing shape. An incremental listing omits paths the
// remote has not changed, so pending work is re-enqueued straight from the
// table: retry records as updates against their last listed revision,
// removing records as removals.
func (t *Tracker) Diff(ctx context.Context, listing *remote.Listing) (*ChangeSet, error) {
	if listing == nil {
		return nil, fmt.Errorf("diff: nil listing")
	}

	known, err := t.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("diff: load revision table: %w", err)
	}

	cs := &ChangeSet{}
	seen := make(map[string]struct{}, len(listing.Files))

	for _, f := range listing.Files {
		if f.Deleted {
			// Tombstones only make sense for incremental listings; drop
			// unknown paths silently (deleting an unindexed path is a no-op).
			if _, ok := known[f.Path]; ok {
				seen[f.Path] = struct{}{}
				cs.Removed = append(cs.Removed, f.Path)
			}
			continue
		}

		seen[f.Path] = struct{}{}
		rec, ok := known[f.Path]
		switch {
		case !ok:
			cs.Added = append(cs.Added, f)
		case rec.LastSeenRevision != f.Revision,
			rec.LastStatus == StatusRetry,
			rec.LastStatus == StatusRemoving:
			cs.Updated = append(cs.Updated, f)
		}
	}

	if listing.Incremental {
		for path, rec := range known {
			if _, ok := seen[path]; ok {
				continue
			}
			switch rec.LastStatus {
			case StatusRetry:
				cs.Updated = append(cs.Updated, remote.File{
					Path:         path,
					Revision:     rec.LastSeenRevision,
					DeclaredKind: remote.DeclaredKindOf(path),
				})
			case StatusRemoving:
				cs.Removed = append(cs.Removed, path)
			}
		}
	} else {
		for path := range known {
			if _, ok := seen[path]; !ok {
				cs.Removed = append(cs.Removed, path)
			}
		}
	}

	return cs, nil
}
