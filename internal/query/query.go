// Package query answers ranked full-text searches against the document
// index.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"

	scouterrors "github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/index"
)

const (
	// phraseBoost ranks exact phrase matches above bag-of-words matches.
	phraseBoost = 2.0

	// maxFragments caps the snippet fragments returned per match.
	maxFragments = 3
)

// Options narrow and shape a search.
type Options struct {
	// Kind restricts matches to one content kind (image, pdf, text, csv).
	Kind string

	// PathPrefix restricts matches to paths under a prefix.
	PathPrefix string

	// After / Before restrict matches by indexing time. Zero values mean
	// unbounded.
	After  time.Time
	Before time.Time

	// ExcludeFailed drops documents whose extraction failed. Without it
	// they still rank last, having no text to match on.
	ExcludeFailed bool

	// Limit caps the result count. Zero means the service default.
	Limit int
}

// Match is one search result.
type Match struct {
	// Path is the remote path of the matched document.
	Path string

	// Score is the relevance score; higher is better.
	Score float64

	// Snippets are highlighted HTML fragments with <mark> around matched
	// terms, up to three per match.
	Snippets []string

	// Kind is the document's content kind.
	Kind string

	// Status is the extraction status of the indexed record.
	Status string

	// IndexedAt is when the document was last indexed.
	IndexedAt time.Time
}

// Service executes searches with a small LRU result cache. The cache is
// invalidated wholesale when an ingest run commits.
type Service struct {
	idx          *index.Index
	cache        *lru.Cache[string, []Match]
	generation   atomic.Uint64
	defaultLimit int
	maxLimit     int
	log          *slog.Logger
}

// Config sets the service limits.
type Config struct {
	// DefaultLimit applies when Options.Limit is zero.
	DefaultLimit int

	// MaxLimit clamps Options.Limit.
	MaxLimit int

	// CacheSize is the number of cached result sets. Zero disables the
	// cache.
	CacheSize int
}

// New creates a query service over the index.
func New(idx *index.Index, cfg Config) (*Service, error) {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}

	var cache *lru.Cache[string, []Match]
	if cfg.CacheSize > 0 {
		var err error
		cache, err = lru.New[string, []Match](cfg.CacheSize)
		if err != nil {
			return nil, scouterrors.Wrap(scouterrors.ErrCodeInternal, err)
		}
	}

	return &Service{
		idx:          idx,
		cache:        cache,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		log:          slog.Default().With("component", "query"),
	}, nil
}

// Search runs a ranked search. Exact phrases rank above scattered token
// matches; ties break toward the most recently indexed document.
func (s *Service) Search(ctx context.Context, queryStr string, opts Options) ([]Match, error) {
	queryStr = strings.TrimSpace(queryStr)
	if queryStr == "" {
		return nil, scouterrors.New(scouterrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	cacheKey := s.cacheKey(queryStr, opts, limit)
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	req := buildRequest(queryStr, opts, limit)
	result, err := s.idx.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(result.Hits))
	for _, hit := range result.Hits {
		m := Match{Score: hit.Score}
		if v, ok := hit.Fields[index.FieldPath].(string); ok {
			m.Path = v
		}
		if v, ok := hit.Fields[index.FieldKind].(string); ok {
			m.Kind = v
		}
		if v, ok := hit.Fields[index.FieldStatus].(string); ok {
			m.Status = v
		}
		if v, ok := hit.Fields[index.FieldIndexedAt].(string); ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				m.IndexedAt = ts
			}
		}
		if fragments, ok := hit.Fragments[index.FieldText]; ok {
			if len(fragments) > maxFragments {
				fragments = fragments[:maxFragments]
			}
			m.Snippets = fragments
		}
		matches = append(matches, m)
	}

	if s.cache != nil {
		s.cache.Add(cacheKey, matches)
	}
	s.log.Debug("search served", "query", queryStr, "hits", len(matches))
	return matches, nil
}

// Invalidate drops all cached results. Called after an ingest run commits.
func (s *Service) Invalidate() {
	s.generation.Add(1)
}

// Health reports whether the index is reachable.
func (s *Service) Health(ctx context.Context) error {
	if _, err := s.idx.DocCount(); err != nil {
		return err
	}
	return nil
}

// cacheKey folds the generation counter into the key, so entries written
// before an ingest commit can never be served after it.
func (s *Service) cacheKey(queryStr string, opts Options, limit int) string {
	return fmt.Sprintf("g%d|%s|k=%s|p=%s|a=%d|b=%d|x=%t|l=%d",
		s.generation.Load(), queryStr, opts.Kind, opts.PathPrefix,
		opts.After.UnixNano(), opts.Before.UnixNano(), opts.ExcludeFailed, limit)
}

// buildRequest assembles the bleve request: a boosted phrase query OR a
// token match query, AND-ed with the option filters.
func buildRequest(queryStr string, opts Options, limit int) *bleve.SearchRequest {
	phrase := bleve.NewMatchPhraseQuery(queryStr)
	phrase.SetField(index.FieldText)
	phrase.SetBoost(phraseBoost)

	match := bleve.NewMatchQuery(queryStr)
	match.SetField(index.FieldText)

	ranked := bleve.NewDisjunctionQuery(phrase, match)

	conjuncts := []blevequery.Query{ranked}
	if opts.Kind != "" {
		tq := bleve.NewTermQuery(opts.Kind)
		tq.SetField(index.FieldKind)
		conjuncts = append(conjuncts, tq)
	}
	if opts.PathPrefix != "" {
		pq := bleve.NewPrefixQuery(opts.PathPrefix)
		pq.SetField(index.FieldPath)
		conjuncts = append(conjuncts, pq)
	}
	if !opts.After.IsZero() || !opts.Before.IsZero() {
		drq := bleve.NewDateRangeQuery(opts.After, opts.Before)
		drq.SetField(index.FieldIndexedAt)
		conjuncts = append(conjuncts, drq)
	}

	var final blevequery.Query = bleve.NewConjunctionQuery(conjuncts...)
	if opts.ExcludeFailed {
		failed := bleve.NewTermQuery("failed")
		failed.SetField(index.FieldStatus)
		boolean := bleve.NewBooleanQuery()
		boolean.AddMust(final)
		boolean.AddMustNot(failed)
		final = boolean
	}

	req := bleve.NewSearchRequest(final)
	req.Size = limit
	req.Fields = []string{index.FieldPath, index.FieldKind, index.FieldStatus, index.FieldIndexedAt}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField(index.FieldText)
	req.SortBy([]string{"-_score", "-" + index.FieldIndexedAt})
	return req
}
