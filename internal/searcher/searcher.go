package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/contactsearch/internal/config"
	"github.com/dshills/contactsearch/internal/embedder"
	"github.com/dshills/contactsearch/internal/metrics"
	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

// ModeSimilar labels find-similar responses. It is not a request mode.
const ModeSimilar SearchMode = "similar"

// Candidate pool per engine, as a multiple of the requested limit.
// Boosting and fusion may reorder past the limit, so engines fetch more.
const (
	candidateFactor = 3
	maxCandidates   = 300
)

// Options holds search defaults and limits
type Options struct {
	DefaultLimit        int
	MaxLimit            int
	SimilarityThreshold float64
	SemanticWeight      float64
	HistoryCap          int
	RequestTimeout      time.Duration
	HistoryTimeout      time.Duration
	SnippetContext      int
	PositionalFusion    bool
}

// DefaultOptions returns the built-in defaults
func DefaultOptions() Options {
	return OptionsFrom(config.Default().Search)
}

// OptionsFrom maps the search configuration section onto Options
func OptionsFrom(c config.SearchConfig) Options {
	return Options{
		DefaultLimit:        c.DefaultLimit,
		MaxLimit:            c.MaxLimit,
		SimilarityThreshold: c.SimilarityThreshold,
		SemanticWeight:      c.SemanticWeight,
		HistoryCap:          c.HistoryCap,
		RequestTimeout:      c.RequestTimeout,
		HistoryTimeout:      c.HistoryTimeout,
		SnippetContext:      c.SnippetContext,
		PositionalFusion:    c.PositionalFusion,
	}
}

// fillZero replaces unset integer and duration options with defaults.
// Threshold and weight are left alone since 0 is a meaningful value for both.
func (o *Options) fillZero() {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 20
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 100
	}
	if o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = o.MaxLimit
	}
	if o.HistoryCap <= 0 {
		o.HistoryCap = 50
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 2 * time.Second
	}
	if o.HistoryTimeout <= 0 {
		o.HistoryTimeout = time.Second
	}
	if o.SnippetContext <= 0 {
		o.SnippetContext = DefaultSnippetContext
	}
}

// SearchResponse is the result envelope of every search
type SearchResponse struct {
	Results  []types.RankedResult
	Total    int // Contacts the query matched, before truncation to the limit
	Query    string
	Mode     SearchMode
	Duration time.Duration
}

// Searcher is the entry point for contact search. It validates requests,
// runs the lexical and vector engines, ranks and fuses their results and
// records query history.
type Searcher struct {
	store   storage.Storage
	gateway *embedder.Gateway
	opts    Options
	logger  *zap.Logger
	now     func() time.Time

	pending sync.WaitGroup // In-flight history writes
}

// New creates a Searcher. A nil gateway disables semantic and hybrid search.
func New(store storage.Storage, gateway *embedder.Gateway, opts Options, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gateway == nil {
		gateway = embedder.NewGateway(nil, 0, logger)
	}
	opts.fillZero()

	return &Searcher{
		store:   store,
		gateway: gateway,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Search validates req and runs the requested mode
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (resp *SearchResponse, err error) {
	start := time.Now()
	modeLabel := "invalid"
	defer func() {
		n := 0
		if resp != nil {
			n = len(resp.Results)
		}
		metrics.ObserveSearch(modeLabel, statusLabel(err), time.Since(start), n)
	}()

	vr, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	modeLabel = string(vr.mode)

	if vr.mode != ModeLexical && !s.gateway.IsAvailable() {
		return nil, fmt.Errorf("%w: %s search requires an embedding provider", types.ErrPrecondition, vr.mode)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	var (
		results []types.RankedResult
		total   int
	)
	switch vr.mode {
	case ModeLexical:
		results, total, err = s.runLexical(ctx, vr)
	case ModeSemantic:
		results, total, err = s.runSemantic(ctx, vr)
	case ModeHybrid:
		results, total, err = s.runHybrid(ctx, vr)
	}
	if err != nil {
		s.logger.Debug("search failed",
			zap.String("mode", string(vr.mode)),
			zap.String("user_id", vr.userID),
			zap.Error(err),
		)
		return nil, err
	}

	if len(results) > vr.limit {
		results = results[:vr.limit]
	}
	if vr.highlight {
		Highlight(results, vr.query, s.opts.SnippetContext)
	}

	s.recordAsync(ctx, vr.userID, vr.query, total)

	return &SearchResponse{
		Results:  results,
		Total:    total,
		Query:    vr.query,
		Mode:     vr.mode,
		Duration: time.Since(start),
	}, nil
}

// SearchLexical runs exact full-text search, or trigram matching when fuzzy is set
func (s *Searcher) SearchLexical(ctx context.Context, userID, query string, fields []string, fuzzy bool, limit int) (*SearchResponse, error) {
	return s.Search(ctx, SearchRequest{
		UserID: userID,
		Query:  query,
		Mode:   ModeLexical,
		Fields: fields,
		Fuzzy:  fuzzy,
		Limit:  limit,
	})
}

// SearchSemantic runs vector search. A nil threshold uses the configured default.
func (s *Searcher) SearchSemantic(ctx context.Context, userID, query string, limit int, threshold *float64) (*SearchResponse, error) {
	return s.Search(ctx, SearchRequest{
		UserID:    userID,
		Query:     query,
		Mode:      ModeSemantic,
		Limit:     limit,
		Threshold: threshold,
	})
}

// SearchHybrid runs both engines and fuses them. A nil weight uses the configured default.
func (s *Searcher) SearchHybrid(ctx context.Context, userID, query string, limit int, semanticWeight *float64) (*SearchResponse, error) {
	return s.Search(ctx, SearchRequest{
		UserID:         userID,
		Query:          query,
		Mode:           ModeHybrid,
		Limit:          limit,
		SemanticWeight: semanticWeight,
	})
}

// runHybrid runs both engines concurrently. Either failing fails the request.
// The match count is exact while both engines fit their candidate pools and
// otherwise the larger of the fused size and either engine's own count.
func (s *Searcher) runHybrid(ctx context.Context, vr *validRequest) ([]types.RankedResult, int, error) {
	var (
		lexical, semantic             []types.RankedResult
		lexicalMatches, semanticMatches int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexical, lexicalMatches, err = s.runLexical(gctx, vr)
		return err
	})
	g.Go(func() error {
		var err error
		semantic, semanticMatches, err = s.runSemantic(gctx, vr)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	if s.opts.PositionalFusion {
		lexical = PositionScores(lexical)
	}
	fused := Fuse(lexical, semantic, vr.weight)
	return fused, max(len(fused), lexicalMatches, semanticMatches), nil
}

func candidateLimit(limit int) int {
	return min(limit*candidateFactor, maxCandidates)
}

// storeError classifies a data store failure. Errors that already carry a
// kind keep it; anything else is a dependency failure.
func storeError(op string, err error) error {
	for _, kind := range []error{
		types.ErrValidation,
		types.ErrNotFound,
		types.ErrUnauthorized,
		types.ErrPrecondition,
		types.ErrDependency,
	} {
		if errors.Is(err, kind) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, types.ErrDependency, err)
}

// statusLabel maps an error onto a metrics status
func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, types.ErrValidation):
		return "validation_error"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, types.ErrPrecondition):
		return "precondition_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, types.ErrDependency):
		return "dependency_error"
	default:
		return "error"
	}
}

func requireID(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", types.ErrValidation, name)
	}
	return nil
}
