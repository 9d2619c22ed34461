// Package orchestrator fans one query out across registry sources and joins
// the per-source results into a single response.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/sources"
)

// Options refine a search. The zero value searches every registered source
// for companies, in parallel, with the default limit.
type Options struct {
	// Sources restricts the fan-out. Empty means every registered source.
	Sources []models.Source

	// SearchType defaults to company.
	SearchType models.SearchType

	// Limit caps records per source. 0 applies the configured default.
	Limit int

	// Sequential runs one source at a time instead of all at once.
	Sequential bool

	Jurisdiction    string
	IncludeInactive bool
	CurrentOnly     bool
}

// Orchestrator runs source pipelines. It never retries; retries live in
// the stages.
type Orchestrator struct {
	registry      *sources.Registry
	sourceTimeout time.Duration
	defaultLimit  int

	// newID is swapped in tests.
	newID func() string
}

// New returns an orchestrator over reg.
func New(reg *sources.Registry, sc config.ScraperConfig) *Orchestrator {
	o := &Orchestrator{
		registry:      reg,
		sourceTimeout: sc.SourceTimeout,
		defaultLimit:  sc.DefaultLimit,
		newID:         uuid.NewString,
	}
	if o.sourceTimeout <= 0 {
		o.sourceTimeout = 90 * time.Second
	}
	if o.defaultLimit <= 0 {
		o.defaultLimit = models.DefaultLimit
	}
	return o
}

// Registry returns the sources this orchestrator fans out over.
func (o *Orchestrator) Registry() *sources.Registry { return o.registry }

// Search queries the selected sources. The error is non-nil only for caller
// mistakes (empty query, unknown source, bad search type); source failures
// are reported per source inside the response.
//
// ctx bounds how long Search waits. Source work runs on its own deadline, so
// a caller that gives up early gets NAVIGATION_TIMEOUT results for the
// sources still running while those finish in the background.
func (o *Orchestrator) Search(ctx context.Context, term string, opts Options) (*models.SearchResponse, error) {
	q, ids, err := o.prepare(term, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp := &models.SearchResponse{
		ID:         o.newID(),
		Query:      q.Term,
		SearchType: q.SearchType,
		Results:    make(map[models.Source]models.SourceResult, len(ids)),
		Successful: []models.Source{},
		Failed:     []models.Source{},
		StartedAt:  start.UTC(),
	}

	type done struct {
		id  models.Source
		res models.SourceResult
	}
	results := make(chan done, len(ids))

	detached := context.WithoutCancel(ctx)
	var g errgroup.Group
	if opts.Sequential {
		g.SetLimit(1)
	}
	go func() {
		for _, id := range ids {
			src, _ := o.registry.Get(id)
			g.Go(func() error {
				// In sequence, sources the caller no longer waits for are not started.
				if opts.Sequential && ctx.Err() != nil {
					return nil
				}
				sctx, cancel := context.WithTimeout(detached, o.sourceTimeout)
				defer cancel()
				results <- done{id: id, res: o.runOne(sctx, src, q)}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

collect:
	for len(resp.Results) < len(ids) {
		select {
		case d, ok := <-results:
			if !ok {
				break collect
			}
			resp.Results[d.id] = d.res
		case <-ctx.Done():
			break collect
		}
	}

	for _, id := range ids {
		if _, ok := resp.Results[id]; !ok {
			slog.Warn("source abandoned", "source", id, "query", q.Term)
			resp.Results[id] = failed(id, q, models.ErrCodeNavigationTimeout,
				"abandoned: caller stopped waiting before the source finished")
		}
	}

	for id, r := range resp.Results {
		if r.Succeeded() {
			resp.Successful = append(resp.Successful, id)
			resp.TotalFound += r.Found()
		} else {
			resp.Failed = append(resp.Failed, id)
		}
	}
	sortSources(resp.Successful)
	sortSources(resp.Failed)
	resp.Duration = time.Since(start)

	slog.Info("search finished",
		"id", resp.ID,
		"query", q.Term,
		"search_type", q.SearchType,
		"successful", len(resp.Successful),
		"failed", len(resp.Failed),
		"total_found", resp.TotalFound,
		"duration", resp.Duration,
	)
	return resp, nil
}

func (o *Orchestrator) prepare(term string, opts Options) (models.Query, []models.Source, error) {
	term = strings.Join(strings.Fields(term), " ")
	if term == "" {
		return models.Query{}, nil, models.NewScrapeError(models.ErrCodeInvalidInput, "query must not be empty", nil)
	}
	st := opts.SearchType
	if st == "" {
		st = models.SearchCompany
	}
	if !st.Valid() {
		return models.Query{}, nil, models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("search type %q must be company or officer", st), nil)
	}
	if opts.Limit < 0 {
		return models.Query{}, nil, models.NewScrapeError(models.ErrCodeInvalidInput, "limit must not be negative", nil)
	}
	limit := opts.Limit
	if limit == 0 {
		limit = o.defaultLimit
	}

	ids := opts.Sources
	if len(ids) == 0 {
		ids = o.registry.IDs()
	}
	seen := make(map[models.Source]struct{}, len(ids))
	uniq := make([]models.Source, 0, len(ids))
	for _, id := range ids {
		if _, ok := o.registry.Get(id); !ok {
			return models.Query{}, nil, models.NewScrapeError(models.ErrCodeUnknownSource,
				fmt.Sprintf("unknown source %q", id), nil)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}

	return models.Query{
		Term:            term,
		SearchType:      st,
		Limit:           limit,
		Jurisdiction:    opts.Jurisdiction,
		IncludeInactive: opts.IncludeInactive,
		CurrentOnly:     opts.CurrentOnly,
	}, uniq, nil
}

// runOne converts a panicking source into a failed result for that source.
func (o *Orchestrator) runOne(ctx context.Context, src sources.Source, q models.Query) (res models.SourceResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("source panicked", "source", src.ID(), "panic", r)
			res = failed(src.ID(), q, models.ErrCodeUnknown, fmt.Sprintf("source panicked: %v", r))
		}
	}()
	var out models.SourceResult
	if q.SearchType == models.SearchOfficer {
		out = src.SearchOfficers(ctx, q)
	} else {
		out = src.SearchCompanies(ctx, q)
	}
	if isNil(out) {
		return failed(src.ID(), q, models.ErrCodeUnknown, "source returned no result")
	}
	return out
}

func isNil(r models.SourceResult) bool {
	switch v := r.(type) {
	case nil:
		return true
	case *models.ScraperResult[models.ScrapedBusinessEntity]:
		return v == nil
	case *models.ScraperResult[models.ScrapedOfficer]:
		return v == nil
	}
	return false
}

func failed(id models.Source, q models.Query, code, warning string) models.SourceResult {
	if q.SearchType == models.SearchOfficer {
		return models.NewFailedResult[models.ScrapedOfficer](id, q.Term, code, warning)
	}
	return models.NewFailedResult[models.ScrapedBusinessEntity](id, q.Term, code, warning)
}

func sortSources(s []models.Source) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
