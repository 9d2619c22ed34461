// Package sources defines the registry source contract shared by every
// jurisdiction package and the registry the orchestrator fans out over.
package sources

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
)

// Source is one upstream registry.
type Source interface {
	ID() models.Source
	Info() models.SourceInfo
	SearchCompanies(ctx context.Context, q models.Query) *models.ScraperResult[models.ScrapedBusinessEntity]
	SearchOfficers(ctx context.Context, q models.Query) *models.ScraperResult[models.ScrapedOfficer]
}

// Deps are the shared transports handed to every source constructor.
type Deps struct {
	Fetcher *engine.HTTPFetcher
	API     *engine.APIClient
	Browser *engine.BrowserRunner
	Config  config.SourcesConfig

	// Now stamps scrapedAt; tests pin it.
	Now func() time.Time
}

// Clock returns d.Now or the wall clock in UTC.
func (d Deps) Clock() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return func() time.Time { return time.Now().UTC() }
}

// Base implements Source from two pipeline plans. A plan without attempts
// marks its search type unsupported.
type Base struct {
	Meta    models.SourceInfo
	Policy  engine.Policy
	Company map[engine.Stage]engine.Attempt[models.ScrapedBusinessEntity]
	Officer map[engine.Stage]engine.Attempt[models.ScrapedOfficer]
	Browser *engine.BrowserRunner
}

// NewBase builds a Base using the policy table entry for info.ID.
func NewBase(info models.SourceInfo, browser *engine.BrowserRunner) *Base {
	policy, ok := engine.PolicyFor(info.ID)
	if !ok {
		panic(fmt.Sprintf("sources: no policy for %s", info.ID))
	}
	info.Stages = policy.Names()
	return &Base{
		Meta:    info,
		Policy:  policy,
		Company: map[engine.Stage]engine.Attempt[models.ScrapedBusinessEntity]{},
		Officer: map[engine.Stage]engine.Attempt[models.ScrapedOfficer]{},
		Browser: browser,
	}
}

func (b *Base) ID() models.Source { return b.Meta.ID }

// Info reports the supported search types derived from the wired attempts.
func (b *Base) Info() models.SourceInfo {
	info := b.Meta
	info.SearchTypes = nil
	if len(b.Company) > 0 {
		info.SearchTypes = append(info.SearchTypes, models.SearchCompany)
	}
	if len(b.Officer) > 0 {
		info.SearchTypes = append(info.SearchTypes, models.SearchOfficer)
	}
	return info
}

func (b *Base) env() engine.Env {
	return engine.Env{BrowserAvailable: b.Browser.Available()}
}

func (b *Base) SearchCompanies(ctx context.Context, q models.Query) *models.ScraperResult[models.ScrapedBusinessEntity] {
	if len(b.Company) == 0 {
		return unsupported[models.ScrapedBusinessEntity](b.Meta.ID, q)
	}
	return engine.Run(ctx, engine.Plan[models.ScrapedBusinessEntity]{
		Source:    b.Meta.ID,
		Policy:    b.Policy,
		Attempts:  b.Company,
		ManualURL: b.Meta.ManualURL,
	}, q, b.env())
}

func (b *Base) SearchOfficers(ctx context.Context, q models.Query) *models.ScraperResult[models.ScrapedOfficer] {
	if len(b.Officer) == 0 {
		return unsupported[models.ScrapedOfficer](b.Meta.ID, q)
	}
	return engine.Run(ctx, engine.Plan[models.ScrapedOfficer]{
		Source:    b.Meta.ID,
		Policy:    b.Policy,
		Attempts:  b.Officer,
		ManualURL: b.Meta.ManualURL,
	}, q, b.env())
}

func unsupported[T models.Record](src models.Source, q models.Query) *models.ScraperResult[T] {
	return models.NewFailedResult[T](src, q.Term, models.ErrCodeUnsupportedType,
		fmt.Sprintf("%s does not support %s search", src, q.SearchType))
}

// Registry holds the enabled sources.
type Registry struct {
	byID map[models.Source]Source
}

// NewRegistry indexes srcs, skipping ids listed in disabled.
func NewRegistry(disabled []string, srcs ...Source) *Registry {
	off := make(map[string]struct{}, len(disabled))
	for _, d := range disabled {
		off[d] = struct{}{}
	}
	r := &Registry{byID: make(map[models.Source]Source, len(srcs))}
	for _, s := range srcs {
		if _, skip := off[string(s.ID())]; skip {
			continue
		}
		r.byID[s.ID()] = s
	}
	return r
}

// Get returns the source registered under id.
func (r *Registry) Get(id models.Source) (Source, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// IDs lists registered source ids in sorted order.
func (r *Registry) IDs() []models.Source {
	ids := make([]models.Source, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Infos describes every registered source.
func (r *Registry) Infos() []models.SourceInfo {
	ids := r.IDs()
	out := make([]models.SourceInfo, len(ids))
	for i, id := range ids {
		out[i] = r.byID[id].Info()
	}
	return out
}
