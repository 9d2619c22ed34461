package engine

import (
	"context"

	"github.com/use-agent/regscout/models"
)

// Stage is one step of a source's fallback chain.
type Stage string

const (
	StageAPI     Stage = "api"
	StageHTTP    Stage = "http"
	StageBrowser Stage = "browser"
)

// Policy is the hand-tuned acquisition order for one source.
type Policy struct {
	Stages []Stage

	// MaxPages caps "next page" links followed by the HTTP stage.
	MaxPages int
}

// Has reports whether the policy includes stage s.
func (p Policy) Has(s Stage) bool {
	for _, st := range p.Stages {
		if st == s {
			return true
		}
	}
	return false
}

// Names returns the stage names in order.
func (p Policy) Names() []string {
	out := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = string(s)
	}
	return out
}

// Policies is the per-source fallback table. The orderings encode observed
// anti-bot behavior of each registry and are not derived from any rule:
// Sunbiz serves clean HTML to plain clients, bizfile renders everything in
// script, and ICIS gates its form behind a CAPTCHA.
var Policies = map[models.Source]Policy{
	models.SourceOpenCorporates: {Stages: []Stage{StageAPI, StageHTTP, StageBrowser}, MaxPages: 1},
	models.SourceNYOpenData:     {Stages: []Stage{StageAPI}},
	models.SourceCOOpenData:     {Stages: []Stage{StageAPI}},
	models.SourceFLSunbiz:       {Stages: []Stage{StageHTTP, StageBrowser}, MaxPages: 3},
	models.SourceCABizfile:      {Stages: []Stage{StageBrowser}},
	models.SourceDEICIS:         {Stages: []Stage{StageBrowser}},
}

// PolicyFor returns the table entry for src.
func PolicyFor(src models.Source) (Policy, bool) {
	p, ok := Policies[src]
	return p, ok
}

// Outcome is what a single stage attempt produced.
type Outcome[T models.Record] struct {
	Records []T

	// TotalFound is the source-reported match count, when it reports one.
	TotalFound int

	// Warnings explain rows or fields that were skipped.
	Warnings []string
}

// Attempt runs one stage for a query. A nil records slice with a nil error
// means the source reported zero matches.
type Attempt[T models.Record] func(ctx context.Context, q models.Query) (*Outcome[T], error)

// Plan binds a source's policy to the attempts implementing each stage.
// A stage without an attempt is skipped, e.g. the API stage when no token
// is configured.
type Plan[T models.Record] struct {
	Source    models.Source
	Policy    Policy
	Attempts  map[Stage]Attempt[T]
	ManualURL string
}
