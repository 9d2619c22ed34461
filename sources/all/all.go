// Package all wires every registry source into one registry.
package all

import (
	"github.com/use-agent/regscout/sources"
	"github.com/use-agent/regscout/sources/cabizfile"
	"github.com/use-agent/regscout/sources/coopendata"
	"github.com/use-agent/regscout/sources/deicis"
	"github.com/use-agent/regscout/sources/nyopendata"
	"github.com/use-agent/regscout/sources/opencorporates"
	"github.com/use-agent/regscout/sources/sunbiz"
)

// Build constructs every source against the public endpoints and drops the
// ids listed in deps.Config.Disabled.
func Build(deps sources.Deps) *sources.Registry {
	return sources.NewRegistry(deps.Config.Disabled,
		opencorporates.New(deps, "", ""),
		nyopendata.New(deps, ""),
		coopendata.New(deps, ""),
		sunbiz.New(deps, ""),
		cabizfile.New(deps, ""),
		deicis.New(deps, ""),
	)
}
