package all

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/sources"
)

func TestBuildRegistersEverySource(t *testing.T) {
	reg := Build(sources.Deps{})
	assert.Equal(t, []models.Source{
		models.SourceCABizfile,
		models.SourceCOOpenData,
		models.SourceDEICIS,
		models.SourceFLSunbiz,
		models.SourceNYOpenData,
		models.SourceOpenCorporates,
	}, reg.IDs())

	for _, info := range reg.Infos() {
		policy, ok := engine.PolicyFor(info.ID)
		assert.True(t, ok, info.ID)
		assert.Equal(t, policy.Names(), info.Stages, info.ID)
		assert.NotEmpty(t, info.ManualURL, info.ID)
	}
}

func TestBuildHonoursDisabled(t *testing.T) {
	reg := Build(sources.Deps{Config: config.SourcesConfig{Disabled: []string{"de_icis", "ca_bizfile"}}})
	assert.Len(t, reg.IDs(), 4)
	_, ok := reg.Get(models.SourceDEICIS)
	assert.False(t, ok)
}
