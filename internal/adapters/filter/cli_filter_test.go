package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mikey/mail-triage/internal/core"
)

func TestTierSummary(t *testing.T) {
	assert.Equal(t, "simple (unit cost 1)", tierSummary(core.TierSimple))
	assert.Equal(t, "standard (unit cost 4)", tierSummary(core.TierStandard))
	assert.Equal(t, "complex (unit cost 12)", tierSummary(core.TierComplex))
}
