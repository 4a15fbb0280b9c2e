package marketsdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepClassificationMutualExclusivity(t *testing.T) {
	ids := []StepID{
		StepIDTokenApproval, StepIDBuy, StepIDSell, StepIDCancel,
		StepIDCreateListing, StepIDCreateOffer, StepIDSignEIP191, StepIDSignEIP712,
	}
	for _, id := range ids {
		assert.NotEqual(t, IsTransactionStep(id), IsSignatureStep(id),
			"step %s must be exactly one of transaction or signature", id)
	}

	// unknown is neither
	assert.False(t, IsTransactionStep(StepIDUnknown))
	assert.False(t, IsSignatureStep(StepIDUnknown))

	// ids outside the closed set are neither
	assert.False(t, IsTransactionStep(StepID("mint")))
	assert.False(t, IsSignatureStep(StepID("mint")))
}

func TestFindStep(t *testing.T) {
	steps := []*Step{
		{ID: StepIDTokenApproval},
		{ID: StepIDCreateListing},
	}
	assert.Equal(t, steps[0], findStep(steps, StepIDTokenApproval))
	assert.Equal(t, steps[1], findStep(steps, StepIDCreateListing))
	assert.Nil(t, findStep(steps, StepIDCancel))
	assert.Nil(t, findStep(nil, StepIDCancel))
}
