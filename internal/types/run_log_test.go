package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestEstimateCost(t *testing.T) {
	cost := EstimateCost("gemini-1.5-pro", intPtr(1_000_000), intPtr(1_000_000))
	require.NotNil(t, cost)
	assert.InDelta(t, 6.25, *cost, 1e-9)

	cost = EstimateCost("unknown-model", intPtr(1000), intPtr(2000))
	require.NotNil(t, cost)
	assert.InDelta(t, 0.0009, *cost, 1e-9)
}

func TestEstimateCost_RoundsToSixDecimals(t *testing.T) {
	cost := EstimateCost("gemini-3-flash-preview", intPtr(7), intPtr(3))
	require.NotNil(t, cost)
	assert.InDelta(t, 0.000001, *cost, 1e-12)
}

func TestEstimateCost_MissingCounts(t *testing.T) {
	assert.Nil(t, EstimateCost("gemini-1.5-pro", nil, intPtr(10)))
	assert.Nil(t, EstimateCost("gemini-1.5-pro", intPtr(10), nil))
}

func TestCreateProjectRequest(t *testing.T) {
	req := &CreateProjectRequest{ClientName: "Acme"}
	require.NoError(t, req.Validate())
	req.Normalize()
	assert.Equal(t, LanguagePortuguese, req.Language)

	bad := &CreateProjectRequest{ClientName: "Acme", Language: "fr"}
	assert.Error(t, bad.Validate())
	assert.Error(t, (&CreateProjectRequest{}).Validate())
}
