package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	PartyID string         `json:"partyId"`
	Count   int            `json:"count"`
	Ratio   float64        `json:"ratio"`
	Nested  map[string]any `json:"nested"`
}

func TestMapReadsJSONTags(t *testing.T) {
	out, err := Map[samplePayload](map[string]any{
		"partyId": "p1",
		"count":   3.0, // JSON numbers arrive as float64
		"ratio":   0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", out.PartyID)
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, 0.5, out.Ratio)
}

func TestMapDoubleEncodedNested(t *testing.T) {
	out, err := Map[samplePayload](map[string]any{
		"partyId": "p1",
		"nested":  `{"k":"v"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "v", out.Nested["k"])
}

func TestMapNilPayload(t *testing.T) {
	_, err := Map[samplePayload](nil)
	assert.Error(t, err)
}

func TestMapIgnoresUnknownFields(t *testing.T) {
	out, err := Map[samplePayload](map[string]any{
		"partyId": "p1",
		"extra":   "whatever",
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", out.PartyID)
}
