package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalMarshalDeterministic(t *testing.T) {
	asset := &Asset{
		ID:       "a1",
		Kind:     "FULL",
		MetaData: "weights, 1.2GB",
		Owner:    "owner1",
		Name:     "report",
		PolicySet: PolicySet{
			{"languages": {"Python", "Java"}, "interest": {"AI"}},
		},
		ReleasedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}

	first, err := canonicalMarshal(asset)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := canonicalMarshal(asset)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCanonicalMarshalPreservesNumberLiterals(t *testing.T) {
	// Large integers and high-precision decimals must survive the
	// canonicalization round trip byte for byte, not as float64.
	in := map[string]any{
		"big":     json.RawMessage(`9007199254740993`),
		"precise": json.RawMessage(`0.30000000000000004`),
	}
	out, err := canonicalMarshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(out), `9007199254740993`)
	assert.Contains(t, string(out), `0.30000000000000004`)
}

func TestDecodeRecordRejectsGarbage(t *testing.T) {
	var asset Asset
	err := decodeRecord([]byte(`{not json`), &asset)
	assert.Error(t, err)
}

func TestPolicySetRoundTrip(t *testing.T) {
	var ps PolicySet
	require.NoError(t, json.Unmarshal([]byte(`[{"interest":["AI"]}]`), &ps))

	raw, err := json.Marshal(ps)
	require.NoError(t, err)

	var again PolicySet
	require.NoError(t, json.Unmarshal(raw, &again))
	assert.Equal(t, ps, again)
}
