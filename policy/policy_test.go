package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches_SubsetRule(t *testing.T) {
	asset := Set{{"interest": {"AI"}, "languages": {"Python"}}}

	tests := []struct {
		name string
		user Set
		want bool
	}{
		{
			name: "exact match",
			user: Set{{"interest": {"AI"}, "languages": {"Python"}}},
			want: true,
		},
		{
			name: "user offers superset",
			user: Set{{"interest": {"AI", "Cybersecurity"}, "languages": {"Python", "Java"}}},
			want: true,
		},
		{
			name: "missing one required value",
			user: Set{{"interest": {"AI"}, "languages": {"Java"}}},
			want: false,
		},
		{
			name: "missing dimension on user side",
			user: Set{{"interest": {"AI"}}},
			want: false,
		},
		{
			name: "covered by second clause",
			user: Set{
				{"interest": {"Web Design"}},
				{"interest": {"AI"}, "languages": {"Python"}},
			},
			want: true,
		},
		{
			name: "empty user policy",
			user: Set{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(asset, tt.user))
		})
	}
}

func TestMatches_EmptyAssetPolicy(t *testing.T) {
	// Empty asset policy is vacuously satisfied, even by an empty user policy.
	assert.True(t, Matches(Set{}, Set{}))
	assert.True(t, Matches(nil, Set{{"interest": {"AI"}}}))
}

func TestMatches_MultiClauseAssetPolicy(t *testing.T) {
	asset := Set{
		{"interest": {"AI"}},
		{"languages": {"Python", "Ruby"}},
	}

	// Both asset clauses must be covered, possibly by different user clauses.
	user := Set{
		{"interest": {"AI", "Cybersecurity"}},
		{"languages": {"Python", "Ruby", "Java"}},
	}
	assert.True(t, Matches(asset, user))

	// One asset clause uncovered fails the whole match.
	partial := Set{{"interest": {"AI"}}}
	assert.False(t, Matches(asset, partial))
}

func TestMatches_AbsentDimensionsImposeNoConstraint(t *testing.T) {
	asset := Set{{"interest": {"AI"}}}
	user := Set{{"interest": {"AI"}, "languages": {"C++"}}}
	assert.True(t, Matches(asset, user))

	// Empty required value set is trivially a subset.
	assert.True(t, Matches(Set{{"interest": {}}}, Set{{}}))
}

func TestNormalize_Shapes(t *testing.T) {
	want := Set{{"interest": {"AI"}, "languages": {"Python"}}}

	tests := []struct {
		name string
		raw  string
	}{
		{"clause list", `[{"interest":["AI"],"languages":["Python"]}]`},
		{"single clause object", `{"interest":["AI"],"languages":["Python"]}`},
		{"double-encoded string", `"[{\"interest\":[\"AI\"],\"languages\":[\"Python\"]}]"`},
		{"bare string values", `[{"interest":"AI","languages":"Python"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, raw := range []string{`42`, `[42]`, `{"interest":42}`, `[[]]`} {
		_, err := Normalize(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrInvalidFormat, "raw: %s", raw)
	}
}

func TestNormalize_Empty(t *testing.T) {
	got, err := Normalize(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHashAttributes_DeterministicOrder(t *testing.T) {
	set := Set{{"languages": {"Python"}, "interest": {"AI"}}}

	first := HashAttributes(set)
	require.Len(t, first, 2)

	// Dimensions come out sorted regardless of map iteration order.
	assert.Equal(t, "interest", first[0].Dimension)
	assert.Equal(t, "languages", first[1].Dimension)

	for i := 0; i < 50; i++ {
		again := HashAttributes(set)
		assert.Equal(t, first, again)
	}
}

func TestHashAttribute_DependsOnDimensionAndValues(t *testing.T) {
	h1 := HashAttribute("interest", []string{"AI"})
	h2 := HashAttribute("interest", []string{"ML"})
	h3 := HashAttribute("languages", []string{"AI"})

	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Equal(t, h1, HashAttribute("interest", []string{"AI"}))
}
