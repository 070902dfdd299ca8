// Package policy implements attribute-based access policy evaluation.
//
// A policy is a list of clauses. Each clause maps attribute dimensions
// (such as "interest" or "languages") to the set of string values required
// or offered for that dimension. An asset's policy is satisfied when every
// asset clause is covered by at least one clause the requester holds.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidFormat is returned when a policy set cannot be decoded into a
// list of clauses.
var ErrInvalidFormat = errors.New("invalid policy format")

// Clause maps attribute dimensions to their value sets.
type Clause map[string][]string

// Set is an ordered list of clauses.
type Set []Clause

// Covers reports whether clause u satisfies clause a. For every dimension
// present in a, all of a's values must be contained in u's values for that
// dimension. Dimensions absent from a impose no constraint; dimensions
// absent from u are treated as empty sets.
func (u Clause) Covers(a Clause) bool {
	for dim, required := range a {
		offered := u[dim]
		if !subset(required, offered) {
			return false
		}
	}
	return true
}

// Matches reports whether userPolicy satisfies assetPolicy: every clause in
// assetPolicy must be covered by at least one clause in userPolicy. An empty
// assetPolicy is vacuously satisfied.
func Matches(assetPolicy, userPolicy Set) bool {
	for _, a := range assetPolicy {
		covered := false
		for _, u := range userPolicy {
			if u.Covers(a) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

func subset(required, offered []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(offered))
	for _, v := range offered {
		have[v] = struct{}{}
	}
	for _, v := range required {
		if _, ok := have[v]; !ok {
			return false
		}
	}
	return true
}

// Normalize decodes a policy set from its historical wire shapes: a JSON
// array of clauses, a single clause object, or a JSON string containing
// either of those. The result is always a list. Dimension values may be a
// string array or a bare string; bare strings become single-element sets.
func Normalize(raw json.RawMessage) (Set, error) {
	if len(raw) == 0 {
		return Set{}, nil
	}

	// Unwrap double-encoded policy sets.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Normalize(json.RawMessage(s))
	}

	var rawClauses []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawClauses); err != nil {
		var single map[string]json.RawMessage
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("%w: neither clause list, clause object nor string", ErrInvalidFormat)
		}
		rawClauses = []map[string]json.RawMessage{single}
	}

	set := make(Set, 0, len(rawClauses))
	for _, rc := range rawClauses {
		clause := make(Clause, len(rc))
		for dim, rv := range rc {
			values, err := normalizeValues(rv)
			if err != nil {
				return nil, fmt.Errorf("%w: dimension %q: %v", ErrInvalidFormat, dim, err)
			}
			clause[dim] = values
		}
		set = append(set, clause)
	}
	return set, nil
}

func normalizeValues(raw json.RawMessage) ([]string, error) {
	var values []string
	if err := json.Unmarshal(raw, &values); err == nil {
		return values, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	return nil, errors.New("values must be a string or string array")
}

// HashedAttribute pairs one (dimension, values) attribute with its SHA-256
// digest. The digest is what secret-sharing fragments are tagged with.
type HashedAttribute struct {
	Dimension string   `json:"dimension"`
	Values    []string `json:"values"`
	Hash      string   `json:"hash"`
}

// HashAttributes flattens a policy set into its hashed attributes. Within a
// clause, dimensions are visited in sorted order so that the same policy
// always yields the same attribute sequence on every replica.
func HashAttributes(set Set) []HashedAttribute {
	var out []HashedAttribute
	for _, clause := range set {
		dims := make([]string, 0, len(clause))
		for dim := range clause {
			dims = append(dims, dim)
		}
		sort.Strings(dims)
		for _, dim := range dims {
			out = append(out, HashedAttribute{
				Dimension: dim,
				Values:    clause[dim],
				Hash:      HashAttribute(dim, clause[dim]),
			})
		}
	}
	return out
}

// HashAttribute computes the hex SHA-256 digest of one attribute as
// "dimension:<canonical JSON of values>".
func HashAttribute(dimension string, values []string) string {
	encoded, _ := json.Marshal(values)
	sum := sha256.Sum256([]byte(dimension + ":" + string(encoded)))
	return hex.EncodeToString(sum[:])
}
