package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// canonicalMarshal produces the deterministic encoding every ledger value
// is persisted with. State must be byte-identical across replicas of the
// underlying ledger, so the value is round-tripped through a generic tree:
// encoding/json emits map keys sorted, and json.Number keeps numeric
// literals exactly as written.
func canonicalMarshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to canonicalize record: %w", err)
	}

	canonical, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize record: %w", err)
	}
	return canonical, nil
}

func decodeRecord(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}
