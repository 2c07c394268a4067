package registry

import (
	"encoding/json"
	"fmt"
)

// EncodeSnapshot serializes assets, in order, as a JSON array of
// [name, record] pairs.
func EncodeSnapshot(assets []Asset) ([]byte, error) {
	pairs := make([][2]any, 0, len(assets))
	for _, a := range assets {
		if a.History == nil {
			a.History = []ScanEvent{}
		}
		pairs = append(pairs, [2]any{a.Name, a})
	}
	return json.MarshalIndent(pairs, "", "  ")
}

// DecodeSnapshot parses the output of EncodeSnapshot. The pair key is
// authoritative for the asset name. Duplicate names are rejected.
func DecodeSnapshot(data []byte) ([]Asset, error) {
	var pairs [][]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	assets := make([]Asset, 0, len(pairs))
	seen := make(map[string]struct{}, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("snapshot entry %d: expected [name, record] pair, got %d elements", i, len(pair))
		}
		var name string
		if err := json.Unmarshal(pair[0], &name); err != nil {
			return nil, fmt.Errorf("snapshot entry %d: decoding name: %w", i, err)
		}
		if name == "" {
			return nil, fmt.Errorf("snapshot entry %d: empty name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("snapshot entry %d: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}

		var a Asset
		if err := json.Unmarshal(pair[1], &a); err != nil {
			return nil, fmt.Errorf("snapshot entry %d (%s): decoding record: %w", i, name, err)
		}
		a.Name = name
		if a.History == nil {
			a.History = []ScanEvent{}
		}
		assets = append(assets, a)
	}
	return assets, nil
}
