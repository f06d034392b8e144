package users

import "encoding/json"

// ParseLocation normalizes the loosely-typed location field clients send:
// sometimes a JSON array, sometimes a bare scalar. Fallback order is
// fixed here so no endpoint parses it ad hoc: try an array of strings,
// else wrap the scalar in a single-element list.
func ParseLocation(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}

	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return []string{}
		}
		return []string{one}
	}

	// unknown shape: keep the raw text as a single entry rather than drop it
	return []string{string(raw)}
}

// EncodeLocation renders the normalized list back to the stored JSON text.
func EncodeLocation(locations []string) string {
	if locations == nil {
		locations = []string{}
	}
	b, err := json.Marshal(locations)
	if err != nil {
		return "[]"
	}
	return string(b)
}
