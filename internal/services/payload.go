package services

import (
	"encoding/json"
)

// mergeJSONObjects shallow-merges patch into base: top-level keys from
// patch replace keys in base, everything else carries over unchanged.
func mergeJSONObjects(base, patch json.RawMessage) (json.RawMessage, error) {
	if len(patch) == 0 {
		if len(base) == 0 {
			return nil, nil
		}
		out := make(json.RawMessage, len(base))
		copy(out, base)
		return out, nil
	}

	var patchObj map[string]any
	if err := json.Unmarshal(patch, &patchObj); err != nil {
		return nil, err
	}
	if patchObj == nil {
		patchObj = map[string]any{}
	}

	var baseObj map[string]any
	if len(base) > 0 {
		if err := json.Unmarshal(base, &baseObj); err != nil {
			return nil, err
		}
	}
	if baseObj == nil {
		baseObj = map[string]any{}
	}

	for k, v := range patchObj {
		baseObj[k] = v
	}

	merged, err := json.Marshal(baseObj)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(merged), nil
}

func payloadSizeBytes(raw json.RawMessage) int {
	return len(raw)
}
