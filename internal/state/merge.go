package state

import (
	"encoding/json"
)

// MergeDocuments folds src into dst and returns dst. The rule, applied
// recursively: an absent or falsy value in src (nil, "", false, 0, empty list,
// empty object) never overwrites anything in dst; nested objects merge key by
// key; any other value in src replaces the one in dst.
func MergeDocuments(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, sv := range src {
		if isEmpty(sv) {
			continue
		}
		srcMap, srcIsMap := sv.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = MergeDocuments(dstMap, srcMap)
			continue
		}
		if srcIsMap {
			dst[k] = MergeDocuments(nil, srcMap)
			continue
		}
		dst[k] = sv
	}
	return dst
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		for _, inner := range t {
			if !isEmpty(inner) {
				return false
			}
		}
		return true
	}
	return false
}

// MergeCampaign returns a new campaign state with update folded over base
// according to MergeDocuments. Either side may be nil.
func MergeCampaign(base, update *CampaignState) (*CampaignState, error) {
	if base == nil && update == nil {
		return nil, nil
	}
	dst, err := toDocument(base)
	if err != nil {
		return nil, err
	}
	src, err := toDocument(update)
	if err != nil {
		return nil, err
	}
	merged := MergeDocuments(dst, src)

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	var out CampaignState
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func toDocument(v any) (map[string]any, error) {
	doc := map[string]any{}
	if v == nil {
		return doc, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
