package normalize

import (
	"github.com/goccy/go-json"
)

// Clean prunes nil values, empty arrays and empty objects from a decoded
// JSON tree, bottom-up. Scalars are returned unchanged; a container that
// becomes empty is reported as nil.
func Clean(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if c := Clean(child); c != nil {
				out[k] = c
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, child := range t {
			if c := Clean(child); c != nil {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return v
	}
}

// Sparse encodes v as JSON, decodes it into a generic tree and cleans it.
// An entirely empty value becomes an empty object.
func Sparse(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}

	cleaned := Clean(tree)
	if cleaned == nil {
		return map[string]any{}, nil
	}
	return cleaned, nil
}
