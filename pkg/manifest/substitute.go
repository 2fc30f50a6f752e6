package manifest

import (
	"github.com/convergo/convergo/pkg/render"
)

// substituteValue walks a params tree and renders every string containing
// a template marker against the manifest vars. Non-string scalars pass
// through untouched so numbers and booleans keep their types.
func substituteValue(v interface{}, vars map[string]interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return render.RenderString(val, vars)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			sub, err := substituteValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			sub, err := substituteValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return v, nil
	}
}
