package manifest

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// varsScriptTimeout bounds vars script execution so a looping script cannot
// stall manifest loading.
const varsScriptTimeout = 10 * time.Second

// evalVarsScript runs a Starlark vars script. The static vars are exposed
// as predeclared names; the script's non-underscore globals become the
// computed vars.
func evalVarsScript(script string, vars map[string]interface{}) (map[string]interface{}, error) {
	type evalResult struct {
		globals starlark.StringDict
		err     error
	}
	resultCh := make(chan evalResult, 1)

	go func() {
		thread := &starlark.Thread{
			Name:  "vars_script",
			Print: func(_ *starlark.Thread, _ string) {},
		}

		predeclared := starlark.StringDict{
			"struct": starlarkstruct.Default,
		}
		for key, val := range vars {
			sv, err := toStarlarkValue(val)
			if err != nil {
				resultCh <- evalResult{err: fmt.Errorf("cannot expose var %s: %w", key, err)}
				return
			}
			predeclared[key] = sv
		}

		globals, err := starlark.ExecFile(thread, "vars.star", script, predeclared)
		resultCh <- evalResult{globals: globals, err: err}
	}()

	select {
	case <-time.After(varsScriptTimeout):
		return nil, fmt.Errorf("execution timed out after %v", varsScriptTimeout)
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		output := make(map[string]interface{}, len(result.globals))
		for name, val := range result.globals {
			if len(name) > 0 && name[0] == '_' {
				continue
			}
			goVal, err := fromStarlarkValue(val)
			if err != nil {
				return nil, fmt.Errorf("cannot convert global %s: %w", name, err)
			}
			output[name] = goVal
		}
		return output, nil
	}
}

// toStarlarkValue converts a Go value to its Starlark equivalent.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// fromStarlarkValue converts a Starlark value back to plain Go.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{}, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type %s", v.Type())
	}
}
