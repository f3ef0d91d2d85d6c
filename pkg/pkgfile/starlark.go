package pkgfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/pkgsmith/pkgsmith/pkg/engine"
)

// DefaultStarlarkTimeout bounds the execution of one definition script.
const DefaultStarlarkTimeout = 10 * time.Second

// StarlarkLoader evaluates Starlark package definition scripts. A script
// must assign a dict to the global `pkg` with the same shape as a YAML
// package definition; everything else in the script is procedural sugar.
type StarlarkLoader struct {
	timeout time.Duration
}

// NewStarlarkLoader creates a loader. A zero timeout selects the default.
func NewStarlarkLoader(timeout time.Duration) *StarlarkLoader {
	if timeout == 0 {
		timeout = DefaultStarlarkTimeout
	}
	return &StarlarkLoader{timeout: timeout}
}

// LoadPackage executes script and extracts the `pkg` global.
func (sl *StarlarkLoader) LoadPackage(filename, script string) (*engine.Package, error) {
	type outcome struct {
		globals starlark.StringDict
		err     error
	}
	ch := make(chan outcome, 1)

	thread := &starlark.Thread{
		Name: "pkgsmith",
		Print: func(_ *starlark.Thread, _ string) {
			// Definition scripts have no output channel.
		},
	}

	go func() {
		globals, err := starlark.ExecFile(thread, filename, script, sl.predeclared())
		ch <- outcome{globals, err}
	}()

	select {
	case <-time.After(sl.timeout):
		thread.Cancel("timeout")
		out := <-ch
		if out.err != nil {
			return nil, fmt.Errorf("starlark evaluation of %s timed out after %s", filename, sl.timeout)
		}
		return sl.extract(filename, out.globals)
	case out := <-ch:
		if out.err != nil {
			return nil, fmt.Errorf("starlark evaluation of %s failed: %w", filename, out.err)
		}
		return sl.extract(filename, out.globals)
	}
}

func (sl *StarlarkLoader) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlarkstruct.Default,
	}
}

func (sl *StarlarkLoader) extract(filename string, globals starlark.StringDict) (*engine.Package, error) {
	val, ok := globals["pkg"]
	if !ok {
		return nil, fmt.Errorf("%s does not define a global `pkg`", filename)
	}

	goVal, err := fromStarlarkValue(val)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid pkg value: %w", filename, err)
	}

	raw, err := json.Marshal(goVal)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode pkg value: %w", filename, err)
	}

	var pkg engine.Package
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pkg); err != nil {
		return nil, fmt.Errorf("%s: pkg does not match the package shape: %w", filename, err)
	}
	return &pkg, nil
}

// fromStarlarkValue converts a Starlark value to a plain Go value.
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
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
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
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
