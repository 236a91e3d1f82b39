package processing

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/mitchellh/copystructure"
	"gopkg.in/yaml.v3"
)

// maxInterpolationPasses bounds how deep values may reference each other.
const maxInterpolationPasses = 8

// LoadContextFile reads a YAML file and returns it as a map.
func LoadContextFile(filename string) (map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading context file: %w", err)
	}

	var ctx map[string]any
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parsing context file: %w", err)
	}

	if ctx == nil {
		ctx = make(map[string]any)
	}

	return ctx, nil
}

// MergeContext performs a shallow merge of local context over global context.
// Local keys override global keys at the top level. Nested values are
// shared with the inputs; use CopyContext before modifying them.
func MergeContext(global, local map[string]any) map[string]any {
	merged := make(map[string]any, len(global)+len(local))
	maps.Copy(merged, global)
	maps.Copy(merged, local)
	return merged
}

// CopyContext returns a deep copy of ctx, so nested maps and lists can be
// rewritten without touching the original.
func CopyContext(ctx map[string]any) (map[string]any, error) {
	if ctx == nil {
		return make(map[string]any), nil
	}
	out, err := copystructure.Copy(ctx)
	if err != nil {
		return nil, fmt.Errorf("copying context: %w", err)
	}
	return out.(map[string]any), nil
}

// InterpolateContext renders string values containing template actions
// against the context itself, in place. Nested maps and lists are walked.
// Rendering repeats until no value changes, up to maxInterpolationPasses.
func InterpolateContext(ctx map[string]any) error {
	for range maxInterpolationPasses {
		changed, err := interpolateMap(ctx, ctx, "")
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
	return fmt.Errorf("context values still changing after %d passes", maxInterpolationPasses)
}

func interpolateMap(m, data map[string]any, prefix string) (bool, error) {
	changed := false
	for _, k := range slices.Sorted(maps.Keys(m)) {
		v, c, err := interpolateValue(m[k], data, prefix+k)
		if err != nil {
			return false, err
		}
		if c {
			m[k] = v
			changed = true
		}
	}
	return changed, nil
}

func interpolateValue(v any, data map[string]any, path string) (any, bool, error) {
	switch val := v.(type) {
	case string:
		if !strings.Contains(val, "{{") {
			return val, false, nil
		}
		out, err := renderString(path, val, data)
		if err != nil {
			return nil, false, err
		}
		return out, out != val, nil
	case map[string]any:
		c, err := interpolateMap(val, data, path+".")
		return val, c, err
	case []any:
		changed := false
		for i := range val {
			nv, c, err := interpolateValue(val[i], data, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, false, err
			}
			if c {
				val[i] = nv
				changed = true
			}
		}
		return val, changed, nil
	default:
		return v, false, nil
	}
}

func renderString(name, text string, data map[string]any) (string, error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing context value %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering context value %q: %w", name, err)
	}
	return buf.String(), nil
}
