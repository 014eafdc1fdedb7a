package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Params is a free-form JSON mapping stored on execution requests and handler infos.
type Params map[string]any

func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}

	return maps.Clone(p)
}

// Merge returns a copy of p overlaid with other.
func (p Params) Merge(other map[string]any) Params {
	merged := p.Clone()
	for k, v := range other {
		merged[k] = v
	}

	return merged
}

func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Bool accepts native booleans and the "True"/"False" strings sent by form uploads.
func (p Params) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))

		return err == nil && b
	default:
		return false
	}
}

func (p Params) Int(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()

		return int(n)
	case string:
		n, _ := strconv.Atoi(v)

		return n
	default:
		return 0
	}
}

// Files returns the logical role to local path mapping.
func (p Params) Files() map[string]string {
	files := map[string]string{}

	switch v := p[ParamFiles].(type) {
	case map[string]string:
		for role, path := range v {
			files[role] = path
		}
	case map[string]any:
		for role, path := range v {
			if s, ok := path.(string); ok {
				files[role] = s
			}
		}
	}

	return files
}

func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}

		return out
	default:
		return nil
	}
}

// Map returns a nested mapping, or nil.
func (p Params) Map(key string) map[string]any {
	switch v := p[key].(type) {
	case map[string]any:
		return v
	case Params:
		return v
	default:
		return nil
	}
}
