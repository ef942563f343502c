package device

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cast"
)

// Reserved settings keys, written by the device lifecycle only.
const (
	StartTimestampKey = "start_timestamp"
	EndTimestampKey   = "end_timestamp"
)

// Settings holds the class-specific configuration of one device. It is the
// document that ends up in the device metadata sidecar.
type Settings map[string]any

// Clone returns a deep copy of the settings so that two sessions never share
// the same mutable maps or slices.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Settings:
		return t.Clone()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Has reports whether key is present.
func (s Settings) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Int returns the setting as an integer. YAML ints, floats and numeric
// strings are accepted.
func (s Settings) Int(key string) (int, error) {
	v, ok := s[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingSetting, key)
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSetting, key, err)
	}
	return n, nil
}

// Float returns the setting as a float64.
func (s Settings) Float(key string) (float64, error) {
	v, ok := s[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingSetting, key)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSetting, key, err)
	}
	return f, nil
}

// String returns the setting as a string.
func (s Settings) String(key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingSetting, key)
	}
	str, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidSetting, key, err)
	}
	return str, nil
}

// Map returns a nested mapping setting with stringified keys.
func (s Settings) Map(key string) (map[string]any, error) {
	v, ok := s[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingSetting, key)
	}
	if st, ok := v.(Settings); ok {
		return map[string]any(st), nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSetting, key, err)
	}
	return m, nil
}

// SortIDs returns the keys of a discovery result in display order: numeric
// ids ascending first, then the remaining ids lexically.
func SortIDs[V any](found map[string]V) []string {
	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aErr := strconv.Atoi(ids[i])
		b, bErr := strconv.Atoi(ids[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}
