package scanner

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Flags is an opaque key/value bag handed through to checks. The scanner
// never interprets it.
type Flags struct {
	m map[string]string
}

// NewFlags copies m into a bag.
func NewFlags(m map[string]string) Flags {
	if len(m) == 0 {
		return Flags{}
	}
	return Flags{m: maps.Clone(m)}
}

// ParseFlag splits "key=value"; a bare "key" means "true".
func ParseFlag(s string) (key, value string, err error) {
	key, value, found := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", fmt.Errorf("invalid flag %q: empty key", s)
	}
	if !found {
		value = "true"
	}
	return key, value, nil
}

// Get returns the raw value for key.
func (f Flags) Get(key string) (string, bool) {
	v, ok := f.m[key]
	return v, ok
}

// GetBool parses the value for key. ok is false when the key is absent.
func (f Flags) GetBool(key string) (v, ok bool, err error) {
	raw, present := f.m[key]
	if !present {
		return false, false, nil
	}
	v, err = strconv.ParseBool(raw)
	if err != nil {
		return false, true, fmt.Errorf("flag %s: %w", key, err)
	}
	return v, true, nil
}

// With returns a copy with key set to value.
func (f Flags) With(key, value string) Flags {
	m := make(map[string]string, len(f.m)+1)
	maps.Copy(m, f.m)
	m[key] = value
	return Flags{m: m}
}

// Plus merges two bags; keys of other win.
func (f Flags) Plus(other Flags) Flags {
	if len(other.m) == 0 {
		return f
	}
	if len(f.m) == 0 {
		return other
	}
	m := maps.Clone(f.m)
	maps.Copy(m, other.m)
	return Flags{m: m}
}

func (f Flags) Len() int { return len(f.m) }

// Keys returns the keys in sorted order.
func (f Flags) Keys() []string {
	return slices.Sorted(maps.Keys(f.m))
}

// Map returns a copy of the underlying map.
func (f Flags) Map() map[string]string {
	return maps.Clone(f.m)
}
