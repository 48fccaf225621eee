package check

import (
	"fmt"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Registry is the read-only name index over a set of check records.
// Alternate names resolve to their canonical record.
type Registry struct {
	infos   map[string]Info
	aliases map[string]string
	names   []string
}

// NewRegistry indexes infos. Any name used twice is an error.
func NewRegistry(infos ...Info) (*Registry, error) {
	r := &Registry{
		infos:   make(map[string]Info, len(infos)),
		aliases: make(map[string]string, len(infos)),
	}
	for _, info := range infos {
		if err := info.Validate(); err != nil {
			return nil, err
		}
		for _, n := range info.AllNames() {
			if prev, ok := r.aliases[n]; ok {
				return nil, fmt.Errorf("check name %q used by both %s and %s", n, prev, info.Name)
			}
			r.aliases[n] = info.Name
		}
		r.infos[info.Name] = cloneInfo(info)
		r.names = append(r.names, info.Name)
	}
	SortNames(r.names)
	return r, nil
}

// Lookup resolves a canonical or alternate name.
func (r *Registry) Lookup(name string) (Info, bool) {
	canon, ok := r.aliases[name]
	if !ok {
		return Info{}, false
	}
	return cloneInfo(r.infos[canon]), true
}

// Canonical maps a name to its canonical form.
func (r *Registry) Canonical(name string) (string, bool) {
	canon, ok := r.aliases[name]
	return canon, ok
}

// Names returns the canonical names in display order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

func (r *Registry) Len() int {
	return len(r.names)
}

// SortNames orders check names the way listings show them: case-insensitive,
// with numeric runs compared by value.
func SortNames(names []string) {
	collate.New(language.English, collate.IgnoreCase, collate.Numeric).SortStrings(names)
}
