package scanner

import (
	"fmt"
	"maps"
	"slices"

	"bugcheck/internal/check"
	"bugcheck/internal/diag"
)

// Supplier is the universe of available checks together with their effective
// severities, the set of disabled names and the flags handed to checks.
// Every operation returns a new Supplier; a Supplier is never mutated after
// construction and may be shared between goroutines.
type Supplier struct {
	checks     map[string]*check.Check
	names      []string          // canonical names in listing order
	aliases    map[string]string // canonical and alternate name -> canonical
	severities map[string]diag.Severity
	disabled   map[string]struct{}
	flags      Flags
}

// FromChecks builds a supplier where every check runs at its own severity.
// A name used by two checks, canonical or alternate, is an error.
func FromChecks(checks ...*check.Check) (*Supplier, error) {
	m := make(map[string]*check.Check, len(checks))
	infos := make([]check.Info, 0, len(checks))
	for _, c := range checks {
		if c == nil {
			return nil, fmt.Errorf("nil check")
		}
		m[c.Name()] = c
		infos = append(infos, c.Info())
	}
	if _, err := check.NewRegistry(infos...); err != nil {
		return nil, err
	}
	return newSupplier(m, nil, nil, Flags{}), nil
}

// FromInfos builds a supplier of checks that carry no matchers. It serves
// listing and configuration validation.
func FromInfos(infos ...check.Info) (*Supplier, error) {
	checks := make([]*check.Check, 0, len(infos))
	for _, info := range infos {
		c, err := check.FromInfo(info)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return FromChecks(checks...)
}

// newSupplier takes ownership of its arguments. Nil severities means every
// check at its default.
func newSupplier(checks map[string]*check.Check, severities map[string]diag.Severity, disabled map[string]struct{}, flags Flags) *Supplier {
	s := &Supplier{
		checks:     checks,
		names:      slices.Collect(maps.Keys(checks)),
		aliases:    make(map[string]string, len(checks)),
		severities: severities,
		disabled:   disabled,
		flags:      flags,
	}
	check.SortNames(s.names)
	if s.severities == nil {
		s.severities = make(map[string]diag.Severity, len(checks))
		for name, c := range checks {
			s.severities[name] = c.Info().Severity
		}
	}
	if s.disabled == nil {
		s.disabled = make(map[string]struct{})
	}
	for _, name := range s.names {
		for _, n := range checks[name].Info().AllNames() {
			s.aliases[n] = name
		}
	}
	return s
}

// Canonical resolves a canonical or alternate name.
func (s *Supplier) Canonical(name string) (string, bool) {
	c, ok := s.aliases[name]
	return c, ok
}

// Lookup returns the check known under name.
func (s *Supplier) Lookup(name string) (*check.Check, bool) {
	canon, ok := s.aliases[name]
	if !ok {
		return nil, false
	}
	return s.checks[canon], true
}

// AllChecks lists every check, disabled ones included, in listing order.
func (s *Supplier) AllChecks() []*check.Check {
	out := make([]*check.Check, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.checks[name])
	}
	return out
}

// EnabledChecks lists the checks that will run.
func (s *Supplier) EnabledChecks() []*check.Check {
	out := make([]*check.Check, 0, len(s.names))
	for _, name := range s.names {
		if _, off := s.disabled[name]; !off {
			out = append(out, s.checks[name])
		}
	}
	return out
}

// Severity is the effective severity of the named check. A check switched
// off by an override has none.
func (s *Supplier) Severity(name string) (diag.Severity, bool) {
	canon, ok := s.aliases[name]
	if !ok {
		return 0, false
	}
	sev, ok := s.severities[canon]
	return sev, ok
}

func (s *Supplier) IsDisabled(name string) bool {
	canon, ok := s.aliases[name]
	if !ok {
		return false
	}
	_, off := s.disabled[canon]
	return off
}

// Disabled returns the disabled canonical names in listing order.
func (s *Supplier) Disabled() []string {
	out := make([]string, 0, len(s.disabled))
	for _, name := range s.names {
		if _, off := s.disabled[name]; off {
			out = append(out, name)
		}
	}
	return out
}

func (s *Supplier) Flags() Flags { return s.flags }
func (s *Supplier) Len() int     { return len(s.names) }

// Registry indexes the records of all checks by name.
func (s *Supplier) Registry() (*check.Registry, error) {
	infos := make([]check.Info, 0, len(s.names))
	for _, name := range s.names {
		infos = append(infos, s.checks[name].Info())
	}
	return check.NewRegistry(infos...)
}

// ApplyOverrides computes the supplier that results from o. The global
// switches apply first, in the order enable-all-as-warnings,
// drop-errors-to-warnings, disable-all; per-check overrides then apply in
// name order and always win over the switches. With nothing to apply the
// receiver itself is returned.
func (s *Supplier) ApplyOverrides(o *Options) (*Supplier, error) {
	if o.isEmpty() {
		return s, nil
	}

	severities := maps.Clone(s.severities)
	disabled := maps.Clone(s.disabled)

	if o.EnableAllChecksAsWarnings {
		for name := range disabled {
			severities[name] = diag.SevWarning
		}
		clear(disabled)
	}
	if o.DropErrorsToWarnings {
		for name, c := range s.checks {
			if severities[name] == diag.SevError && c.Info().Disableable() {
				severities[name] = diag.SevWarning
			}
		}
	}
	if o.DisableAllChecks {
		for name, c := range s.checks {
			if c.Info().Disableable() {
				disabled[name] = struct{}{}
			}
		}
	}

	for _, requested := range slices.Sorted(maps.Keys(o.Severities)) {
		name, ok := s.aliases[requested]
		if !ok {
			if o.IgnoreUnknownChecks {
				continue
			}
			return nil, &ConfigError{Check: requested, Reason: "is not a valid check name"}
		}
		info := s.checks[name].Info()

		switch o.Severities[requested] {
		case OverrideOff:
			if !info.Disableable() {
				return nil, &ConfigError{Check: name, Reason: "may not be disabled"}
			}
			delete(severities, name)
			disabled[name] = struct{}{}
		case OverrideDefault:
			severities[name] = info.Severity
			delete(disabled, name)
		case OverrideWarn:
			// an undisableable ERROR check stays an error
			_, wasOff := s.disabled[name]
			if !wasOff && !info.Disableable() && info.Severity == diag.SevError {
				return nil, &ConfigError{Check: name, Reason: "is not disableable and may not be demoted to a warning"}
			}
			severities[name] = diag.SevWarning
			delete(disabled, name)
		case OverrideError:
			severities[name] = diag.SevError
			delete(disabled, name)
		default:
			return nil, &ConfigError{Check: name, Reason: fmt.Sprintf("has unknown override %d", o.Severities[requested])}
		}
	}

	return newSupplier(s.checks, severities, disabled, s.flags.Plus(o.Flags)), nil
}

// Plus combines two suppliers, typically the built-in checks with a set of
// custom ones. On a name collision the check and severity of other win;
// disabled sets are united.
func (s *Supplier) Plus(other *Supplier) *Supplier {
	checks := maps.Clone(s.checks)
	maps.Copy(checks, other.checks)
	severities := maps.Clone(s.severities)
	maps.Copy(severities, other.severities)
	disabled := maps.Clone(s.disabled)
	maps.Copy(disabled, other.disabled)
	return newSupplier(checks, severities, disabled, s.flags.Plus(other.flags))
}

// Filter disables every check whose record fails keep. Filtered checks stay
// known and can be enabled again by an override.
func (s *Supplier) Filter(keep func(check.Info) bool) *Supplier {
	disabled := maps.Clone(s.disabled)
	for name, c := range s.checks {
		if !keep(c.Info()) {
			disabled[name] = struct{}{}
		}
	}
	return newSupplier(s.checks, maps.Clone(s.severities), disabled, s.flags)
}

// WithFlags returns a copy whose flags are merged with f.
func (s *Supplier) WithFlags(f Flags) *Supplier {
	return newSupplier(s.checks, maps.Clone(s.severities), maps.Clone(s.disabled), s.flags.Plus(f))
}
