package check

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"bugcheck/internal/diag"
)

// Suppressibility says how a check can be silenced and whether it can be
// turned off.
type Suppressibility uint8

const (
	// SuppressWithDirective checks honour //bugcheck:ignore lists and their custom directives.
	SuppressWithDirective Suppressibility = iota
	// CustomSuppressionOnly checks are silenced only by their own directives.
	CustomSuppressionOnly
	// Unsuppressible checks can be neither silenced nor disabled.
	Unsuppressible
)

func (s Suppressibility) String() string {
	switch s {
	case SuppressWithDirective:
		return "directive"
	case CustomSuppressionOnly:
		return "custom-only"
	case Unsuppressible:
		return "unsuppressible"
	}
	return "unknown"
}

// Disableable reports whether an OFF override may switch the check off.
func (s Suppressibility) Disableable() bool {
	return s != Unsuppressible
}

// Info is the registry record of a check.
type Info struct {
	Name        string
	AltNames    []string
	Summary     string
	Explanation string
	Link        string
	Severity    diag.Severity
	Suppress    Suppressibility
	// CustomSuppressions lists directive names (without the leading "//")
	// that silence the check, e.g. "bugcheck:allow-dot-import".
	CustomSuppressions []string
	Tags               []string
}

var (
	ErrEmptyName   = errors.New("check name is empty")
	ErrInvalidName = errors.New("check name must be an identifier")
)

// Disableable mirrors Suppress.Disableable.
func (i Info) Disableable() bool {
	return i.Suppress.Disableable()
}

// AllNames returns the canonical name followed by the alternate names.
func (i Info) AllNames() []string {
	out := make([]string, 0, 1+len(i.AltNames))
	out = append(out, i.Name)
	return append(out, i.AltNames...)
}

// HasName reports whether name is the canonical or an alternate name.
func (i Info) HasName(name string) bool {
	return name == i.Name || slices.Contains(i.AltNames, name)
}

// Validate checks the record is usable as a registry key.
func (i Info) Validate() error {
	for _, n := range i.AllNames() {
		if n == "" {
			return ErrEmptyName
		}
		for _, r := range n {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
				return fmt.Errorf("%q: %w", n, ErrInvalidName)
			}
		}
	}
	if i.Suppress > Unsuppressible {
		return fmt.Errorf("%s: unknown suppressibility %d", i.Name, i.Suppress)
	}
	for _, c := range i.CustomSuppressions {
		if strings.TrimSpace(c) == "" || strings.ContainsAny(c, " \t") {
			return fmt.Errorf("%s: malformed custom suppression %q", i.Name, c)
		}
	}
	return nil
}
