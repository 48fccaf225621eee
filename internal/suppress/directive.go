package suppress

import (
	"strings"

	"bugcheck/internal/check"
)

// IgnoreDirective is the generic suppression list directive:
//
//	//bugcheck:ignore SelfAssignment,EmptyIf -- reason
const IgnoreDirective = "bugcheck:ignore"

// Set is what the directives in one comment group say.
type Set struct {
	all    bool
	names  map[string]struct{}
	custom map[string]struct{}
}

// parseDirective records a "//name args" comment. Comments with a space after
// the slashes are prose and are ignored.
func (s *Set) parseDirective(text string) bool {
	body, ok := strings.CutPrefix(text, "//")
	if !ok || body == "" || body[0] == ' ' || body[0] == '\t' {
		return false
	}
	name, args, _ := strings.Cut(body, " ")
	name = strings.TrimSpace(name)
	if name == IgnoreDirective {
		if reason := strings.Index(args, "--"); reason >= 0 {
			args = args[:reason]
		}
		for _, n := range strings.FieldsFunc(args, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			if n == "all" {
				s.all = true
				continue
			}
			if s.names == nil {
				s.names = make(map[string]struct{})
			}
			s.names[n] = struct{}{}
		}
		return true
	}
	if s.custom == nil {
		s.custom = make(map[string]struct{})
	}
	s.custom[name] = struct{}{}
	return true
}

func (s *Set) empty() bool {
	return !s.all && len(s.names) == 0 && len(s.custom) == 0
}

// Suppresses reports whether the directives silence the check.
func (s *Set) Suppresses(info check.Info) bool {
	if s == nil || info.Suppress == check.Unsuppressible {
		return false
	}
	for _, c := range info.CustomSuppressions {
		if _, ok := s.custom[c]; ok {
			return true
		}
	}
	if info.Suppress == check.CustomSuppressionOnly {
		return false
	}
	if s.all {
		return true
	}
	if _, ok := s.names[info.Name]; ok {
		return true
	}
	for _, n := range info.AltNames {
		if _, ok := s.names[n]; ok {
			return true
		}
	}
	return false
}

// Names lists the check names of an ignore directive, "all" included.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.names)+1)
	if s.all {
		out = append(out, "all")
	}
	for n := range s.names {
		out = append(out, n)
	}
	check.SortNames(out)
	return out
}
