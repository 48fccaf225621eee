package scanner

import (
	"fmt"
	"strings"

	"bugcheck/internal/fix"
)

// Override is a requested severity change for one check.
type Override uint8

const (
	// OverrideDefault restores the check's own severity and enables it.
	OverrideDefault Override = iota
	OverrideOff
	OverrideWarn
	OverrideError
)

func (o Override) String() string {
	switch o {
	case OverrideDefault:
		return "DEFAULT"
	case OverrideOff:
		return "OFF"
	case OverrideWarn:
		return "WARN"
	case OverrideError:
		return "ERROR"
	}
	return "UNKNOWN"
}

func parseOverrideLevel(s string) (Override, bool) {
	switch strings.ToUpper(s) {
	case "DEFAULT":
		return OverrideDefault, true
	case "OFF":
		return OverrideOff, true
	case "WARN", "WARNING":
		return OverrideWarn, true
	case "ERROR":
		return OverrideError, true
	}
	return 0, false
}

// ParseOverride parses "Name" or "Name:LEVEL".
func ParseOverride(s string) (string, Override, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 2 || parts[0] == "" {
		return "", 0, fmt.Errorf("invalid check override %q", s)
	}
	if len(parts) == 1 {
		return parts[0], OverrideDefault, nil
	}
	o, ok := parseOverrideLevel(parts[1])
	if !ok {
		return "", 0, &ConfigError{Check: parts[0], Reason: fmt.Sprintf("has invalid severity %q", parts[1])}
	}
	return parts[0], o, nil
}

// PatchOptions selects the fixes applied in refactoring mode.
type PatchOptions struct {
	// Checks names the checks whose fixes are applied.
	Checks      []string
	// Rules lists template rule files (.go or compiled .bcr) applied as checks.
	Rules       []string
	InPlace     bool
	BaseDir     string
	ImportOrder fix.ImportOrder
}

// Refactor reports whether an output location was given.
func (p PatchOptions) Refactor() bool {
	return p.InPlace || p.BaseDir != ""
}

// Validate requires a selection and an output location to come together.
func (p PatchOptions) Validate() error {
	selected := len(p.Checks) > 0 || len(p.Rules) > 0
	if selected != p.Refactor() {
		return fmt.Errorf("%s and %s must be specified together", flagPatchChecks, flagPatchLocation)
	}
	return nil
}

// Options is the command-line style override surface.
type Options struct {
	// Severities maps a check name (canonical or alternate) to its override.
	Severities map[string]Override

	IgnoreUnknownChecks            bool
	EnableAllChecksAsWarnings      bool
	DropErrorsToWarnings           bool
	DisableAllChecks               bool
	DisableWarningsInGeneratedCode bool

	Flags Flags
	// Rules lists template rule files loaded as additional checks.
	Rules []string
	Patch PatchOptions
}

// isEmpty reports whether applying o can change a supplier.
func (o *Options) isEmpty() bool {
	return o == nil || (len(o.Severities) == 0 &&
		!o.EnableAllChecksAsWarnings &&
		!o.DropErrorsToWarnings &&
		!o.DisableAllChecks &&
		o.Flags.Len() == 0)
}

const (
	flagCheck               = "--check="
	flagOpt                 = "--opt="
	flagPatchChecks         = "--patch-checks"
	flagPatchLocation       = "--patch-location"
	flagPatchImportOrder    = "--patch-import-order="
	flagRules               = "--rules="
	flagIgnoreUnknown       = "--ignore-unknown-checks"
	flagNoGeneratedWarnings = "--disable-warnings-in-generated-code"
	flagErrorsAsWarnings    = "--all-errors-as-warnings"
	flagDisabledAsWarnings  = "--all-disabled-checks-as-warnings"
	flagDisableAll          = "--disable-all-checks"
	rulePrefix              = "refaster:"
	patchLocationInPlace    = "IN_PLACE"
)

// ProcessArgs extracts the options this package understands from args and
// returns the rest untouched. Processing is position sensitive:
// --all-errors-as-warnings demotes ERROR overrides seen so far,
// --all-disabled-checks-as-warnings turns earlier OFF overrides into WARN and
// --disable-all-checks forgets every earlier override.
func ProcessArgs(args []string) (*Options, []string, error) {
	o := &Options{Severities: make(map[string]Override)}
	var rest []string
	flags := make(map[string]string)

	for _, arg := range args {
		switch {
		case arg == flagIgnoreUnknown:
			o.IgnoreUnknownChecks = true
		case arg == flagNoGeneratedWarnings:
			o.DisableWarningsInGeneratedCode = true
		case arg == flagErrorsAsWarnings:
			for name, sev := range o.Severities {
				if sev == OverrideError {
					o.Severities[name] = OverrideWarn
				}
			}
			o.DropErrorsToWarnings = true
		case arg == flagDisabledAsWarnings:
			for name, sev := range o.Severities {
				if sev == OverrideOff {
					o.Severities[name] = OverrideWarn
				}
			}
			o.EnableAllChecksAsWarnings = true
		case arg == flagDisableAll:
			clear(o.Severities)
			o.DisableAllChecks = true
		case strings.HasPrefix(arg, flagCheck):
			name, sev, err := ParseOverride(arg[len(flagCheck):])
			if err != nil {
				return nil, nil, err
			}
			o.Severities[name] = sev
		case strings.HasPrefix(arg, flagOpt):
			k, v, err := ParseFlag(arg[len(flagOpt):])
			if err != nil {
				return nil, nil, err
			}
			flags[k] = v
		case strings.HasPrefix(arg, flagPatchLocation+"="):
			loc := arg[len(flagPatchLocation)+1:]
			switch loc {
			case patchLocationInPlace:
				o.Patch.InPlace = true
			case "":
				return nil, nil, fmt.Errorf("invalid flag: %s", arg)
			default:
				o.Patch.BaseDir = loc
			}
		case strings.HasPrefix(arg, flagPatchChecks+"="):
			list := arg[len(flagPatchChecks)+1:]
			if path, ok := strings.CutPrefix(list, rulePrefix); ok {
				o.Patch.Rules = append(o.Patch.Rules, path)
				continue
			}
			for name := range strings.SplitSeq(list, ",") {
				if name = strings.TrimSpace(name); name != "" {
					o.Patch.Checks = append(o.Patch.Checks, name)
				}
			}
		case strings.HasPrefix(arg, flagPatchImportOrder):
			order, err := fix.ParseImportOrder(arg[len(flagPatchImportOrder):])
			if err != nil {
				return nil, nil, err
			}
			o.Patch.ImportOrder = order
		case strings.HasPrefix(arg, flagRules):
			for path := range strings.SplitSeq(arg[len(flagRules):], ",") {
				if path = strings.TrimSpace(path); path != "" {
					o.Rules = append(o.Rules, path)
				}
			}
		default:
			rest = append(rest, arg)
		}
	}

	o.Flags = NewFlags(flags)
	if err := o.Patch.Validate(); err != nil {
		return nil, nil, err
	}
	return o, rest, nil
}
