// Package config reads bugcheck.toml and turns it into scanner arguments.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project configuration file.
const FileName = "bugcheck.toml"

// Config is the decoded configuration file.
//
//	[checks]
//	SelfAssignment = "OFF"
//	EmptyIf = "ERROR"
//
//	[options]
//	disable-warnings-in-generated-code = true
//
//	[flags]
//	"MisusedDateLayout:MinRuns" = "1"
//
//	[patch]
//	checks = ["SizeGreaterThanOrEqualsZero"]
//	location = "IN_PLACE"
//
//	[rules]
//	files = ["rules/strings.go"]
//
//	[files]
//	exclude = ["gen/**"]
type Config struct {
	// Path is the file the configuration came from; Root is its directory.
	Path string `toml:"-"`
	Root string `toml:"-"`

	Checks   map[string]string `toml:"checks"`
	Options  Options           `toml:"options"`
	Flags    map[string]string `toml:"flags"`
	Patch    Patch             `toml:"patch"`
	Rules    Rules             `toml:"rules"`
	Files    Files             `toml:"files"`
	Analysis Analysis          `toml:"analysis"`
}

// Options are the global switches.
type Options struct {
	IgnoreUnknownChecks            bool `toml:"ignore-unknown-checks"`
	AllErrorsAsWarnings            bool `toml:"all-errors-as-warnings"`
	AllDisabledChecksAsWarnings    bool `toml:"all-disabled-checks-as-warnings"`
	DisableAllChecks               bool `toml:"disable-all-checks"`
	DisableWarningsInGeneratedCode bool `toml:"disable-warnings-in-generated-code"`
}

type Patch struct {
	Checks      []string `toml:"checks"`
	Location    string   `toml:"location"`
	ImportOrder string   `toml:"import-order"`
}

type Rules struct {
	Files []string `toml:"files"`
}

type Files struct {
	Exclude []string `toml:"exclude"`
}

// Analysis tunes the driver.
type Analysis struct {
	Types          string `toml:"types"`
	Jobs           int    `toml:"jobs"`
	MaxDiagnostics int    `toml:"max-diagnostics"`
}

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover finds and loads the configuration for startDir. Without a file it
// returns an empty configuration and false.
func Discover(startDir string) (*Config, bool, error) {
	path, ok, err := Find(startDir)
	if err != nil || !ok {
		return &Config{}, false, err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, true, err
	}
	return cfg, true, nil
}

// Load decodes path. Unknown keys are errors so that typos do not silently
// turn a check back on.
func Load(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if cfg.Analysis.Jobs < 0 {
		return nil, fmt.Errorf("%s: [analysis].jobs must not be negative", path)
	}
	cfg.Path = path
	cfg.Root = filepath.Dir(path)
	return &cfg, nil
}

// Args renders the configuration in command-line form: global switches
// first, then check overrides in name order, so a later command line wins.
// Relative paths are resolved against Root.
func (c *Config) Args() []string {
	var args []string
	o := c.Options
	if o.IgnoreUnknownChecks {
		args = append(args, "--ignore-unknown-checks")
	}
	if o.DisableWarningsInGeneratedCode {
		args = append(args, "--disable-warnings-in-generated-code")
	}
	if o.DisableAllChecks {
		args = append(args, "--disable-all-checks")
	}
	if o.AllDisabledChecksAsWarnings {
		args = append(args, "--all-disabled-checks-as-warnings")
	}
	if o.AllErrorsAsWarnings {
		args = append(args, "--all-errors-as-warnings")
	}
	for _, name := range sortedKeys(c.Checks) {
		args = append(args, "--check="+name+":"+c.Checks[name])
	}
	for _, k := range sortedKeys(c.Flags) {
		args = append(args, "--opt="+k+"="+c.Flags[k])
	}
	if len(c.Rules.Files) > 0 {
		args = append(args, "--rules="+strings.Join(c.resolve(c.Rules.Files), ","))
	}
	if len(c.Patch.Checks) > 0 {
		var names []string
		for _, name := range c.Patch.Checks {
			if path, ok := strings.CutPrefix(name, "refaster:"); ok {
				args = append(args, "--patch-checks=refaster:"+c.resolve([]string{path})[0])
				continue
			}
			names = append(names, name)
		}
		if len(names) > 0 {
			args = append(args, "--patch-checks="+strings.Join(names, ","))
		}
	}
	if loc := c.Patch.Location; loc != "" {
		if loc != "IN_PLACE" {
			loc = c.resolve([]string{loc})[0]
		}
		args = append(args, "--patch-location="+loc)
	}
	if c.Patch.ImportOrder != "" {
		args = append(args, "--patch-import-order="+c.Patch.ImportOrder)
	}
	return args
}

// Excludes returns the exclude patterns.
func (c *Config) Excludes() []string {
	return slices.Clone(c.Files.Exclude)
}

func (c *Config) resolve(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if c.Root != "" && !filepath.IsAbs(p) {
			p = filepath.Join(c.Root, filepath.FromSlash(p))
		}
		out[i] = p
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
