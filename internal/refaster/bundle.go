package refaster

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// BundleExt is the extension of compiled rule bundles.
const BundleExt = ".bcr"

// bump when the Bundle layout changes
const bundleSchemaVersion uint16 = 1

// ErrBundleSchema is returned for bundles written by another version.
var ErrBundleSchema = errors.New("unsupported rule bundle schema")

// Bundle is a compiled set of rule files. Rules are stored as checked
// source and re-parsed on load, which is cheap next to type checking the
// code they run against.
type Bundle struct {
	Schema   uint16
	Created  time.Time
	Files    []BundleFile
	RuleList []string
}

// BundleFile is one rule file of a bundle.
type BundleFile struct {
	Path   string
	Source []byte
	Digest [sha256.Size]byte
	Rules  []string
}

// Compile parses the rule files and packs them into a bundle. Any invalid
// rule fails the whole bundle.
func Compile(files map[string][]byte, order []string) (*Bundle, error) {
	b := &Bundle{Schema: bundleSchemaVersion, Created: time.Now().UTC()}
	seen := make(map[string]string)
	for _, path := range order {
		src, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("%s: no source", path)
		}
		rules, err := ParseRules(path, src)
		if err != nil {
			return nil, err
		}
		bf := BundleFile{Path: path, Source: src, Digest: sha256.Sum256(src)}
		for _, r := range rules {
			if prev, dup := seen[r.Name]; dup {
				return nil, fmt.Errorf("%s: rule %s already defined in %s", path, r.Name, prev)
			}
			seen[r.Name] = path
			bf.Rules = append(bf.Rules, r.Name)
			b.RuleList = append(b.RuleList, r.Name)
		}
		b.Files = append(b.Files, bf)
	}
	return b, nil
}

// CompileFiles reads and compiles rule files from disk.
func CompileFiles(paths ...string) (*Bundle, error) {
	files := make(map[string][]byte, len(paths))
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files[p] = src
	}
	return Compile(files, paths)
}

// Rules re-parses the bundled files.
func (b *Bundle) Rules() ([]*Rule, error) {
	var out []*Rule
	for _, f := range b.Files {
		if sha256.Sum256(f.Source) != f.Digest {
			return nil, fmt.Errorf("%s: bundled source is corrupt", f.Path)
		}
		rules, err := ParseRules(f.Path, f.Source)
		if err != nil {
			return nil, err
		}
		out = append(out, rules...)
	}
	return out, nil
}

// Write encodes b with msgpack.
func (b *Bundle) Write(w io.Writer) error {
	return msgpack.NewEncoder(w).Encode(b)
}

// ReadBundle decodes a bundle and checks its schema.
func ReadBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := msgpack.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode rule bundle: %w", err)
	}
	if b.Schema != bundleSchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrBundleSchema, b.Schema)
	}
	return &b, nil
}

// WriteFile stores b at path atomically.
func (b *Bundle) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := b.Write(&buf); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bundle-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadRules reads rules from a Go rule file or a compiled bundle, chosen by
// extension.
func LoadRules(path string) ([]*Rule, error) {
	if filepath.Ext(path) == BundleExt {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		b, err := ReadBundle(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return b.Rules()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRules(path, src)
}
