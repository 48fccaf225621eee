package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"bugcheck/internal/diag"
	"bugcheck/internal/scanner"
	"bugcheck/internal/source"
	"bugcheck/internal/version"
)

// bump when cachedUnit changes
const resultCacheSchemaVersion uint16 = 1

// ResultCache keeps the diagnostics of untyped runs on disk, keyed by file
// content and the effective check configuration. Safe for concurrent use.
type ResultCache struct {
	mu  sync.RWMutex
	dir string
}

type cachedUnit struct {
	Schema      uint16
	Diagnostics []*diag.Diagnostic
	Stats       scanner.ScanStats
}

// OpenResultCache opens the cache under $XDG_CACHE_HOME/app.
func OpenResultCache(app string) (*ResultCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return NewResultCache(filepath.Join(base, app))
}

// NewResultCache opens a cache rooted at dir.
func NewResultCache(dir string) (*ResultCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ResultCache{dir: dir}, nil
}

// Fingerprint digests everything besides file content that shapes the
// result: the tool version, the checks with their severities, the flags and
// the rule files.
func Fingerprint(s *scanner.Supplier, rules []string) ([32]byte, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00", version.Version)
	for _, c := range s.AllChecks() {
		sev, _ := s.Severity(c.Name())
		fmt.Fprintf(h, "%s:%v:%d\x00", c.Name(), s.IsDisabled(c.Name()), sev)
	}
	f := s.Flags()
	for _, k := range f.Keys() {
		v, _ := f.Get(k)
		fmt.Fprintf(h, "%s=%s\x00", k, v)
	}
	for _, path := range rules {
		src, err := os.ReadFile(path)
		if err != nil {
			return [32]byte{}, err
		}
		sum := sha256.Sum256(src)
		h.Write(sum[:])
	}
	var out [32]byte
	h.Sum(out[:0])
	return out, nil
}

// Key combines a fingerprint with the file it applies to.
func (c *ResultCache) Key(fingerprint [32]byte, f *source.File) [32]byte {
	h := sha256.New()
	h.Write(fingerprint[:])
	h.Write(f.Hash[:])
	h.Write([]byte(f.Path))
	var out [32]byte
	h.Sum(out[:0])
	return out
}

func (c *ResultCache) pathFor(key [32]byte) string {
	hexKey := hex.EncodeToString(key[:])
	return filepath.Join(c.dir, "units", hexKey[:2], hexKey+".mp")
}

// Store writes the diagnostics and stats of res.
func (c *ResultCache) Store(key [32]byte, res *UnitResult) error {
	if c == nil {
		return nil
	}
	payload := cachedUnit{
		Schema:      resultCacheSchemaVersion,
		Diagnostics: res.Bag.Items(),
		Stats:       res.Stats,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Load fills res from the cache and rebinds every span to id. Entries of
// another schema count as misses.
func (c *ResultCache) Load(key [32]byte, id source.FileID, res *UnitResult) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	var payload cachedUnit
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode cached result: %w", err)
	}
	if payload.Schema != resultCacheSchemaVersion {
		return false, nil
	}
	for _, d := range payload.Diagnostics {
		rebind(d, id)
		res.Bag.Add(d)
	}
	res.Stats = payload.Stats
	res.Cached = true
	return true, nil
}

func rebind(d *diag.Diagnostic, id source.FileID) {
	d.Primary.File = id
	for i := range d.Notes {
		d.Notes[i].Span.File = id
	}
	for i := range d.Fixes {
		for j := range d.Fixes[i].Replacements {
			d.Fixes[i].Replacements[j].Span.File = id
		}
	}
}

// DropAll removes every cached entry.
func (c *ResultCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
