package fuzztests

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	maxSeedBytes = 64 << 10
	maxFuzzInput = 1 << 16
)

func addCorpusSeeds(f *testing.F) {
	addRepositorySeeds(f)
	for _, src := range handwrittenSeeds {
		f.Add([]byte(src))
	}
}

// handwrittenSeeds hit each built-in check at least once.
var handwrittenSeeds = []string{
	"package p\n",
	"package p\n\nfunc f(x int) { x = x }\n",
	"package p\n\nfunc f(a, b int) { a, b = a, b }\n",
	"package p\n\nfunc f(xs []int) bool { return len(xs) >= 0 }\n",
	"package p\n\nfunc f(xs []int) bool { return 0 <= cap(xs) }\n",
	"package p\n\nimport . \"strings\"\n\nvar _ = ToUpper\n",
	"package p\n\nfunc f(ok bool) {\n\tif ok {\n\t}\n}\n",
	"package p\n\nimport \"time\"\n\nvar s = time.Now().Format(\"2006-01-02 15:04:05\")\n",
	"package p\n\nfunc f() {\n\t//bugcheck:ignore SelfAssignment\n\tx := 1\n\tx = x\n}\n",
}

// addRepositorySeeds adds the Go files of this repository, which are
// realistic and parse.
func addRepositorySeeds(f *testing.F) {
	root := filepath.Join("..", "..")
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if name := d.Name(); path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		// #nosec G304 -- path comes from the repository walk
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		f.Add(clampSeed(src))
		return nil
	})
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}

func clampInput(input []byte) []byte {
	if len(input) > maxFuzzInput {
		return append([]byte(nil), input[:maxFuzzInput]...)
	}
	return append([]byte(nil), input...)
}
