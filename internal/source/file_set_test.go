package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSetVersioning(t *testing.T) {
	fs := NewFileSet()

	id1 := fs.Add("main.go", []byte("package a"), 0)
	id2 := fs.Add("main.go", []byte("package b"), 0)
	if id1 == id2 {
		t.Fatalf("expected a new FileID for the second Add")
	}

	latest, ok := fs.GetLatest("main.go")
	if !ok || latest != id2 {
		t.Fatalf("GetLatest = %d, %v; want %d", latest, ok, id2)
	}
	if got := string(fs.Get(id1).Content); got != "package a" {
		t.Fatalf("first version lost: %q", got)
	}
	if _, ok := fs.Lookup(FileID(42)); ok {
		t.Fatalf("Lookup of unknown id succeeded")
	}
}

func TestAddVirtualLineIdx(t *testing.T) {
	fs := NewFileSet()
	file := fs.Get(fs.AddVirtual("a.go", []byte("a\nb\n")))

	want := []uint32{1, 3}
	if len(file.LineIdx) != len(want) {
		t.Fatalf("LineIdx = %v, want %v", file.LineIdx, want)
	}
	for i := range want {
		if file.LineIdx[i] != want[i] {
			t.Fatalf("LineIdx = %v, want %v", file.LineIdx, want)
		}
	}
	if file.Flags&FileVirtual == 0 {
		t.Fatalf("expected FileVirtual flag")
	}
}

func TestResolve(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("x.go", []byte("ab\ncd\n"))

	tests := []struct {
		off  uint32
		want LineCol
	}{
		{0, LineCol{1, 1}},
		{2, LineCol{1, 3}},
		{3, LineCol{2, 1}},
		{4, LineCol{2, 2}},
		{6, LineCol{3, 1}},
	}
	for _, tt := range tests {
		start, _ := fs.Resolve(Span{File: id, Start: tt.off, End: tt.off})
		if start != tt.want {
			t.Errorf("Resolve(%d) = %+v, want %+v", tt.off, start, tt.want)
		}
	}
}

func TestResolveUTF8(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("x.go", []byte("α\n"))
	start, end := fs.Resolve(Span{File: id, Start: 0, End: 2})
	if start != (LineCol{1, 1}) || end != (LineCol{1, 3}) {
		t.Fatalf("Resolve = %+v %+v", start, end)
	}
}

func TestGetLineAndIndent(t *testing.T) {
	fs := NewFileSet()
	file := fs.Get(fs.AddVirtual("x.go", []byte("func f() {\n\t\tx := 1\r\n}")))

	if got := file.GetLine(2); got != "\t\tx := 1" {
		t.Fatalf("GetLine(2) = %q", got)
	}
	if got := file.GetLine(3); got != "}" {
		t.Fatalf("GetLine(3) = %q", got)
	}
	if got := file.GetLine(4); got != "" {
		t.Fatalf("GetLine(4) = %q", got)
	}
	if got := file.Indent(15); got != "\t\t" {
		t.Fatalf("Indent = %q", got)
	}
	if file.Flags&FileHasCRLF == 0 {
		t.Fatalf("expected FileHasCRLF flag")
	}
	if got := string(file.Text(Span{Start: 13, End: 14})); got != "x" {
		t.Fatalf("Text = %q", got)
	}
}

func TestLoadBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.go")
	if err := os.WriteFile(path, []byte("\xEF\xBB\xBFpackage a\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fs := NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	file := fs.Get(id)
	if string(file.Content) != "package a\n" {
		t.Fatalf("content = %q", file.Content)
	}
	if file.Flags&FileHadBOM == 0 {
		t.Fatalf("expected FileHadBOM flag")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := NewFileSet().Load(filepath.Join(t.TempDir(), "nope.go")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
