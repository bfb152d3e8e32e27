package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefineSimple(t *testing.T) {
	src := `
#define LIMIT 10
int main(){ return LIMIT; }
`
	out, err := Preprocess(src, ".")
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if !strings.Contains(out, "return 10;") {
		t.Errorf("LIMIT not substituted:\n%s", out)
	}
	if strings.Contains(out, "#define") {
		t.Errorf("directive leaked into output:\n%s", out)
	}
}

func TestDefineFunctionLike(t *testing.T) {
	src := `
#define SQUARE(x) ((x) * (x))
#define MAXDIM(a, b) ((a) + (b))
int main(){ return SQUARE(4) + MAXDIM(1, 2); }
`
	out, err := Preprocess(src, ".")
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if !strings.Contains(out, "((4) * (4))") {
		t.Errorf("SQUARE not expanded:\n%s", out)
	}
	if !strings.Contains(out, "((1) + (2))") {
		t.Errorf("MAXDIM not expanded:\n%s", out)
	}
}

func TestDefineSkipsLiterals(t *testing.T) {
	src := `
#define hi 42
int main(){ put_s("hi"); put_c('h'); return hi; }
`
	out, err := Preprocess(src, ".")
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if !strings.Contains(out, `put_s("hi")`) {
		t.Errorf("macro replaced inside a string literal:\n%s", out)
	}
	if !strings.Contains(out, "return 42;") {
		t.Errorf("macro not replaced in code:\n%s", out)
	}
}

func TestDefinePreservesLineNumbers(t *testing.T) {
	src := "#define A 1\n#define B 2\nint main(){ return A + B; }\n"
	out, err := Preprocess(src, ".")
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) < 3 || !strings.Contains(lines[2], "return 1 + 2;") {
		t.Errorf("code moved off its original line:\n%s", out)
	}
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	header := filepath.Join(dir, "defs.h")
	if err := os.WriteFile(header, []byte("#define ANSWER 42\nint g;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := `#include "defs.h"
int main(){ return ANSWER; }
`
	out, err := Preprocess(src, dir)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if !strings.Contains(out, "int g;") {
		t.Errorf("included content missing:\n%s", out)
	}
	if !strings.Contains(out, "return 42;") {
		t.Errorf("macro from include not applied:\n%s", out)
	}
}

func TestIncludeOnce(t *testing.T) {
	dir := t.TempDir()
	header := filepath.Join(dir, "defs.h")
	if err := os.WriteFile(header, []byte("int g;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := "#include \"defs.h\"\n#include \"defs.h\"\nint main(){ return 0; }\n"
	out, err := Preprocess(src, dir)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if strings.Count(out, "int g;") != 1 {
		t.Errorf("header included more than once:\n%s", out)
	}
}

func TestIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.h")
	b := filepath.Join(dir, "b.h")
	if err := os.WriteFile(a, []byte("#include \"b.h\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("#include \"a.h\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Preprocess("#include \"a.h\"\n", dir)
	if err == nil {
		t.Fatalf("expected a circular include error, got none")
	}
	if !strings.Contains(err.Error(), "circular include") {
		t.Errorf("error = %q, want a circular include diagnostic", err)
	}
}

func TestIncludeMissingFile(t *testing.T) {
	_, err := Preprocess("#include \"nope.h\"\n", t.TempDir())
	if err == nil {
		t.Fatalf("expected an error for a missing include, got none")
	}
	if !strings.Contains(err.Error(), "nope.h") {
		t.Errorf("error = %q, want the missing file name", err)
	}
}

func TestCompileWithInclude(t *testing.T) {
	dir := t.TempDir()
	header := filepath.Join(dir, "lib.h")
	lib := "int double_it(int n){ return n * 2; }\n"
	if err := os.WriteFile(header, []byte(lib), 0o644); err != nil {
		t.Fatal(err)
	}

	src := "#include \"lib.h\"\nint main(){ return double_it(21); }\n"
	prog, err := Compile(src, dir)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if prog.Entry < 0 || prog.Entry >= len(prog.Code) {
		t.Fatalf("bad entry index %d", prog.Entry)
	}
}
