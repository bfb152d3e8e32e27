package compiler

import (
	"strings"
	"testing"

	"microc/pkg/vm"
)

// compileSource runs lex + parse over src without the preprocessor.
func compileSource(t *testing.T, src string) *vm.Program {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	prog, err := Parse(tokens)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return prog
}

func compileError(t *testing.T, src string) error {
	t.Helper()
	tokens, err := Lex(src)
	if err != nil {
		return err
	}
	_, err = Parse(tokens)
	if err == nil {
		t.Fatalf("expected a compile error, got none")
	}
	return err
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
	}{
		{
			"global redeclaration",
			"int a; int a;",
			"error in line 1: Variable a is already defined.",
		},
		{
			"undefined identifier",
			"int main(){ return y; }",
			"Undefined id: y",
		},
		{
			"return of a struct",
			"int main(){ struct P{int x;}; struct P p; return p; }",
			"the return value must be a scalar value",
		},
		{
			"undefined struct type",
			"struct Q q;",
			"Struct Q is not defined.",
		},
		{
			"struct redefinition",
			"struct P{int x;}; struct P{int y;};",
			"Struct P is already defined.",
		},
		{
			"vector without dimension",
			"int xs[];",
			"A vector variable must have a dimension.",
		},
		{
			"local redeclaration",
			"int main(){ int i; int i; return 0; }",
			"Variable i is already defined.",
		},
		{
			"parameter redeclaration",
			"int f(int a, int a){ return 0; } int main(){ return 0; }",
			"Parameter a is already defined.",
		},
		{
			"assign to constant",
			"int main(){ int xs[3]; xs = 3; return 0; }",
			"the assign destination cannot be constant",
		},
		{
			"assign to r-value",
			"int main(){ int a; (a + 1) = 3; return 0; }",
			"the assign destination must be a left-value",
		},
		{
			"assign struct source",
			"struct P{int x;}; int main(){ struct P p; int a; a = p; return 0; }",
			"the assign source must be scalar",
		},
		{
			"call of a non-function",
			"int main(){ int a; a(); return 0; }",
			"Only a function can be called",
		},
		{
			"function used as a value",
			"int f(){ return 1; } int main(){ return f + 1; }",
			"A function can only be called",
		},
		{
			"too few arguments",
			"int f(int a, int b){ return a; } int main(){ return f(1); }",
			"Too few arguments in function call",
		},
		{
			"too many arguments",
			"int f(int a){ return a; } int main(){ return f(1, 2); }",
			"Too many arguments in function call",
		},
		{
			"argument type mismatch",
			"struct P{int x;}; int f(int a){ return a; } int main(){ struct P p; return f(p); }",
			"In call, cannot convert the argument type to the parameter type",
		},
		{
			"missing struct field",
			"struct P{int x;}; int main(){ struct P p; return p.y; }",
			"the structure P does not have a field y",
		},
		{
			"field of a non-struct",
			"int main(){ int a; return a.x; }",
			"a field can only be selected from a struct",
		},
		{
			"indexing a scalar",
			"int main(){ int a; return a[0]; }",
			"only an array can be indexed",
		},
		{
			"cast array to scalar",
			"int main(){ int xs[3]; return (int)xs; }",
			"an array can be converted only to another array",
		},
		{
			"cast to struct",
			"struct P{int x;}; int main(){ return (struct P)1; }",
			"cannot convert to a struct type",
		},
		{
			"void return with value",
			"void f(){ return 1; } int main(){ return 0; }",
			"a void function cannot return a value",
		},
		{
			"missing return value",
			"int f(){ return; } int main(){ return 0; }",
			"a non-void function must return a value",
		},
		{
			"struct as if condition",
			"struct P{int x;}; int main(){ struct P p; if (p) return 1; return 0; }",
			"the if condition must be a scalar value",
		},
		{
			"arithmetic on a struct",
			"struct P{int x;}; int main(){ struct P p; return p + 1; }",
			"Invalid operand type for + or -",
		},
		{
			"symbol redefinition as function",
			"int f(){ return 1; } int f(){ return 2; } int main(){ return 0; }",
			"symbol redefinition: f",
		},
		{
			"missing main",
			"int a;",
			"main function is not defined",
		},
		{
			"missing semicolon",
			"int a",
			"you need a semicolon after variable definition.",
		},
		{
			"stray token at top level",
			"int main(){ return 0; } }",
			"syntax error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compileError(t, tt.input)
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
			if !strings.Contains(err.Error(), "error in line ") {
				t.Errorf("error %q is not line-stamped", err)
			}
		})
	}
}

func TestUndefinedIdFormat(t *testing.T) {
	err := compileError(t, "int main(){ return y; }")
	want := "error in line 1: Undefined id: y"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}
}

// TestDomainBalance checks that every construct that pushes a lexical
// domain drops it again: after a full parse only the global domain is left.
func TestDomainBalance(t *testing.T) {
	src := `
	struct P { int x; double d; };
	int g;
	int helper(int a, char b) {
		int local;
		{ int shadowed; shadowed = a; }
		return a + b;
	}
	int main() {
		struct P p;
		{ { int deep; deep = 1; } }
		return helper(1, 'x');
	}
	`
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	p := &Parser{
		tokens:  tokens,
		syms:    NewSymTable(),
		globals: make([]byte, vm.CellSize),
		strings: make(map[string]int),
		names:   make(map[int]string),
	}
	installBuiltins(p.syms)
	if err := p.unit(); err != nil {
		t.Fatalf("unit failed: %v", err)
	}
	if p.syms.Depth() != 1 {
		t.Errorf("domain depth after parse = %d, want 1", p.syms.Depth())
	}
	if p.owner != nil {
		t.Errorf("owner not cleared after parse")
	}
}

// TestBacktrackingTruncation checks that a failed assignment alternative
// leaves no stray instructions: the speculative destination parse of "1;"
// is truncated before the expression is re-parsed.
func TestBacktrackingTruncation(t *testing.T) {
	prog := compileSource(t, "int main(){ 1; return 0; }")
	count := 0
	for _, in := range prog.Code {
		if in.Op == vm.OpPushI && in.I == 1 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("PUSH_I 1 emitted %d times, want exactly 1", count)
	}
}

func TestStructMemberOffsets(t *testing.T) {
	src := `
	struct P { char tag; int xs[3]; double d; };
	int main() { struct P p; return 0; }
	`
	tokens, err := Lex(src)
	if err != nil {
		t.Fatalf("Lex failed: %v", err)
	}
	p := &Parser{
		tokens:  tokens,
		syms:    NewSymTable(),
		globals: make([]byte, vm.CellSize),
		strings: make(map[string]int),
		names:   make(map[int]string),
	}
	installBuiltins(p.syms)
	if err := p.unit(); err != nil {
		t.Fatalf("unit failed: %v", err)
	}
	s := p.syms.Find("P")
	if s == nil || s.Kind != SymStruct {
		t.Fatalf("struct P not found in the global domain")
	}
	wantOffsets := map[string]int{"tag": 0, "xs": 1, "d": 25}
	for _, m := range s.Members {
		if want, ok := wantOffsets[m.Name]; !ok || m.Offset != want {
			t.Errorf("member %s offset = %d, want %d", m.Name, m.Offset, want)
		}
	}
	if got := s.Type.Size(); got != 33 {
		t.Errorf("struct size = %d, want 33", got)
	}
}
