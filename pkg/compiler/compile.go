package compiler

import (
	"microc/pkg/vm"
)

// Compile runs the whole front end over src: preprocess, lex, then the
// single parse pass that also type-checks and emits bytecode. baseDir is
// where #include paths are resolved. The first error at any stage aborts.
func Compile(src string, baseDir string) (*vm.Program, error) {
	src, err := Preprocess(src, baseDir)
	if err != nil {
		return nil, err
	}
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}
