package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"microc/pkg/compiler"
	"microc/pkg/vm"
)

func run() error {
	showTokens := flag.Bool("tokens", false, "dump the token stream")
	showCode := flag.Bool("code", false, "dump the compiled bytecode listing")
	trace := flag.Bool("trace", false, "trace every executed instruction to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New("usage: microc [-tokens] [-code] [-trace] <file.c>")
	}
	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading source file")
	}

	src, err := compiler.Preprocess(string(data), filepath.Dir(path))
	if err != nil {
		return err
	}
	tokens, err := compiler.Lex(src)
	if err != nil {
		return err
	}
	if *showTokens {
		for _, tok := range tokens {
			fmt.Println(" ", tok)
		}
	}
	prog, err := compiler.Parse(tokens)
	if err != nil {
		return err
	}
	if *showCode {
		fmt.Print(prog.Disassemble())
	}

	machine := vm.New(prog)
	if *trace {
		machine.Trace = os.Stderr
	}
	return machine.Run()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
