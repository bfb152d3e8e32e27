package compiler

import (
	"microc/pkg/vm"
)

// builtin pairs a host function with its source-language signature.
type builtin struct {
	ext    *vm.ExtFn
	result Type
	params []Type
}

func charArray() Type { return Type{Base: TBChar, N: 0} }

// builtins is the host-provided function registry: console and numeric I/O
// from the language runtime, plus the framebuffer and keyboard interface
// used by the graphical runner.
var builtins = []builtin{
	{vm.PutI, voidType(), []Type{intType()}},
	{vm.GetI, intType(), nil},
	{vm.PutD, voidType(), []Type{doubleType()}},
	{vm.GetD, doubleType(), nil},
	{vm.PutC, voidType(), []Type{charType()}},
	{vm.GetC, charType(), nil},
	{vm.PutS, voidType(), []Type{charArray()}},
	{vm.GetS, voidType(), []Type{charArray()}},
	{vm.Seconds, doubleType(), nil},
	{vm.Exit, voidType(), []Type{intType()}},
	{vm.PutPixel, voidType(), []Type{intType(), intType(), intType()}},
	{vm.ClearScreen, voidType(), []Type{intType()}},
	{vm.GetKey, intType(), nil},
}

// paramNames gives builtin parameters stable names for listings.
var paramNames = [...]string{"a", "b", "c", "d"}

// installBuiltins declares every registry entry as an FN symbol in the
// global domain, so calls to builtins go through the same name resolution
// and type checking as source-defined functions.
func installBuiltins(st *SymTable) {
	for _, b := range builtins {
		fn := &Symbol{Name: b.ext.Name, Kind: SymFn, Type: b.result, Ext: b.ext}
		for i, pt := range b.params {
			fn.Params = append(fn.Params, &Symbol{
				Name:     paramNames[i],
				Kind:     SymParam,
				Type:     pt,
				Owner:    fn,
				ParamIdx: i,
			})
		}
		st.Add(fn)
	}
}
