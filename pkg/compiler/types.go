package compiler

import "fmt"

// TypeBase is the base kind of a Type.
type TypeBase int

const (
	TBInt TypeBase = iota
	TBDouble
	TBChar
	TBVoid
	TBStruct
)

var baseNames = [...]string{
	TBInt:    "int",
	TBDouble: "double",
	TBChar:   "char",
	TBVoid:   "void",
	TBStruct: "struct",
}

func (b TypeBase) String() string {
	if int(b) >= 0 && int(b) < len(baseNames) {
		return baseNames[b]
	}
	return fmt.Sprintf("TypeBase(%d)", int(b))
}

// Scalar byte sizes in VM memory. Stack cells are always 8 bytes; char
// occupies a single byte in globals, frames and struct layouts and is
// widened on load.
const (
	sizeofInt    = 8
	sizeofDouble = 8
	sizeofChar   = 1
)

// Type describes the static type of a symbol or expression result.
// N distinguishes scalars (-1), arrays of unspecified length (0), and
// arrays of length N (>0). Struct is set iff Base is TBStruct.
type Type struct {
	Base   TypeBase
	Struct *Symbol
	N      int
}

func intType() Type    { return Type{Base: TBInt, N: -1} }
func doubleType() Type { return Type{Base: TBDouble, N: -1} }
func charType() Type   { return Type{Base: TBChar, N: -1} }
func voidType() Type   { return Type{Base: TBVoid, N: -1} }

// elem returns the scalar element type of an array type.
func (t Type) elem() Type {
	return Type{Base: t.Base, Struct: t.Struct, N: -1}
}

// IsScalar reports whether a value of this type fits one stack cell:
// not an array, not a struct, not void.
func (t Type) IsScalar() bool {
	return t.N < 0 && t.Base != TBStruct && t.Base != TBVoid
}

// Size returns the byte size of a value of this type. It is the single
// size oracle used for global allocation, frame layout, and struct member
// offsets.
func (t Type) Size() int {
	var base int
	switch t.Base {
	case TBInt:
		base = sizeofInt
	case TBDouble:
		base = sizeofDouble
	case TBChar:
		base = sizeofChar
	case TBVoid:
		return 0
	case TBStruct:
		for _, m := range t.Struct.Members {
			base += m.Type.Size()
		}
	}
	if t.N >= 0 {
		return base * t.N
	}
	return base
}

func (t Type) String() string {
	name := t.Base.String()
	if t.Base == TBStruct && t.Struct != nil {
		name = "struct " + t.Struct.Name
	}
	switch {
	case t.N == 0:
		return name + "[]"
	case t.N > 0:
		return fmt.Sprintf("%s[%d]", name, t.N)
	default:
		return name
	}
}

// convTo reports whether a value of type src is convertible to dst.
// Arrays convert only to arrays of the same base (an unspecified length is
// compatible with any length); structs and void convert to nothing.
func convTo(src, dst Type) bool {
	if src.N >= 0 {
		if dst.N >= 0 {
			return src.Base == dst.Base
		}
		return false
	}
	if dst.N >= 0 {
		return false
	}
	switch src.Base {
	case TBInt, TBDouble, TBChar:
		switch dst.Base {
		case TBInt, TBDouble, TBChar:
			return true
		}
	}
	return false
}

// arithTypeTo computes the result type of an arithmetic or relational
// operation on a and b: the widest of the two bases (double > int > char),
// always scalar. It fails when either operand is not an arithmetic scalar.
func arithTypeTo(a, b Type) (Type, bool) {
	if !a.IsScalar() || !b.IsScalar() {
		return Type{}, false
	}
	if a.Base == TBDouble || b.Base == TBDouble {
		return doubleType(), true
	}
	if a.Base == TBInt || b.Base == TBInt {
		return intType(), true
	}
	return charType(), true
}
