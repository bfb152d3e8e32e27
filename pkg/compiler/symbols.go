package compiler

import (
	"fmt"
	"strings"

	"microc/pkg/vm"
)

// SymbolKind discriminates the four kinds of named entities.
type SymbolKind int

const (
	SymVar SymbolKind = iota
	SymParam
	SymFn
	SymStruct
)

var kindNames = [...]string{
	SymVar:    "var",
	SymParam:  "param",
	SymFn:     "fn",
	SymStruct: "struct",
}

func (k SymbolKind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("SymbolKind(%d)", int(k))
}

// Symbol describes a variable, parameter, function, or struct type. Owner
// is the enclosing function or struct symbol (nil for globals); it is a
// non-owning back-reference.
type Symbol struct {
	Name  string
	Kind  SymbolKind
	Type  Type
	Owner *Symbol

	// SymVar: globals-arena address for globals, or byte offset within the
	// owner's frame locals / struct layout.
	Addr   int
	Offset int

	// SymParam: 0-based declaration index.
	ParamIdx int

	// SymFn: signature, frame layout, and code location. Ext is set for
	// host-provided builtins instead of Entry.
	Params     []*Symbol
	Locals     []*Symbol
	Entry      int
	LocalsSize int
	Ext        *vm.ExtFn

	// SymStruct: members in declaration order.
	Members []*Symbol
}

// clone returns a shallow copy, used when a symbol is stored both in a
// domain and in its owner's params/locals/members list.
func (s *Symbol) clone() *Symbol {
	c := *s
	return &c
}

// Domain is one lexical scope: an ordered name-to-symbol mapping. Order is
// kept so that frame layouts and listings are deterministic.
type Domain struct {
	syms []*Symbol
}

// Find returns the symbol bound to name in this domain only, or nil.
func (d *Domain) Find(name string) *Symbol {
	for _, s := range d.syms {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Add inserts s. The caller has already checked for redeclaration.
func (d *Domain) Add(s *Symbol) *Symbol {
	d.syms = append(d.syms, s)
	return s
}

// SymTable is the stack of lexical domains; the last entry is the
// innermost scope and the first is the global domain.
type SymTable struct {
	domains []*Domain
}

// NewSymTable returns a table holding just the global domain.
func NewSymTable() *SymTable {
	return &SymTable{domains: []*Domain{{}}}
}

// PushDomain opens a new innermost scope.
func (st *SymTable) PushDomain() {
	st.domains = append(st.domains, &Domain{})
}

// DropDomain closes the innermost scope; the global domain is never dropped.
func (st *SymTable) DropDomain() {
	if len(st.domains) > 1 {
		st.domains = st.domains[:len(st.domains)-1]
	}
}

// Depth returns the number of open domains (1 = only the global domain).
func (st *SymTable) Depth() int {
	return len(st.domains)
}

// Current returns the innermost domain.
func (st *SymTable) Current() *Domain {
	return st.domains[len(st.domains)-1]
}

// Find searches the domains innermost-first and returns the first binding
// of name, or nil.
func (st *SymTable) Find(name string) *Symbol {
	for i := len(st.domains) - 1; i >= 0; i-- {
		if s := st.domains[i].Find(name); s != nil {
			return s
		}
	}
	return nil
}

// Add binds s in the innermost domain.
func (st *SymTable) Add(s *Symbol) *Symbol {
	return st.Current().Add(s)
}

// findInList searches an owner's params/locals/members list.
func findInList(list []*Symbol, name string) *Symbol {
	for _, s := range list {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// String returns a dump of the table, innermost domain last.
func (st *SymTable) String() string {
	var sb strings.Builder
	for i, d := range st.domains {
		if i == 0 {
			sb.WriteString("Globals:\n")
		} else {
			fmt.Fprintf(&sb, "Domain %d:\n", i)
		}
		for _, s := range d.syms {
			fmt.Fprintf(&sb, "  %-6s %-20s %s\n", s.Kind, s.Name, s.Type)
		}
	}
	return sb.String()
}
