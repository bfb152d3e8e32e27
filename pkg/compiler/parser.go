package compiler

import (
	"microc/pkg/vm"
)

// Parser consumes the flat token slice produced by the Lexer in a single
// recursive-descent pass that also resolves names, checks types, and emits
// bytecode into a flat instruction arena. There is no AST.
//
// Grammar (terminals in CAPS, ? optional, * zero or more):
//
//	unit        = (structDef | fnDef | varDef)* EOF
//	structDef   = STRUCT IDENTIFIER "{" varDef* "}" ";"
//	varDef      = typeBase IDENTIFIER arrayDecl? ";"
//	typeBase    = "int" | "double" | "char" | STRUCT IDENTIFIER
//	arrayDecl   = "[" INT_LIT? "]"
//	fnDef       = (typeBase | "void") IDENTIFIER "(" (fnParam ("," fnParam)*)? ")" stmCompound
//	fnParam     = typeBase IDENTIFIER arrayDecl?
//	stmCompound = "{" (structDef | varDef | stm)* "}"
//	stm         = stmCompound | if | while | return | expr? ";"
//	expr        = exprAssign
//	exprAssign  = exprUnary "=" exprAssign | exprOr
//	exprOr      = exprAnd ("||" exprAnd)*
//	exprAnd     = exprEq ("&&" exprEq)*
//	exprEq      = exprRel (("=="|"!=") exprRel)*
//	exprRel     = exprAdd (("<"|"<="|">"|">=") exprAdd)*
//	exprAdd     = exprMul (("+"|"-") exprMul)*
//	exprMul     = exprCast (("*"|"/") exprCast)*
//	exprCast    = "(" typeBase arrayDecl? ")" exprCast | exprUnary
//	exprUnary   = ("-"|"!") exprUnary | exprPostfix
//	exprPostfix = exprPrimary ("[" expr "]" | "." IDENTIFIER)*
//	exprPrimary = IDENTIFIER ("(" (expr ("," expr)*)? ")")?
//	            | INT_LIT | DOUBLE_LIT | CHAR_LIT | STRING_LIT
//	            | "(" expr ")"
//
// Alternatives diverge at their first token; a failed alternative restores
// the token position and truncates any instructions emitted since entry.
// Past that point missing tokens are fatal with a line-stamped message.
type Parser struct {
	tokens   []Token
	pos      int   // index of the next unconsumed token
	consumed Token // last accepted token

	syms  *SymTable
	owner *Symbol // current function or struct, nil at top level

	code    []vm.Instr
	globals []byte         // initial globals image; byte 0 reserved as null
	strings map[string]int // interned string literal -> address
	names   map[int]string // function entry index -> name
}

// ret describes an expression result: its type, whether it denotes a
// storage location (lval), and whether it is a constant r-value that can
// never be assigned to (ct).
type ret struct {
	typ  Type
	lval bool
	ct   bool
}

// Parse compiles the whole token stream into an executable Program.
// Builtins are installed in the global domain before parsing so that calls
// to them go through normal type checking.
func Parse(tokens []Token) (*vm.Program, error) {
	p := &Parser{
		tokens:  tokens,
		syms:    NewSymTable(),
		globals: make([]byte, vm.CellSize),
		strings: make(map[string]int),
		names:   make(map[int]string),
	}
	installBuiltins(p.syms)

	if err := p.unit(); err != nil {
		return nil, err
	}

	main := p.syms.Find("main")
	if main == nil || main.Kind != SymFn || main.Ext != nil {
		return nil, errf(p.lastLine(), "main function is not defined")
	}

	return &vm.Program{
		Code:    p.code,
		Globals: p.globals,
		Entry:   main.Entry,
		Names:   p.names,
	}, nil
}

func (p *Parser) lastLine() int {
	if len(p.tokens) == 0 {
		return 1
	}
	return p.tokens[len(p.tokens)-1].Line
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF, Line: p.lastLine()}
	}
	return p.tokens[p.pos]
}

// consume accepts the current token when it matches tt.
func (p *Parser) consume(tt TokenType) bool {
	if p.peek().Type != tt {
		return false
	}
	p.consumed = p.peek()
	p.pos++
	return true
}

// tkerr builds the fatal diagnostic for the current token's line.
func (p *Parser) tkerr(format string, args ...any) error {
	return errf(p.peek().Line, format, args...)
}

// --- emission helpers ---

func (p *Parser) emit(op vm.Opcode) int {
	p.code = append(p.code, vm.Instr{Op: op})
	return len(p.code) - 1
}

func (p *Parser) emitI(op vm.Opcode, i int64) int {
	p.code = append(p.code, vm.Instr{Op: op, I: i})
	return len(p.code) - 1
}

func (p *Parser) emitD(op vm.Opcode, d float64) int {
	p.code = append(p.code, vm.Instr{Op: op, D: d})
	return len(p.code) - 1
}

func (p *Parser) last() int {
	return len(p.code) - 1
}

// truncate discards every instruction emitted since the snapshot n; it is
// the backtracking counterpart of the token-position restore.
func (p *Parser) truncate(n int) {
	p.code = p.code[:n]
}

// addRVal materializes an l-value: when the top of stack is an address of a
// scalar, append the load matching its base type. Arrays and structs stay
// as addresses.
func (p *Parser) addRVal(r ret) {
	if !r.lval || !r.typ.IsScalar() {
		return
	}
	switch r.typ.Base {
	case TBDouble:
		p.emit(vm.OpLoadF)
	case TBChar:
		p.emit(vm.OpLoadC)
	default:
		p.emit(vm.OpLoadI)
	}
}

func isIntClass(b TypeBase) bool {
	return b == TBInt || b == TBChar
}

// insertConvIfNeeded inserts a width conversion immediately after the
// instruction at anchor when the scalar bases differ in width. Char counts
// as int here; its narrowing happens at store time via STORE_C.
func (p *Parser) insertConvIfNeeded(anchor int, from, to Type) {
	if !from.IsScalar() || !to.IsScalar() {
		return
	}
	var conv vm.Opcode
	switch {
	case isIntClass(from.Base) && to.Base == TBDouble:
		conv = vm.OpConvIF
	case from.Base == TBDouble && isIntClass(to.Base):
		conv = vm.OpConvFI
	default:
		return
	}
	p.code = append(p.code, vm.Instr{})
	copy(p.code[anchor+2:], p.code[anchor+1:])
	p.code[anchor+1] = vm.Instr{Op: conv}
}

// allocGlobal reserves size bytes in the globals arena, 8-byte aligned,
// and returns the address.
func (p *Parser) allocGlobal(size int) int {
	for len(p.globals)%vm.CellSize != 0 {
		p.globals = append(p.globals, 0)
	}
	addr := len(p.globals)
	p.globals = append(p.globals, make([]byte, size)...)
	return addr
}

// internString stores a NUL-terminated copy of s in the globals arena once
// and returns its address.
func (p *Parser) internString(s string) int {
	if addr, ok := p.strings[s]; ok {
		return addr
	}
	addr := len(p.globals)
	p.globals = append(p.globals, s...)
	p.globals = append(p.globals, 0)
	p.strings[s] = addr
	return addr
}

// --- declarations ---

// unit = (structDef | fnDef | varDef)* EOF
func (p *Parser) unit() error {
	for {
		if ok, err := p.structDef(); err != nil {
			return err
		} else if ok {
			continue
		}
		if ok, err := p.fnDef(); err != nil {
			return err
		} else if ok {
			continue
		}
		if ok, err := p.varDef(); err != nil {
			return err
		} else if ok {
			continue
		}
		break
	}
	if !p.consume(EOF) {
		return p.tkerr("syntax error")
	}
	return nil
}

// typeBase = INT | DOUBLE | CHAR | STRUCT IDENTIFIER
func (p *Parser) typeBase() (Type, bool, error) {
	if p.consume(INT) {
		return intType(), true, nil
	}
	if p.consume(DOUBLE) {
		return doubleType(), true, nil
	}
	if p.consume(CHAR) {
		return charType(), true, nil
	}
	if p.consume(STRUCT) {
		if !p.consume(IDENTIFIER) {
			return Type{}, false, p.tkerr("Missing struct name: expected an identifier (ID) after 'struct'.")
		}
		name := p.consumed
		s := p.syms.Find(name.Lexeme)
		if s == nil || s.Kind != SymStruct {
			return Type{}, false, errf(name.Line, "Struct %s is not defined.", name.Lexeme)
		}
		return Type{Base: TBStruct, Struct: s, N: -1}, true, nil
	}
	return Type{}, false, nil
}

// arrayDecl = LBRACKET INT_LIT? RBRACKET
func (p *Parser) arrayDecl(t *Type) (bool, error) {
	if !p.consume(LBRACKET) {
		return false, nil
	}
	if p.consume(INT_LIT) {
		t.N = int(p.consumed.I)
	} else {
		t.N = 0 // array without specified dimension
	}
	if !p.consume(RBRACKET) {
		return false, p.tkerr("you need a right bracket after array declaration.")
	}
	return true, nil
}

// varDef = typeBase IDENTIFIER arrayDecl? SEMICOLON
func (p *Parser) varDef() (bool, error) {
	start := p.pos
	t, ok, err := p.typeBase()
	if err != nil {
		return false, err
	}
	if !ok {
		p.pos = start
		return false, nil
	}
	if !p.consume(IDENTIFIER) {
		return false, p.tkerr("Expected an identifier (ID) after the type. Did you forget to name the variable?")
	}
	name := p.consumed
	if isArr, err := p.arrayDecl(&t); err != nil {
		return false, err
	} else if isArr && t.N == 0 {
		return false, p.tkerr("A vector variable must have a dimension.")
	}
	if !p.consume(SEMICOLON) {
		return false, p.tkerr("you need a semicolon after variable definition.")
	}

	if p.syms.Current().Find(name.Lexeme) != nil {
		return false, errf(name.Line, "Variable %s is already defined.", name.Lexeme)
	}
	v := &Symbol{Name: name.Lexeme, Kind: SymVar, Type: t, Owner: p.owner}
	if p.owner != nil {
		switch p.owner.Kind {
		case SymFn:
			v.Offset = p.owner.LocalsSize
			p.owner.LocalsSize += t.Size()
			p.owner.Locals = append(p.owner.Locals, v.clone())
		case SymStruct:
			v.Offset = p.owner.Type.Size()
			p.owner.Members = append(p.owner.Members, v.clone())
		}
	} else {
		v.Addr = p.allocGlobal(t.Size())
	}
	p.syms.Add(v)
	return true, nil
}

// structDef = STRUCT IDENTIFIER LBRACE varDef* RBRACE SEMICOLON
// The struct symbol is created before its body is parsed so that member
// types can refer to previously defined structs while the name is visible.
func (p *Parser) structDef() (bool, error) {
	start := p.pos
	if !p.consume(STRUCT) {
		return false, nil
	}
	if !p.consume(IDENTIFIER) {
		p.pos = start
		return false, nil
	}
	name := p.consumed
	if !p.consume(LBRACE) {
		// a variable or function of struct type; let the other productions parse it
		p.pos = start
		return false, nil
	}

	if p.syms.Current().Find(name.Lexeme) != nil {
		return false, errf(name.Line, "Struct %s is already defined.", name.Lexeme)
	}
	s := p.syms.Add(&Symbol{Name: name.Lexeme, Kind: SymStruct})
	s.Type = Type{Base: TBStruct, Struct: s, N: -1}

	p.syms.PushDomain()
	prevOwner := p.owner
	p.owner = s
	for {
		ok, err := p.varDef()
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
	}
	if !p.consume(RBRACE) {
		return false, p.tkerr("Expected right curly brace '}' after struct members.")
	}
	if !p.consume(SEMICOLON) {
		return false, p.tkerr("you need a semicolon after struct definition.")
	}
	p.owner = prevOwner
	p.syms.DropDomain()
	return true, nil
}

// fnParam = typeBase IDENTIFIER arrayDecl?
func (p *Parser) fnParam() (bool, error) {
	start := p.pos
	t, ok, err := p.typeBase()
	if err != nil {
		return false, err
	}
	if !ok {
		p.pos = start
		return false, nil
	}
	if !p.consume(IDENTIFIER) {
		return false, p.tkerr("Expected identifier (parameter name) after type.")
	}
	name := p.consumed
	if isArr, err := p.arrayDecl(&t); err != nil {
		return false, err
	} else if isArr {
		t.N = 0 // array parameters decay to unspecified length
	}
	if p.syms.Current().Find(name.Lexeme) != nil {
		return false, errf(name.Line, "Parameter %s is already defined.", name.Lexeme)
	}
	param := &Symbol{
		Name:     name.Lexeme,
		Kind:     SymParam,
		Type:     t,
		Owner:    p.owner,
		ParamIdx: len(p.owner.Params),
	}
	p.syms.Add(param)
	p.owner.Params = append(p.owner.Params, param.clone())
	return true, nil
}

// fnDef = (typeBase | VOID) IDENTIFIER LPAREN (fnParam (COMMA fnParam)*)? RPAREN stmCompound
func (p *Parser) fnDef() (bool, error) {
	start := p.pos
	startLen := len(p.code)

	var t Type
	if bt, ok, err := p.typeBase(); err != nil {
		return false, err
	} else if ok {
		t = bt
	} else if p.consume(VOID) {
		t = voidType()
	} else {
		return false, nil
	}

	if !p.consume(IDENTIFIER) {
		if t.Base == TBVoid {
			return false, p.tkerr("Missing function name")
		}
		p.pos = start
		return false, nil
	}
	name := p.consumed
	if !p.consume(LPAREN) {
		// a variable definition; backtrack
		p.pos = start
		p.truncate(startLen)
		return false, nil
	}

	if p.syms.Current().Find(name.Lexeme) != nil {
		return false, errf(name.Line, "symbol redefinition: %s", name.Lexeme)
	}
	fn := p.syms.Add(&Symbol{Name: name.Lexeme, Kind: SymFn, Type: t})
	p.owner = fn
	p.syms.PushDomain()

	if ok, err := p.fnParam(); err != nil {
		return false, err
	} else if ok {
		for p.consume(COMMA) {
			if ok, err := p.fnParam(); err != nil {
				return false, err
			} else if !ok {
				return false, p.tkerr("Missing function parameter after ',' or invalid parameter")
			}
		}
	}
	if !p.consume(RPAREN) {
		return false, p.tkerr("Missing ')' from function definition")
	}

	fn.Entry = p.emitI(vm.OpEnter, 0) // locals size patched after the body
	p.names[fn.Entry] = fn.Name

	if ok, err := p.stmCompound(false); err != nil {
		return false, err
	} else if !ok {
		return false, p.tkerr("Missing function body")
	}

	p.code[fn.Entry].I = int64(fn.LocalsSize)
	if fn.Type.Base == TBVoid {
		p.emitI(vm.OpRetVoid, int64(len(fn.Params)*vm.CellSize))
	}
	p.syms.DropDomain()
	p.owner = nil
	return true, nil
}

// --- statements ---

// stmCompound = LBRACE (structDef | varDef | stm)* RBRACE
// The function body shares the parameter domain, so it is parsed with
// newDomain=false; every other block opens its own domain.
func (p *Parser) stmCompound(newDomain bool) (bool, error) {
	if !p.consume(LBRACE) {
		return false, nil
	}
	if newDomain {
		p.syms.PushDomain()
	}
	for {
		if ok, err := p.structDef(); err != nil {
			return false, err
		} else if ok {
			continue
		}
		if ok, err := p.varDef(); err != nil {
			return false, err
		} else if ok {
			continue
		}
		if ok, err := p.stm(); err != nil {
			return false, err
		} else if ok {
			continue
		}
		break
	}
	if !p.consume(RBRACE) {
		return false, p.tkerr("Expected right curly brace '}' after compound statement.")
	}
	if newDomain {
		p.syms.DropDomain()
	}
	return true, nil
}

// stm = stmCompound | IF ... | WHILE ... | RETURN ... | expr? SEMICOLON
func (p *Parser) stm() (bool, error) {
	start := p.pos
	startLen := len(p.code)

	if ok, err := p.stmCompound(true); err != nil || ok {
		return ok, err
	}

	if p.consume(IF) {
		if !p.consume(LPAREN) {
			return false, p.tkerr("Expected left parenthesis '(' after 'if'.")
		}
		var cond ret
		if ok, err := p.expr(&cond); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Expected expression inside parentheses after 'if'.")
		}
		if !cond.typ.IsScalar() {
			return false, p.tkerr("the if condition must be a scalar value")
		}
		if !p.consume(RPAREN) {
			return false, p.tkerr("Expected right parenthesis ')' after condition in 'if'.")
		}
		p.addRVal(cond)
		p.insertConvIfNeeded(p.last(), cond.typ, intType())
		jf := p.emit(vm.OpJF)
		if ok, err := p.stm(); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("you need a statement after if.")
		}
		if p.consume(ELSE) {
			jmp := p.emit(vm.OpJmp)
			p.code[jf].I = int64(p.emit(vm.OpNop))
			if ok, err := p.stm(); err != nil {
				return false, err
			} else if !ok {
				return false, p.tkerr("you need a statement after else.")
			}
			p.code[jmp].I = int64(p.emit(vm.OpNop))
		} else {
			p.code[jf].I = int64(p.emit(vm.OpNop))
		}
		return true, nil
	}

	if p.consume(WHILE) {
		condStart := len(p.code)
		if !p.consume(LPAREN) {
			return false, p.tkerr("Expected left parenthesis '(' after 'while'.")
		}
		var cond ret
		if ok, err := p.expr(&cond); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Expected expression inside parentheses after 'while'.")
		}
		if !cond.typ.IsScalar() {
			return false, p.tkerr("the while condition must be a scalar value")
		}
		if !p.consume(RPAREN) {
			return false, p.tkerr("Expected right parenthesis ')' after condition in 'while'.")
		}
		p.addRVal(cond)
		p.insertConvIfNeeded(p.last(), cond.typ, intType())
		jf := p.emit(vm.OpJF)
		if ok, err := p.stm(); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("you need a statement after while.")
		}
		p.emitI(vm.OpJmp, int64(condStart))
		p.code[jf].I = int64(p.emit(vm.OpNop))
		return true, nil
	}

	if p.consume(RETURN) {
		var rExpr ret
		if ok, err := p.expr(&rExpr); err != nil {
			return false, err
		} else if ok {
			if p.owner.Type.Base == TBVoid {
				return false, p.tkerr("a void function cannot return a value")
			}
			if !rExpr.typ.IsScalar() {
				return false, p.tkerr("the return value must be a scalar value")
			}
			if !convTo(rExpr.typ, p.owner.Type) {
				return false, p.tkerr("cannot convert the return expression type to the function return type")
			}
			p.addRVal(rExpr)
			p.insertConvIfNeeded(p.last(), rExpr.typ, p.owner.Type)
			p.emitI(vm.OpRet, int64(len(p.owner.Params)*vm.CellSize))
		} else {
			if p.owner.Type.Base != TBVoid {
				return false, p.tkerr("a non-void function must return a value")
			}
			p.emitI(vm.OpRetVoid, int64(len(p.owner.Params)*vm.CellSize))
		}
		if !p.consume(SEMICOLON) {
			return false, p.tkerr("missing ; at return statement")
		}
		return true, nil
	}

	var rExpr ret
	if ok, err := p.expr(&rExpr); err != nil {
		return false, err
	} else if ok {
		if rExpr.typ.Base != TBVoid {
			p.emit(vm.OpDrop)
		}
		if !p.consume(SEMICOLON) {
			return false, p.tkerr("Expected semicolon ';' after expression.")
		}
		return true, nil
	}
	if p.consume(SEMICOLON) {
		return true, nil
	}
	p.pos = start
	p.truncate(startLen)
	return false, nil
}
