package compiler

import (
	"microc/pkg/vm"
)

// The expression productions. Each fills in *r with the result descriptor
// and leaves the value (or, for l-values, the address) of the expression on
// the VM stack at run time.

func (p *Parser) expr(r *ret) (bool, error) {
	return p.exprAssign(r)
}

// exprAssign = exprUnary ASSIGN exprAssign | exprOr
// The destination alternative is speculative: when no '=' follows, the
// tokens are re-parsed as exprOr and the emitted address computation is
// truncated.
func (p *Parser) exprAssign(r *ret) (bool, error) {
	start := p.pos
	startLen := len(p.code)

	var dst ret
	if ok, err := p.exprUnary(&dst); err != nil {
		return false, err
	} else if ok && p.consume(ASSIGN) {
		if ok, err := p.exprAssign(r); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Expected expression after assignment operator '='.")
		}
		if !dst.lval {
			return false, p.tkerr("the assign destination must be a left-value")
		}
		if dst.ct {
			return false, p.tkerr("the assign destination cannot be constant")
		}
		if !dst.typ.IsScalar() {
			return false, p.tkerr("the assign destination must be scalar")
		}
		if !r.typ.IsScalar() {
			return false, p.tkerr("the assign source must be scalar")
		}
		if !convTo(r.typ, dst.typ) {
			return false, p.tkerr("the assign source cannot be converted to destination")
		}
		p.addRVal(*r)
		p.insertConvIfNeeded(p.last(), r.typ, dst.typ)
		switch dst.typ.Base {
		case TBDouble:
			p.emit(vm.OpStoreF)
		case TBChar:
			p.emit(vm.OpStoreC)
		default:
			p.emit(vm.OpStoreI)
		}
		*r = ret{typ: dst.typ, lval: false, ct: true}
		return true, nil
	}

	p.pos = start
	p.truncate(startLen)
	return p.exprOr(r)
}

// exprOr = exprAnd (OR_LOGICAL exprAnd)*
func (p *Parser) exprOr(r *ret) (bool, error) {
	if ok, err := p.exprAnd(r); err != nil || !ok {
		return ok, err
	}
	for p.consume(OR_LOGICAL) {
		p.addRVal(*r)
		lastLeft := p.last()
		var right ret
		if ok, err := p.exprAnd(&right); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Expected expression after '||'.")
		}
		if _, ok := arithTypeTo(r.typ, right.typ); !ok {
			return false, p.tkerr("invalid operand type for ||")
		}
		p.addRVal(right)
		p.insertConvIfNeeded(lastLeft, r.typ, intType())
		p.insertConvIfNeeded(p.last(), right.typ, intType())
		p.emit(vm.OpOr)
		*r = ret{typ: intType(), lval: false, ct: true}
	}
	return true, nil
}

// exprAnd = exprEq (AND_LOGICAL exprEq)*
func (p *Parser) exprAnd(r *ret) (bool, error) {
	if ok, err := p.exprEq(r); err != nil || !ok {
		return ok, err
	}
	for p.consume(AND_LOGICAL) {
		p.addRVal(*r)
		lastLeft := p.last()
		var right ret
		if ok, err := p.exprEq(&right); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Expected expression after '&&'.")
		}
		if _, ok := arithTypeTo(r.typ, right.typ); !ok {
			return false, p.tkerr("invalid operand type for &&")
		}
		p.addRVal(right)
		p.insertConvIfNeeded(lastLeft, r.typ, intType())
		p.insertConvIfNeeded(p.last(), right.typ, intType())
		p.emit(vm.OpAnd)
		*r = ret{typ: intType(), lval: false, ct: true}
	}
	return true, nil
}

// exprEq = exprRel ((EQUALS | NOT_EQ) exprRel)*
func (p *Parser) exprEq(r *ret) (bool, error) {
	if ok, err := p.exprRel(r); err != nil || !ok {
		return ok, err
	}
	for p.consume(EQUALS) || p.consume(NOT_EQ) {
		op := p.consumed.Type
		p.addRVal(*r)
		lastLeft := p.last()
		var right ret
		if ok, err := p.exprRel(&right); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Expected expression after '==' or '!='.")
		}
		tDst, ok := arithTypeTo(r.typ, right.typ)
		if !ok {
			return false, p.tkerr("invalid operand type for == or !=")
		}
		p.addRVal(right)
		p.insertConvIfNeeded(lastLeft, r.typ, tDst)
		p.insertConvIfNeeded(p.last(), right.typ, tDst)
		if tDst.Base == TBDouble {
			if op == EQUALS {
				p.emit(vm.OpEqF)
			} else {
				p.emit(vm.OpNeF)
			}
		} else {
			if op == EQUALS {
				p.emit(vm.OpEqI)
			} else {
				p.emit(vm.OpNeI)
			}
		}
		*r = ret{typ: intType(), lval: false, ct: true}
	}
	return true, nil
}

var relOpcodes = map[TokenType][2]vm.Opcode{
	LESS:       {vm.OpLessI, vm.OpLessF},
	LESS_EQ:    {vm.OpLessEqI, vm.OpLessEqF},
	GREATER:    {vm.OpGreaterI, vm.OpGreaterF},
	GREATER_EQ: {vm.OpGreaterEqI, vm.OpGreaterEqF},
}

// exprRel = exprAdd ((LESS | LESS_EQ | GREATER | GREATER_EQ) exprAdd)*
func (p *Parser) exprRel(r *ret) (bool, error) {
	if ok, err := p.exprAdd(r); err != nil || !ok {
		return ok, err
	}
	for p.consume(LESS) || p.consume(LESS_EQ) || p.consume(GREATER) || p.consume(GREATER_EQ) {
		op := p.consumed.Type
		p.addRVal(*r)
		lastLeft := p.last()
		var right ret
		if ok, err := p.exprAdd(&right); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Invalid expression after comparison")
		}
		tDst, ok := arithTypeTo(r.typ, right.typ)
		if !ok {
			return false, p.tkerr("Invalid operand type for <, <=, >, >=")
		}
		p.addRVal(right)
		p.insertConvIfNeeded(lastLeft, r.typ, tDst)
		p.insertConvIfNeeded(p.last(), right.typ, tDst)
		ops := relOpcodes[op]
		if tDst.Base == TBDouble {
			p.emit(ops[1])
		} else {
			p.emit(ops[0])
		}
		*r = ret{typ: intType(), lval: false, ct: true}
	}
	return true, nil
}

// exprAdd = exprMul ((PLUS | MINUS) exprMul)*
func (p *Parser) exprAdd(r *ret) (bool, error) {
	if ok, err := p.exprMul(r); err != nil || !ok {
		return ok, err
	}
	for p.consume(PLUS) || p.consume(MINUS) {
		op := p.consumed.Type
		p.addRVal(*r)
		lastLeft := p.last()
		var right ret
		if ok, err := p.exprMul(&right); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Invalid expression after operation")
		}
		tDst, ok := arithTypeTo(r.typ, right.typ)
		if !ok {
			return false, p.tkerr("Invalid operand type for + or -")
		}
		p.addRVal(right)
		p.insertConvIfNeeded(lastLeft, r.typ, tDst)
		p.insertConvIfNeeded(p.last(), right.typ, tDst)
		if tDst.Base == TBDouble {
			if op == PLUS {
				p.emit(vm.OpAddF)
			} else {
				p.emit(vm.OpSubF)
			}
		} else {
			if op == PLUS {
				p.emit(vm.OpAddI)
			} else {
				p.emit(vm.OpSubI)
			}
		}
		*r = ret{typ: tDst, lval: false, ct: true}
	}
	return true, nil
}

// exprMul = exprCast ((STAR | SLASH) exprCast)*
func (p *Parser) exprMul(r *ret) (bool, error) {
	if ok, err := p.exprCast(r); err != nil || !ok {
		return ok, err
	}
	for p.consume(STAR) || p.consume(SLASH) {
		op := p.consumed.Type
		p.addRVal(*r)
		lastLeft := p.last()
		var right ret
		if ok, err := p.exprCast(&right); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Invalid expression after operation")
		}
		tDst, ok := arithTypeTo(r.typ, right.typ)
		if !ok {
			return false, p.tkerr("Invalid operand type for * or /")
		}
		p.addRVal(right)
		p.insertConvIfNeeded(lastLeft, r.typ, tDst)
		p.insertConvIfNeeded(p.last(), right.typ, tDst)
		if tDst.Base == TBDouble {
			if op == STAR {
				p.emit(vm.OpMulF)
			} else {
				p.emit(vm.OpDivF)
			}
		} else {
			if op == STAR {
				p.emit(vm.OpMulI)
			} else {
				p.emit(vm.OpDivI)
			}
		}
		*r = ret{typ: tDst, lval: false, ct: true}
	}
	return true, nil
}

// exprCast = LPAREN typeBase arrayDecl? RPAREN exprCast | exprUnary
func (p *Parser) exprCast(r *ret) (bool, error) {
	start := p.pos
	startLen := len(p.code)

	if p.consume(LPAREN) {
		if t, ok, err := p.typeBase(); err != nil {
			return false, err
		} else if ok {
			if _, err := p.arrayDecl(&t); err != nil {
				return false, err
			}
			if !p.consume(RPAREN) {
				return false, p.tkerr("Missing closing parenthesis ')' after type in cast.")
			}
			var op ret
			if ok, err := p.exprCast(&op); err != nil {
				return false, err
			} else if !ok {
				return false, p.tkerr("Expected expression after type cast.")
			}
			if t.Base == TBStruct {
				return false, p.tkerr("cannot convert to a struct type")
			}
			if op.typ.Base == TBStruct {
				return false, p.tkerr("cannot convert a struct")
			}
			if op.typ.N >= 0 && t.N < 0 {
				return false, p.tkerr("an array can be converted only to another array")
			}
			if op.typ.N < 0 && t.N >= 0 {
				return false, p.tkerr("a scalar can be converted only to another scalar")
			}
			p.addRVal(op)
			p.insertConvIfNeeded(p.last(), op.typ, t)
			*r = ret{typ: t, lval: false, ct: true}
			return true, nil
		}
		// a parenthesized expression, not a cast
		p.pos = start
		p.truncate(startLen)
	}
	return p.exprUnary(r)
}

// exprUnary = (MINUS | NOT) exprUnary | exprPostfix
func (p *Parser) exprUnary(r *ret) (bool, error) {
	if p.consume(MINUS) {
		if ok, err := p.exprUnary(r); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Expected expression after unary minus '-'.")
		}
		if !r.typ.IsScalar() {
			return false, p.tkerr("unary - must have a scalar operand")
		}
		p.addRVal(*r)
		if r.typ.Base == TBDouble {
			p.emit(vm.OpNegF)
		} else {
			p.emit(vm.OpNegI)
		}
		*r = ret{typ: r.typ, lval: false, ct: true}
		return true, nil
	}
	if p.consume(NOT) {
		if ok, err := p.exprUnary(r); err != nil {
			return false, err
		} else if !ok {
			return false, p.tkerr("Expected expression after logical NOT '!'.")
		}
		if !r.typ.IsScalar() {
			return false, p.tkerr("unary ! must have a scalar operand")
		}
		p.addRVal(*r)
		p.insertConvIfNeeded(p.last(), r.typ, intType())
		p.emit(vm.OpNotI)
		*r = ret{typ: intType(), lval: false, ct: true}
		return true, nil
	}
	return p.exprPostfix(r)
}

// exprPostfix = exprPrimary (LBRACKET expr RBRACKET | DOT IDENTIFIER)*
func (p *Parser) exprPostfix(r *ret) (bool, error) {
	if ok, err := p.exprPrimary(r); err != nil || !ok {
		return ok, err
	}
	for {
		if p.consume(LBRACKET) {
			if r.typ.N < 0 {
				return false, p.tkerr("only an array can be indexed")
			}
			var idx ret
			if ok, err := p.expr(&idx); err != nil {
				return false, err
			} else if !ok {
				return false, p.tkerr("Expected expression inside brackets '[...]'.")
			}
			if !convTo(idx.typ, intType()) {
				return false, p.tkerr("the index is not convertible to int")
			}
			if !p.consume(RBRACKET) {
				return false, p.tkerr("Missing closing bracket ']'.")
			}
			p.addRVal(idx)
			p.insertConvIfNeeded(p.last(), idx.typ, intType())
			elem := r.typ.elem()
			p.emitI(vm.OpIndex, int64(elem.Size()))
			*r = ret{typ: elem, lval: true, ct: false}
			continue
		}
		if p.consume(DOT) {
			if !p.consume(IDENTIFIER) {
				return false, p.tkerr("Missing identifier after '.'. Expected a member name.")
			}
			name := p.consumed
			if r.typ.Base != TBStruct || r.typ.N >= 0 {
				return false, p.tkerr("a field can only be selected from a struct")
			}
			m := findInList(r.typ.Struct.Members, name.Lexeme)
			if m == nil {
				return false, p.tkerr("the structure %s does not have a field %s", r.typ.Struct.Name, name.Lexeme)
			}
			p.emitI(vm.OpField, int64(m.Offset))
			*r = ret{typ: m.Type, lval: true, ct: m.Type.N >= 0}
			continue
		}
		break
	}
	return true, nil
}

// exprPrimary = IDENTIFIER (LPAREN args? RPAREN)? | literals | LPAREN expr RPAREN
func (p *Parser) exprPrimary(r *ret) (bool, error) {
	start := p.pos
	startLen := len(p.code)

	if p.consume(IDENTIFIER) {
		name := p.consumed
		s := p.syms.Find(name.Lexeme)
		if s == nil {
			return false, errf(name.Line, "Undefined id: %s", name.Lexeme)
		}

		if p.consume(LPAREN) {
			if s.Kind != SymFn {
				return false, p.tkerr("Only a function can be called")
			}
			argIdx := 0
			passArg := func(rArg ret) error {
				if argIdx >= len(s.Params) {
					return p.tkerr("Too many arguments in function call")
				}
				param := s.Params[argIdx]
				if !convTo(rArg.typ, param.Type) {
					return p.tkerr("In call, cannot convert the argument type to the parameter type")
				}
				p.addRVal(rArg)
				p.insertConvIfNeeded(p.last(), rArg.typ, param.Type)
				argIdx++
				return nil
			}
			var rArg ret
			if ok, err := p.expr(&rArg); err != nil {
				return false, err
			} else if ok {
				if err := passArg(rArg); err != nil {
					return false, err
				}
				for p.consume(COMMA) {
					if ok, err := p.expr(&rArg); err != nil {
						return false, err
					} else if !ok {
						return false, p.tkerr("Missing expression after ',' in function call")
					}
					if err := passArg(rArg); err != nil {
						return false, err
					}
				}
			}
			if !p.consume(RPAREN) {
				return false, p.tkerr("Missing ')' in function call")
			}
			if argIdx < len(s.Params) {
				return false, p.tkerr("Too few arguments in function call")
			}
			if s.Ext != nil {
				i := p.emit(vm.OpCallExt)
				p.code[i].Ext = s.Ext
			} else {
				p.emitI(vm.OpCall, int64(s.Entry))
			}
			*r = ret{typ: s.Type, lval: false, ct: true}
			return true, nil
		}

		if s.Kind == SymFn {
			return false, p.tkerr("A function can only be called")
		}
		switch s.Kind {
		case SymParam:
			// args sit below the return IP and saved FP: param k of P
			// lives at FP + (k-P-1) cells
			P := len(s.Owner.Params)
			off := int64((s.ParamIdx - P - 1) * vm.CellSize)
			if s.Type.Base == TBDouble && s.Type.IsScalar() {
				p.emitI(vm.OpFPAddrF, off)
			} else {
				p.emitI(vm.OpFPAddrI, off)
			}
			if !s.Type.IsScalar() {
				// arrays and structs are passed by address in one cell
				p.emit(vm.OpLoadI)
			}
		default: // SymVar
			if s.Owner == nil {
				p.emitI(vm.OpAddr, int64(s.Addr))
			} else {
				off := int64(s.Offset + vm.CellSize)
				if s.Type.Base == TBDouble && s.Type.IsScalar() {
					p.emitI(vm.OpFPAddrF, off)
				} else {
					p.emitI(vm.OpFPAddrI, off)
				}
			}
		}
		*r = ret{typ: s.Type, lval: true, ct: s.Type.N >= 0}
		return true, nil
	}

	if p.consume(INT_LIT) {
		p.emitI(vm.OpPushI, p.consumed.I)
		*r = ret{typ: intType(), lval: false, ct: true}
		return true, nil
	}
	if p.consume(DOUBLE_LIT) {
		p.emitD(vm.OpPushD, p.consumed.D)
		*r = ret{typ: doubleType(), lval: false, ct: true}
		return true, nil
	}
	if p.consume(CHAR_LIT) {
		p.emitI(vm.OpPushI, p.consumed.I)
		*r = ret{typ: charType(), lval: false, ct: true}
		return true, nil
	}
	if p.consume(STRING_LIT) {
		text := p.consumed.Lexeme
		addr := p.internString(text)
		p.emitI(vm.OpPushI, int64(addr))
		*r = ret{typ: Type{Base: TBChar, N: len(text) + 1}, lval: false, ct: true}
		return true, nil
	}

	if p.consume(LPAREN) {
		if ok, err := p.expr(r); err != nil {
			return false, err
		} else if ok {
			if !p.consume(RPAREN) {
				return false, p.tkerr("Missing ')' after expression")
			}
			return true, nil
		}
		p.pos = start
		p.truncate(startLen)
		return false, nil
	}

	p.pos = start
	p.truncate(startLen)
	return false, nil
}
