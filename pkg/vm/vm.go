package vm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

const (
	// CellSize is the width of one value-stack slot. All scalar pushes and
	// pops move one cell; char values occupy the low byte of their cell.
	CellSize = 8

	// DefaultStackSize is the byte size of the stack region above the
	// globals arena.
	DefaultStackSize = 64 * 1024
)

// VM executes a compiled Program. The globals arena and the stack share one
// byte-addressable memory: globals at the bottom (address 0 reserved as the
// null address), the stack above it growing upward. IP indexes Code; SP and
// FP are byte addresses into Mem. FP points at the saved-FP cell of the
// current frame, so locals live above it and arguments below.
type VM struct {
	Code []Instr
	Mem  []byte

	IP int
	SP int
	FP int

	stackBase int

	Halted bool
	Result int64 // value returned by the entry function

	// Output receives everything the program prints. Defaults to os.Stdout.
	Output io.Writer
	// Input feeds the get_i family of builtins. Defaults to os.Stdin.
	Input io.Reader
	in    *bufio.Reader

	// Trace, when non-nil, receives one line per executed instruction.
	Trace io.Writer

	// Keys is the pending keyboard input consumed by get_key.
	Keys []int64

	Framebuffer [FrameWidth * FrameHeight]byte

	start time.Time
}

// New builds a VM for p with the default stack size and positions it at the
// entry function. The sentinel return address makes the entry function's
// RET halt the machine instead of jumping.
func New(p *Program) *VM {
	base := (len(p.Globals) + CellSize - 1) &^ (CellSize - 1)
	v := &VM{
		Code:      p.Code,
		Mem:       make([]byte, base+DefaultStackSize),
		IP:        p.Entry,
		SP:        base,
		stackBase: base,
		start:     time.Now(),
	}
	copy(v.Mem, p.Globals)
	v.mustPushInt(-1) // sentinel return IP for the entry frame
	return v
}

// Run steps the machine until the entry function returns or a trap fires.
func (v *VM) Run() error {
	for !v.Halted {
		if err := v.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (v *VM) outputSink() io.Writer {
	if v.Output != nil {
		return v.Output
	}
	return os.Stdout
}

func (v *VM) inputSource() *bufio.Reader {
	if v.in == nil {
		src := v.Input
		if src == nil {
			src = os.Stdin
		}
		v.in = bufio.NewReader(src)
	}
	return v.in
}

func (v *VM) trapf(format string, args ...any) error {
	return fmt.Errorf("runtime error at ip=%d: %s", v.IP, fmt.Sprintf(format, args...))
}

func (v *VM) push(c uint64) error {
	if v.SP+CellSize > len(v.Mem) {
		return v.trapf("stack overflow")
	}
	binary.LittleEndian.PutUint64(v.Mem[v.SP:], c)
	v.SP += CellSize
	return nil
}

func (v *VM) pop() (uint64, error) {
	if v.SP-CellSize < v.stackBase {
		return 0, v.trapf("stack underflow")
	}
	v.SP -= CellSize
	return binary.LittleEndian.Uint64(v.Mem[v.SP:]), nil
}

func (v *VM) pushInt(x int64) error     { return v.push(uint64(x)) }
func (v *VM) pushFloat(x float64) error { return v.push(math.Float64bits(x)) }

func (v *VM) mustPushInt(x int64) {
	if err := v.pushInt(x); err != nil {
		panic(err) // only reachable with a zero-size stack
	}
}

func (v *VM) popInt() (int64, error) {
	c, err := v.pop()
	return int64(c), err
}

func (v *VM) popFloat() (float64, error) {
	c, err := v.pop()
	return math.Float64frombits(c), err
}

// checkAddr validates a load/store target of the given byte width.
func (v *VM) checkAddr(addr int64, size int) error {
	if addr == 0 {
		return v.trapf("null address")
	}
	if addr < 0 || int(addr)+size > len(v.Mem) {
		return v.trapf("address %d out of range", addr)
	}
	return nil
}

func (v *VM) readCell(addr int) uint64 {
	return binary.LittleEndian.Uint64(v.Mem[addr:])
}

func (v *VM) writeCell(addr int, c uint64) {
	binary.LittleEndian.PutUint64(v.Mem[addr:], c)
}

// binaryInt pops two ints (right first) and pushes f(left, right).
func (v *VM) binaryInt(f func(a, b int64) int64) error {
	b, err := v.popInt()
	if err != nil {
		return err
	}
	a, err := v.popInt()
	if err != nil {
		return err
	}
	return v.pushInt(f(a, b))
}

// binaryFloat pops two floats (right first) and pushes f(left, right).
func (v *VM) binaryFloat(f func(a, b float64) float64) error {
	b, err := v.popFloat()
	if err != nil {
		return err
	}
	a, err := v.popFloat()
	if err != nil {
		return err
	}
	return v.pushFloat(f(a, b))
}

// compareFloat pops two floats and pushes an int 0/1.
func (v *VM) compareFloat(f func(a, b float64) bool) error {
	b, err := v.popFloat()
	if err != nil {
		return err
	}
	a, err := v.popFloat()
	if err != nil {
		return err
	}
	return v.pushInt(boolToInt(f(a, b)))
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Step executes exactly one instruction. Hosts that interleave execution
// with rendering call this directly; Run loops over it.
func (v *VM) Step() error {
	if v.Halted {
		return nil
	}
	if v.IP < 0 || v.IP >= len(v.Code) {
		return v.trapf("instruction pointer out of code")
	}
	in := v.Code[v.IP]
	if v.Trace != nil {
		fmt.Fprintf(v.Trace, "%4d  %s\n", v.IP, in)
	}
	next := v.IP + 1

	switch in.Op {
	case OpNop:
		// jump target only

	case OpPushI:
		if err := v.pushInt(in.I); err != nil {
			return err
		}
	case OpPushD:
		if err := v.pushFloat(in.D); err != nil {
			return err
		}
	case OpAddr:
		if err := v.pushInt(in.I); err != nil {
			return err
		}
	case OpFPAddrI, OpFPAddrF:
		if err := v.pushInt(int64(v.FP) + in.I); err != nil {
			return err
		}

	case OpLoadI, OpLoadF:
		addr, err := v.popInt()
		if err != nil {
			return err
		}
		if err := v.checkAddr(addr, CellSize); err != nil {
			return err
		}
		if err := v.push(v.readCell(int(addr))); err != nil {
			return err
		}
	case OpLoadC:
		addr, err := v.popInt()
		if err != nil {
			return err
		}
		if err := v.checkAddr(addr, 1); err != nil {
			return err
		}
		if err := v.pushInt(int64(v.Mem[addr])); err != nil {
			return err
		}
	// Stores leave the stored value on the stack: it is the value of the
	// assignment expression, dropped by OpDrop in statement position.
	case OpStoreI, OpStoreF:
		val, err := v.pop()
		if err != nil {
			return err
		}
		addr, err := v.popInt()
		if err != nil {
			return err
		}
		if err := v.checkAddr(addr, CellSize); err != nil {
			return err
		}
		v.writeCell(int(addr), val)
		if err := v.push(val); err != nil {
			return err
		}
	case OpStoreC:
		val, err := v.popInt()
		if err != nil {
			return err
		}
		addr, err := v.popInt()
		if err != nil {
			return err
		}
		if err := v.checkAddr(addr, 1); err != nil {
			return err
		}
		v.Mem[addr] = byte(val)
		if err := v.pushInt(int64(byte(val))); err != nil {
			return err
		}

	case OpIndex:
		idx, err := v.popInt()
		if err != nil {
			return err
		}
		base, err := v.popInt()
		if err != nil {
			return err
		}
		if err := v.pushInt(base + idx*in.I); err != nil {
			return err
		}
	case OpField:
		base, err := v.popInt()
		if err != nil {
			return err
		}
		if err := v.pushInt(base + in.I); err != nil {
			return err
		}

	case OpAddI:
		if err := v.binaryInt(func(a, b int64) int64 { return a + b }); err != nil {
			return err
		}
	case OpSubI:
		if err := v.binaryInt(func(a, b int64) int64 { return a - b }); err != nil {
			return err
		}
	case OpMulI:
		if err := v.binaryInt(func(a, b int64) int64 { return a * b }); err != nil {
			return err
		}
	case OpDivI:
		b, err := v.popInt()
		if err != nil {
			return err
		}
		a, err := v.popInt()
		if err != nil {
			return err
		}
		if b == 0 {
			return v.trapf("division by zero")
		}
		if err := v.pushInt(a / b); err != nil {
			return err
		}
	case OpNegI:
		a, err := v.popInt()
		if err != nil {
			return err
		}
		if err := v.pushInt(-a); err != nil {
			return err
		}

	case OpAddF:
		if err := v.binaryFloat(func(a, b float64) float64 { return a + b }); err != nil {
			return err
		}
	case OpSubF:
		if err := v.binaryFloat(func(a, b float64) float64 { return a - b }); err != nil {
			return err
		}
	case OpMulF:
		if err := v.binaryFloat(func(a, b float64) float64 { return a * b }); err != nil {
			return err
		}
	case OpDivF:
		b, err := v.popFloat()
		if err != nil {
			return err
		}
		a, err := v.popFloat()
		if err != nil {
			return err
		}
		if b == 0 {
			return v.trapf("division by zero")
		}
		if err := v.pushFloat(a / b); err != nil {
			return err
		}
	case OpNegF:
		a, err := v.popFloat()
		if err != nil {
			return err
		}
		if err := v.pushFloat(-a); err != nil {
			return err
		}

	case OpEqI:
		if err := v.binaryInt(func(a, b int64) int64 { return boolToInt(a == b) }); err != nil {
			return err
		}
	case OpNeI:
		if err := v.binaryInt(func(a, b int64) int64 { return boolToInt(a != b) }); err != nil {
			return err
		}
	case OpLessI:
		if err := v.binaryInt(func(a, b int64) int64 { return boolToInt(a < b) }); err != nil {
			return err
		}
	case OpLessEqI:
		if err := v.binaryInt(func(a, b int64) int64 { return boolToInt(a <= b) }); err != nil {
			return err
		}
	case OpGreaterI:
		if err := v.binaryInt(func(a, b int64) int64 { return boolToInt(a > b) }); err != nil {
			return err
		}
	case OpGreaterEqI:
		if err := v.binaryInt(func(a, b int64) int64 { return boolToInt(a >= b) }); err != nil {
			return err
		}
	case OpEqF:
		if err := v.compareFloat(func(a, b float64) bool { return a == b }); err != nil {
			return err
		}
	case OpNeF:
		if err := v.compareFloat(func(a, b float64) bool { return a != b }); err != nil {
			return err
		}
	case OpLessF:
		if err := v.compareFloat(func(a, b float64) bool { return a < b }); err != nil {
			return err
		}
	case OpLessEqF:
		if err := v.compareFloat(func(a, b float64) bool { return a <= b }); err != nil {
			return err
		}
	case OpGreaterF:
		if err := v.compareFloat(func(a, b float64) bool { return a > b }); err != nil {
			return err
		}
	case OpGreaterEqF:
		if err := v.compareFloat(func(a, b float64) bool { return a >= b }); err != nil {
			return err
		}

	case OpAnd:
		if err := v.binaryInt(func(a, b int64) int64 { return boolToInt(a != 0 && b != 0) }); err != nil {
			return err
		}
	case OpOr:
		if err := v.binaryInt(func(a, b int64) int64 { return boolToInt(a != 0 || b != 0) }); err != nil {
			return err
		}
	case OpNotI:
		a, err := v.popInt()
		if err != nil {
			return err
		}
		if err := v.pushInt(boolToInt(a == 0)); err != nil {
			return err
		}

	case OpConvIF:
		a, err := v.popInt()
		if err != nil {
			return err
		}
		if err := v.pushFloat(float64(a)); err != nil {
			return err
		}
	case OpConvFI:
		a, err := v.popFloat()
		if err != nil {
			return err
		}
		if err := v.pushInt(int64(a)); err != nil {
			return err
		}

	case OpJmp:
		next = int(in.I)
	case OpJF:
		c, err := v.popInt()
		if err != nil {
			return err
		}
		if c == 0 {
			next = int(in.I)
		}

	case OpCall:
		if err := v.pushInt(int64(next)); err != nil {
			return err
		}
		next = int(in.I)
	case OpCallExt:
		if in.Ext == nil || in.Ext.Fn == nil {
			return v.trapf("call into a null external function")
		}
		if err := in.Ext.Fn(v); err != nil {
			return err
		}

	case OpEnter:
		if err := v.pushInt(int64(v.FP)); err != nil {
			return err
		}
		v.FP = v.SP - CellSize
		if v.SP+int(in.I) > len(v.Mem) {
			return v.trapf("stack overflow")
		}
		v.SP += int(in.I)

	case OpRet, OpRetVoid:
		var result uint64
		if in.Op == OpRet {
			var err error
			result, err = v.pop()
			if err != nil {
				return err
			}
		}
		if v.FP-CellSize < v.stackBase {
			return v.trapf("return without a frame")
		}
		retIP := int(int64(v.readCell(v.FP - CellSize)))
		oldFP := int(int64(v.readCell(v.FP)))
		v.SP = v.FP - CellSize - int(in.I)
		v.FP = oldFP
		if retIP < 0 {
			v.Halted = true
			if in.Op == OpRet {
				v.Result = int64(result)
			}
			break
		}
		if in.Op == OpRet {
			if err := v.push(result); err != nil {
				return err
			}
		}
		next = retIP

	case OpDrop:
		if _, err := v.pop(); err != nil {
			return err
		}

	default:
		return v.trapf("illegal opcode %s", in.Op)
	}

	v.IP = next
	return nil
}

// PushKey queues a key code for the get_key builtin.
func (v *VM) PushKey(code int64) {
	v.Keys = append(v.Keys, code)
}
