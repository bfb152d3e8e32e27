package vm

import (
	"fmt"
	"time"
)

// The builtin external functions. Each pops its arguments from the stack
// (last argument first, mirroring the caller's left-to-right pushes) and
// pushes at most one result. The compiler installs these as FN symbols in
// the global domain before parsing, so they go through normal type checking.

var PutI = &ExtFn{Name: "put_i", Fn: func(v *VM) error {
	x, err := v.popInt()
	if err != nil {
		return err
	}
	fmt.Fprintf(v.outputSink(), "%d", x)
	return nil
}}

var GetI = &ExtFn{Name: "get_i", Fn: func(v *VM) error {
	var x int64
	if _, err := fmt.Fscan(v.inputSource(), &x); err != nil {
		return v.trapf("get_i: %v", err)
	}
	return v.pushInt(x)
}}

var PutD = &ExtFn{Name: "put_d", Fn: func(v *VM) error {
	x, err := v.popFloat()
	if err != nil {
		return err
	}
	fmt.Fprintf(v.outputSink(), "%g", x)
	return nil
}}

var GetD = &ExtFn{Name: "get_d", Fn: func(v *VM) error {
	var x float64
	if _, err := fmt.Fscan(v.inputSource(), &x); err != nil {
		return v.trapf("get_d: %v", err)
	}
	return v.pushFloat(x)
}}

var PutC = &ExtFn{Name: "put_c", Fn: func(v *VM) error {
	x, err := v.popInt()
	if err != nil {
		return err
	}
	fmt.Fprintf(v.outputSink(), "%c", rune(x))
	return nil
}}

var GetC = &ExtFn{Name: "get_c", Fn: func(v *VM) error {
	b, err := v.inputSource().ReadByte()
	if err != nil {
		return v.trapf("get_c: %v", err)
	}
	return v.pushInt(int64(b))
}}

var PutS = &ExtFn{Name: "put_s", Fn: func(v *VM) error {
	addr, err := v.popInt()
	if err != nil {
		return err
	}
	if err := v.checkAddr(addr, 1); err != nil {
		return err
	}
	end := int(addr)
	for end < len(v.Mem) && v.Mem[end] != 0 {
		end++
	}
	v.outputSink().Write(v.Mem[addr:end])
	return nil
}}

var GetS = &ExtFn{Name: "get_s", Fn: func(v *VM) error {
	addr, err := v.popInt()
	if err != nil {
		return err
	}
	if err := v.checkAddr(addr, 1); err != nil {
		return err
	}
	line, err := v.inputSource().ReadString('\n')
	if err != nil && line == "" {
		return v.trapf("get_s: %v", err)
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	if int(addr)+len(line)+1 > len(v.Mem) {
		return v.trapf("get_s: buffer past end of memory")
	}
	copy(v.Mem[addr:], line)
	v.Mem[int(addr)+len(line)] = 0
	return nil
}}

var Seconds = &ExtFn{Name: "seconds", Fn: func(v *VM) error {
	return v.pushFloat(time.Since(v.start).Seconds())
}}

var Exit = &ExtFn{Name: "exit", Fn: func(v *VM) error {
	x, err := v.popInt()
	if err != nil {
		return err
	}
	v.Halted = true
	v.Result = x
	return nil
}}

var PutPixel = &ExtFn{Name: "put_pixel", Fn: func(v *VM) error {
	c, err := v.popInt()
	if err != nil {
		return err
	}
	y, err := v.popInt()
	if err != nil {
		return err
	}
	x, err := v.popInt()
	if err != nil {
		return err
	}
	v.SetPixel(x, y, c)
	return nil
}}

var ClearScreen = &ExtFn{Name: "clear_screen", Fn: func(v *VM) error {
	c, err := v.popInt()
	if err != nil {
		return err
	}
	v.ClearFramebuffer(c)
	return nil
}}

var GetKey = &ExtFn{Name: "get_key", Fn: func(v *VM) error {
	var code int64
	if len(v.Keys) > 0 {
		code = v.Keys[0]
		v.Keys = v.Keys[1:]
	}
	return v.pushInt(code)
}}
