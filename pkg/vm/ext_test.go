package vm

import (
	"bytes"
	"strings"
	"testing"
)

// callExt runs a single external function against a fresh machine with the
// given cells pre-pushed.
func callExt(t *testing.T, ext *ExtFn, input string, args ...int64) (*VM, string) {
	t.Helper()
	v := New(buildProgram(0, Instr{Op: OpEnter}, Instr{Op: OpRet}))
	var out bytes.Buffer
	v.Output = &out
	if input != "" {
		v.Input = strings.NewReader(input)
	}
	for _, a := range args {
		if err := v.pushInt(a); err != nil {
			t.Fatal(err)
		}
	}
	if err := ext.Fn(v); err != nil {
		t.Fatalf("%s failed: %v", ext.Name, err)
	}
	return v, out.String()
}

func TestPutIAndPutC(t *testing.T) {
	if _, out := callExt(t, PutI, "", -7); out != "-7" {
		t.Errorf("put_i wrote %q, want -7", out)
	}
	if _, out := callExt(t, PutC, "", 'z'); out != "z" {
		t.Errorf("put_c wrote %q, want z", out)
	}
}

func TestPutD(t *testing.T) {
	v := New(buildProgram(0, Instr{Op: OpEnter}, Instr{Op: OpRet}))
	var out bytes.Buffer
	v.Output = &out
	if err := v.pushFloat(1.25); err != nil {
		t.Fatal(err)
	}
	if err := PutD.Fn(v); err != nil {
		t.Fatalf("put_d failed: %v", err)
	}
	if out.String() != "1.25" {
		t.Errorf("put_d wrote %q, want 1.25", out.String())
	}
}

func TestGetI(t *testing.T) {
	v, _ := callExt(t, GetI, "  123 ")
	got, err := v.popInt()
	if err != nil {
		t.Fatal(err)
	}
	if got != 123 {
		t.Errorf("get_i pushed %d, want 123", got)
	}
}

func TestGetIBadInput(t *testing.T) {
	v := New(buildProgram(0, Instr{Op: OpEnter}, Instr{Op: OpRet}))
	v.Input = strings.NewReader("zzz")
	if err := GetI.Fn(v); err == nil {
		t.Errorf("get_i accepted non-numeric input")
	}
}

func TestPutSAndGetS(t *testing.T) {
	v := New(buildProgram(0, Instr{Op: OpEnter}, Instr{Op: OpRet}))
	var out bytes.Buffer
	v.Output = &out
	v.Input = strings.NewReader("hello\n")

	// read a line into the scratch cell at address 8
	if err := v.pushInt(8); err != nil {
		t.Fatal(err)
	}
	if err := GetS.Fn(v); err != nil {
		t.Fatalf("get_s failed: %v", err)
	}
	if string(v.Mem[8:13]) != "hello" || v.Mem[13] != 0 {
		t.Fatalf("get_s stored %q", v.Mem[8:14])
	}

	if err := v.pushInt(8); err != nil {
		t.Fatal(err)
	}
	if err := PutS.Fn(v); err != nil {
		t.Fatalf("put_s failed: %v", err)
	}
	if out.String() != "hello" {
		t.Errorf("put_s wrote %q, want hello", out.String())
	}
}

func TestExitHaltsWithResult(t *testing.T) {
	v, _ := callExt(t, Exit, "", 5)
	if !v.Halted || v.Result != 5 {
		t.Errorf("exit: halted=%v result=%d, want halted with 5", v.Halted, v.Result)
	}
}

func TestSecondsIsNonNegative(t *testing.T) {
	v, _ := callExt(t, Seconds, "")
	got, err := v.popFloat()
	if err != nil {
		t.Fatal(err)
	}
	if got < 0 {
		t.Errorf("seconds() = %g, want >= 0", got)
	}
}

func TestPutPixelPopsAllThreeArgs(t *testing.T) {
	v, _ := callExt(t, PutPixel, "", 2, 3, 9)
	if v.Framebuffer[3*FrameWidth+2] != 9 {
		t.Errorf("pixel (2,3) = %d, want 9", v.Framebuffer[3*FrameWidth+2])
	}
	if v.SP != v.stackBase+CellSize { // only the entry sentinel remains
		t.Errorf("SP = %d, want %d", v.SP, v.stackBase+CellSize)
	}
}
