package vm

import "testing"

func TestSetPixel(t *testing.T) {
	v := New(buildProgram(0, Instr{Op: OpEnter}, Instr{Op: OpPushI}, Instr{Op: OpRet}))

	v.SetPixel(0, 0, 7)
	v.SetPixel(127, 127, 8)
	v.SetPixel(5, 1, 0x1F) // masked to palette index 15
	if v.Framebuffer[0] != 7 {
		t.Errorf("pixel (0,0) = %d, want 7", v.Framebuffer[0])
	}
	if v.Framebuffer[127*FrameWidth+127] != 8 {
		t.Errorf("pixel (127,127) = %d, want 8", v.Framebuffer[127*FrameWidth+127])
	}
	if v.Framebuffer[FrameWidth+5] != 15 {
		t.Errorf("pixel (5,1) = %d, want 15", v.Framebuffer[FrameWidth+5])
	}

	// out-of-range writes are ignored
	v.SetPixel(-1, 0, 3)
	v.SetPixel(0, FrameHeight, 3)
	v.SetPixel(FrameWidth, 0, 3)
}

func TestClearFramebuffer(t *testing.T) {
	v := New(buildProgram(0, Instr{Op: OpEnter}, Instr{Op: OpPushI}, Instr{Op: OpRet}))
	v.ClearFramebuffer(12)
	for i, c := range v.Framebuffer {
		if c != 12 {
			t.Fatalf("framebuffer[%d] = %d, want 12", i, c)
		}
	}
}

func TestFramebufferRGBA(t *testing.T) {
	v := New(buildProgram(0, Instr{Op: OpEnter}, Instr{Op: OpPushI}, Instr{Op: OpRet}))
	v.SetPixel(1, 0, 7) // white
	pix := v.FramebufferRGBA()
	if len(pix) != FrameWidth*FrameHeight*4 {
		t.Fatalf("RGBA length = %d, want %d", len(pix), FrameWidth*FrameHeight*4)
	}
	// pixel 0 is palette entry 0: black, opaque
	if pix[0] != 0 || pix[1] != 0 || pix[2] != 0 || pix[3] != 0xFF {
		t.Errorf("pixel 0 = %v, want opaque black", pix[0:4])
	}
	// pixel 1 is palette entry 7
	if pix[4] != 0xFF || pix[5] != 0xF1 || pix[6] != 0xE8 || pix[7] != 0xFF {
		t.Errorf("pixel 1 = %v, want the white palette entry", pix[4:8])
	}
}

func TestFramebufferImage(t *testing.T) {
	v := New(buildProgram(0, Instr{Op: OpEnter}, Instr{Op: OpPushI}, Instr{Op: OpRet}))
	img := v.FramebufferImage()
	if got := img.Bounds().Dx(); got != FrameWidth {
		t.Errorf("image width = %d, want %d", got, FrameWidth)
	}
	if got := img.Bounds().Dy(); got != FrameHeight {
		t.Errorf("image height = %d, want %d", got, FrameHeight)
	}
}
