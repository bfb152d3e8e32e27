package vm

import (
	"image"
	"image/png"
	"os"
)

const (
	FrameWidth  = 128
	FrameHeight = 128
)

// palette is the Pico-8-inspired 16-color palette used by the framebuffer
// builtins; entries are 8-bit RGB.
var palette = [16][3]byte{
	{0x00, 0x00, 0x00}, // 0  Black
	{0x1D, 0x2B, 0x53}, // 1  Dark Blue
	{0x7E, 0x25, 0x53}, // 2  Dark Purple
	{0x00, 0x87, 0x51}, // 3  Dark Green
	{0xAB, 0x52, 0x36}, // 4  Brown
	{0x5F, 0x57, 0x4F}, // 5  Dark Gray
	{0xC2, 0xC3, 0xC7}, // 6  Light Gray
	{0xFF, 0xF1, 0xE8}, // 7  White
	{0xFF, 0x00, 0x4D}, // 8  Red
	{0xFF, 0xA3, 0x00}, // 9  Orange
	{0xFF, 0xEC, 0x27}, // 10 Yellow
	{0x00, 0xE4, 0x36}, // 11 Green
	{0x29, 0xAD, 0xFF}, // 12 Blue
	{0x83, 0x76, 0x9C}, // 13 Indigo
	{0xFF, 0x77, 0xA8}, // 14 Pink
	{0xFF, 0xCC, 0xAA}, // 15 Peach
}

// SetPixel writes one palette index into the framebuffer. Out-of-range
// coordinates are ignored; the color is masked to the 16-entry palette.
func (v *VM) SetPixel(x, y, color int64) {
	if x < 0 || x >= FrameWidth || y < 0 || y >= FrameHeight {
		return
	}
	v.Framebuffer[y*FrameWidth+x] = byte(color) & 0xF
}

// ClearFramebuffer fills the whole framebuffer with one palette index.
func (v *VM) ClearFramebuffer(color int64) {
	c := byte(color) & 0xF
	for i := range v.Framebuffer {
		v.Framebuffer[i] = c
	}
}

// FramebufferRGBA decodes the framebuffer into a 128×128 RGBA8888 byte
// slice (length 128*128*4), ready for a display to blit.
func (v *VM) FramebufferRGBA() []byte {
	pixels := make([]byte, FrameWidth*FrameHeight*4)
	for i, idx := range v.Framebuffer {
		c := palette[idx&0xF]
		pixels[i*4+0] = c[0]
		pixels[i*4+1] = c[1]
		pixels[i*4+2] = c[2]
		pixels[i*4+3] = 0xFF
	}
	return pixels
}

// FramebufferImage returns the framebuffer as an *image.RGBA.
func (v *VM) FramebufferImage() *image.RGBA {
	return &image.RGBA{
		Pix:    v.FramebufferRGBA(),
		Stride: FrameWidth * 4,
		Rect:   image.Rect(0, 0, FrameWidth, FrameHeight),
	}
}

// SaveScreenshot encodes the framebuffer as a PNG and writes it to filename.
func (v *VM) SaveScreenshot(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, v.FramebufferImage())
}
