package main

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.org/x/image/draw"

	"microc/pkg/compiler"
	"microc/pkg/vm"
)

// stepsPerFrame bounds how much of the program runs between two rendered
// frames, so drawing programs animate instead of finishing invisibly.
const stepsPerFrame = 10000

const screenScale = 2

type Game struct {
	vm       *vm.VM
	frame    *ebiten.Image // reused 128×128 bitmap canvas
	runErr   error
	finished bool
}

func (g *Game) Update() error {
	for _, r := range ebiten.AppendInputChars(nil) {
		g.vm.PushKey(int64(r))
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		g.vm.PushKey(10) // ASCII newline
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		g.vm.PushKey(8) // ASCII backspace
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		if err := saveScaledScreenshot(g.vm, "screenshot.png"); err != nil {
			fmt.Printf("[Screenshot] Save failed: %v\n", err)
		} else {
			fmt.Println("[Screenshot] Saved to screenshot.png")
		}
	}

	for i := 0; i < stepsPerFrame; i++ {
		if g.vm.Halted || g.runErr != nil {
			break
		}
		g.runErr = g.vm.Step()
	}
	if g.vm.Halted && !g.finished {
		g.finished = true
		fmt.Printf("program finished with result %d\n", g.vm.Result)
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.frame == nil {
		g.frame = ebiten.NewImage(vm.FrameWidth, vm.FrameHeight)
	}
	g.frame.WritePixels(g.vm.FramebufferRGBA())

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(screenScale, screenScale)
	screen.DrawImage(g.frame, op)

	if g.runErr != nil {
		ebitenutil.DebugPrint(screen, g.runErr.Error())
	} else if g.vm.Halted {
		ebitenutil.DebugPrint(screen, fmt.Sprintf("finished: %d", g.vm.Result))
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return vm.FrameWidth * screenScale, vm.FrameHeight * screenScale
}

// saveScaledScreenshot writes the framebuffer as a PNG at display scale.
func saveScaledScreenshot(v *vm.VM, filename string) error {
	src := v.FramebufferImage()
	dst := image.NewRGBA(image.Rect(0, 0, vm.FrameWidth*screenScale, vm.FrameHeight*screenScale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, dst)
}

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: display <file.c>")
	}
	filename := os.Args[1]

	sourceBytes, err := os.ReadFile(filename)
	if err != nil {
		log.Fatalf("Failed to read source file: %v", err)
	}

	prog, err := compiler.Compile(string(sourceBytes), filepath.Dir(filename))
	if err != nil {
		log.Fatalf("Compilation failed: %v", err)
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(vm.FrameWidth*2*screenScale, vm.FrameHeight*2*screenScale)
	ebiten.SetWindowTitle("microc display")

	game := &Game{vm: vm.New(prog)}
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
