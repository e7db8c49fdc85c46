package vision

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// CommandGrabber shells out to the platform screenshot tool. It exists so the
// pipeline has no cgo display dependencies; anything that can produce a PNG
// on disk works.
type CommandGrabber struct {
	dir string
}

func NewCommandGrabber() *CommandGrabber {
	return &CommandGrabber{dir: os.TempDir()}
}

func (g *CommandGrabber) Grab(ctx context.Context) (image.Image, error) {
	path := filepath.Join(g.dir, "sidecoach-frame.png")
	defer os.Remove(path)

	cmd, err := screenshotCommand(ctx, path)
	if err != nil {
		return nil, err
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("screenshot command failed: %w (%s)", err, output)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open captured frame: %w", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode captured frame: %w", err)
	}
	return img, nil
}

func screenshotCommand(ctx context.Context, path string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", path), nil
	case "linux":
		if _, err := exec.LookPath("gnome-screenshot"); err == nil {
			return exec.CommandContext(ctx, "gnome-screenshot", "-f", path), nil
		}
		if _, err := exec.LookPath("scrot"); err == nil {
			return exec.CommandContext(ctx, "scrot", "--overwrite", path), nil
		}
		return nil, fmt.Errorf("no screenshot tool found (tried gnome-screenshot, scrot)")
	default:
		return nil, fmt.Errorf("screen capture not supported on %s", runtime.GOOS)
	}
}
