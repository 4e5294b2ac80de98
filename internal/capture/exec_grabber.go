package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"time"
)

// ExecGrabber captures the screen by running an external screenshot command
// that writes a single PNG to stdout (e.g. grim, maim, ImageMagick import).
// The command only reads the display.
type ExecGrabber struct {
	argv    []string
	timeout time.Duration
}

// NewExecGrabber validates and wraps a screenshot command.
func NewExecGrabber(argv []string, timeout time.Duration) (*ExecGrabber, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("grab command is empty")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ExecGrabber{argv: argv, timeout: timeout}, nil
}

// Grab runs the screenshot command and decodes its PNG output.
func (g *ExecGrabber) Grab(ctx context.Context) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.argv[0], g.argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (stderr: %s)", g.argv[0], err, bytes.TrimSpace(stderr.Bytes()))
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}
