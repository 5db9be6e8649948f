// Package ffmpeg grabs still frames from video streams with an external
// ffmpeg binary.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Output formats for GetImage.
const (
	ImageJPEG = "mjpeg"
	ImagePNG  = "png"
)

const (
	defaultBinary  = "ffmpeg"
	defaultTimeout = 10 * time.Second
)

// ErrNoInput is returned when no stream URL is available.
var ErrNoInput = errors.New("no input stream")

// ErrEmptyImage is returned when ffmpeg exits cleanly without output.
var ErrEmptyImage = errors.New("ffmpeg produced no image")

// ImageFrame runs ffmpeg to extract a single frame.
type ImageFrame struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an ImageFrame.
type Option func(*ImageFrame)

// WithTimeout bounds one grab, independent of the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(f *ImageFrame) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *ImageFrame) { f.logger = l }
}

// NewImageFrame creates a grabber for binary (default "ffmpeg").
func NewImageFrame(binary string, opts ...Option) *ImageFrame {
	if binary == "" {
		binary = defaultBinary
	}
	f := &ImageFrame{
		binary:  binary,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Binary returns the ffmpeg executable in use.
func (f *ImageFrame) Binary() string { return f.binary }

// GetImage returns one frame of input encoded as format.
//
// The ffmpeg process runs under its own timeout and is not killed when ctx
// ends: the caller gets ctx.Err() right away while the process finishes and
// is reaped in the background.
func (f *ImageFrame) GetImage(ctx context.Context, input, format string) ([]byte, error) {
	if input == "" {
		return nil, ErrNoInput
	}
	if format == "" {
		format = ImageJPEG
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	go func() {
		defer cancel()
		data, err := f.run(runCtx, BuildImageArgs(input, format))
		done <- result{data, err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		f.logger.Debug("Frame grab abandoned by caller, letting ffmpeg finish")
		return nil, ctx.Err()
	}
}

func (f *ImageFrame) run(ctx context.Context, args []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	f.logger.Debug("ffmpeg frame grab finished", "duration", time.Since(start), "bytes", stdout.Len())

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("ffmpeg timed out after %s", f.timeout)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg failed: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, ErrEmptyImage
	}
	return stdout.Bytes(), nil
}

// BuildImageArgs returns the ffmpeg arguments for a single frame grab.
func BuildImageArgs(input, format string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if strings.HasPrefix(input, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	return append(args,
		"-i", input,
		"-an",
		"-frames:v", "1",
		"-c:v", format,
		"-f", "image2pipe",
		"-",
	)
}
