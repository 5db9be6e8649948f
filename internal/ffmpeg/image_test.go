package ffmpeg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func fakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildImageArgs(t *testing.T) {
	got := BuildImageArgs("rtsp://cu:cp@10.0.0.5:554", ImageJPEG)
	want := []string{
		"-hide_banner", "-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-i", "rtsp://cu:cp@10.0.0.5:554",
		"-an", "-frames:v", "1", "-c:v", "mjpeg", "-f", "image2pipe", "-",
	}
	if !slices.Equal(got, want) {
		t.Errorf("args =\n%v\nwant\n%v", got, want)
	}

	file := BuildImageArgs("/tmp/clip.mp4", ImagePNG)
	if slices.Contains(file, "-rtsp_transport") {
		t.Error("rtsp transport flag only applies to rtsp inputs")
	}
}

func TestGetImageReturnsStdout(t *testing.T) {
	bin := fakeFFmpeg(t, "printf 'JPEGDATA'\n")
	f := NewImageFrame(bin, WithLogger(quietLogger()))

	data, err := f.GetImage(context.Background(), "rtsp://x", ImageJPEG)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "JPEGDATA" {
		t.Errorf("data = %q", data)
	}
}

func TestGetImageEmptyInput(t *testing.T) {
	f := NewImageFrame("", WithLogger(quietLogger()))
	if _, err := f.GetImage(context.Background(), "", ImageJPEG); !errors.Is(err, ErrNoInput) {
		t.Errorf("err = %v, want ErrNoInput", err)
	}
	if f.Binary() != "ffmpeg" {
		t.Errorf("Binary() = %q, want default", f.Binary())
	}
}

func TestGetImageIncludesStderr(t *testing.T) {
	bin := fakeFFmpeg(t, "echo 'Connection refused' >&2\nexit 1\n")
	f := NewImageFrame(bin, WithLogger(quietLogger()))

	_, err := f.GetImage(context.Background(), "rtsp://x", ImageJPEG)
	if err == nil || !strings.Contains(err.Error(), "Connection refused") {
		t.Errorf("err = %v, want stderr in message", err)
	}
}

func TestGetImageNoOutput(t *testing.T) {
	bin := fakeFFmpeg(t, "exit 0\n")
	f := NewImageFrame(bin, WithLogger(quietLogger()))

	if _, err := f.GetImage(context.Background(), "rtsp://x", ImageJPEG); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("err = %v, want ErrEmptyImage", err)
	}
}

func TestGetImageOwnTimeout(t *testing.T) {
	bin := fakeFFmpeg(t, "sleep 5\n")
	f := NewImageFrame(bin, WithTimeout(100*time.Millisecond), WithLogger(quietLogger()))

	start := time.Now()
	_, err := f.GetImage(context.Background(), "rtsp://x", ImageJPEG)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want timeout", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout did not stop the process")
	}
}

func TestGetImageShieldedFromCaller(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "finished")
	bin := fakeFFmpeg(t, "sleep 0.2\ntouch "+marker+"\nprintf 'X'\n")
	f := NewImageFrame(bin, WithLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := f.GetImage(ctx, "rtsp://x", ImageJPEG); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want caller deadline", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(marker); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("ffmpeg was killed when the caller gave up")
}
