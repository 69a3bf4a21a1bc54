package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/stream"
)

func TestReadFrame(t *testing.T) {
	raw := bytes.Repeat([]byte{1, 2, 3, 255}, 4*2*2)
	r := bytes.NewReader(raw)

	for i := 0; i < 2; i++ {
		img, err := readFrame(r, 4, 2)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
			t.Fatalf("bounds = %v", img.Bounds())
		}
		if c := img.RGBAAt(3, 1); c.R != 1 || c.G != 2 || c.B != 3 || c.A != 255 {
			t.Errorf("pixel = %+v", c)
		}
	}
	if _, err := readFrame(r, 4, 2); !errors.Is(err, io.EOF) {
		t.Errorf("third read err = %v, want EOF", err)
	}
	if _, err := readFrame(bytes.NewReader(raw[:5]), 4, 2); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short read err = %v, want ErrUnexpectedEOF", err)
	}
}

// fakeDecoder writes a shell script standing in for ffmpeg. It ignores argv.
func fakeDecoder(t *testing.T, body string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOpener(t *testing.T, binary string, readTimeout time.Duration) *Opener {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Binary = binary
	cfg.Width, cfg.Height = 16, 8
	cfg.ReadTimeout = readTimeout
	cfg.StopGrace = 500 * time.Millisecond
	o, err := NewOpener(zap.NewNop(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestSourceReadsFramesUntilEndOfStream(t *testing.T) {
	// three 16x8 RGBA frames, then exit
	bin := fakeDecoder(t, "head -c 1536 /dev/zero\necho 'Stream ends' >&2")
	src, err := testOpener(t, bin, 2*time.Second).Open(context.Background(), "rtsp://10.0.0.1/live")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	for i := 0; i < 3; i++ {
		f, err := src.Read(context.Background())
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if f.Image.Bounds().Dx() != 16 || f.Timestamp.IsZero() {
			t.Fatalf("frame %d = %+v", i, f)
		}
	}
	_, err = src.Read(context.Background())
	if !errors.Is(err, stream.ErrEndOfStream) {
		t.Fatalf("err = %v, want ErrEndOfStream", err)
	}
}

func TestSourceUnreachableWhenDecoderExitsEarly(t *testing.T) {
	bin := fakeDecoder(t, "echo 'Connection refused' >&2\nexit 1")
	src, err := testOpener(t, bin, 2*time.Second).Open(context.Background(), "rtsp://10.0.0.1/live")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	_, err = src.Read(context.Background())
	if !errors.Is(err, stream.ErrSourceUnreachable) {
		t.Fatalf("err = %v, want ErrSourceUnreachable", err)
	}
	if !bytes.Contains([]byte(err.Error()), []byte("Connection refused")) {
		t.Errorf("stderr not attached: %v", err)
	}
}

func TestSourceReadTimeout(t *testing.T) {
	bin := fakeDecoder(t, "exec sleep 30")
	src, err := testOpener(t, bin, 100*time.Millisecond).Open(context.Background(), "rtsp://10.0.0.1/live")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err = src.Read(context.Background())
	if !errors.Is(err, stream.ErrReadTimeout) || !errors.Is(err, stream.ErrSourceUnreachable) {
		t.Fatalf("err = %v, want ErrReadTimeout", err)
	}
	if took := time.Since(start); took > time.Second {
		t.Errorf("timeout took %v", took)
	}

	start = time.Now()
	if err := src.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Errorf("Close took %v", took)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSourceReadHonorsContext(t *testing.T) {
	bin := fakeDecoder(t, "exec sleep 30")
	src, err := testOpener(t, bin, 0).Open(context.Background(), "rtsp://10.0.0.1/live")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := src.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestOpenMissingBinary(t *testing.T) {
	o := testOpener(t, filepath.Join(t.TempDir(), "no-such-ffmpeg"), time.Second)
	_, err := o.Open(context.Background(), "rtsp://10.0.0.1/live")
	if !errors.Is(err, stream.ErrSourceUnreachable) {
		t.Errorf("err = %v, want ErrSourceUnreachable", err)
	}
}

func TestNewOpenerRejectsBadSize(t *testing.T) {
	if _, err := NewOpener(zap.NewNop(), Config{Width: 0, Height: 10}); err == nil {
		t.Error("expected error for zero width")
	}
}
