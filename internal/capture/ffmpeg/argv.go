// Package ffmpeg decodes camera sources with an ffmpeg subprocess that writes
// raw RGBA frames to stdout.
package ffmpeg

import (
	"strconv"
	"strings"
	"time"

	"github.com/edirooss/firewatch-server/pkg/avurl"
)

// Config shapes the decoder output. Every frame is scaled to Width x Height.
type Config struct {
	Binary        string        // ffmpeg executable
	Width         int           //
	Height        int           //
	FPS           int           // output rate; 0 keeps the source rate
	RTSPTransport string        // tcp|udp; empty lets ffmpeg choose
	ReadTimeout   time.Duration // per-frame read bound
	SocketTimeout time.Duration // network I/O timeout passed to ffmpeg
	StopGrace     time.Duration // SIGTERM to SIGKILL escalation
}

func DefaultConfig() Config {
	return Config{
		Binary:        "ffmpeg",
		Width:         1280,
		Height:        720,
		FPS:           10,
		RTSPTransport: "tcp",
		ReadTimeout:   10 * time.Second,
		SocketTimeout: 5 * time.Second,
		StopGrace:     2 * time.Second,
	}
}

// FrameSize is the byte length of one RGBA frame on stdout.
func (c Config) FrameSize() int { return c.Width * c.Height * 4 }

// builder composes an ffmpeg argument vector. Not concurrency-safe.
type builder struct {
	args []string // argv including binary name at index 0
}

func newBuilder(binary string) *builder {
	return &builder{args: []string{binary}}
}

// flag appends a bare flag.
func (b *builder) flag(f string) *builder {
	b.args = append(b.args, f)
	return b
}

// str appends flag and value when the value is non-empty.
func (b *builder) str(f, val string) *builder {
	if val != "" {
		b.args = append(b.args, f, val)
	}
	return b
}

// micros appends flag with d in microseconds when d is positive.
func (b *builder) micros(f string, d time.Duration) *builder {
	if d > 0 {
		b.args = append(b.args, f, strconv.FormatInt(d.Microseconds(), 10))
	}
	return b
}

func (b *builder) argv() []string {
	out := make([]string, len(b.args))
	copy(out, b.args)
	return out
}

// String returns the argv shell-quoted. Credentials in URLs are redacted.
func (b *builder) String() string {
	quoted := make([]string, len(b.args))
	for i, a := range b.args {
		if strings.Contains(a, "://") {
			a = avurl.Redact(a)
		}
		quoted[i] = shQuote(a)
	}
	return strings.Join(quoted, " ")
}

// command builds the decode invocation for url.
func command(cfg Config, url string) *builder {
	b := newBuilder(cfg.Binary).
		flag("-hide_banner").
		str("-loglevel", "error").
		flag("-nostdin")

	if isRTSP(url) {
		b.str("-rtsp_transport", cfg.RTSPTransport).
			micros("-timeout", cfg.SocketTimeout)
	} else {
		b.micros("-rw_timeout", cfg.SocketTimeout)
	}

	b.str("-fflags", "nobuffer").
		str("-flags", "low_delay").
		str("-i", url).
		flag("-an").
		flag("-sn").
		str("-vf", filters(cfg)).
		str("-pix_fmt", "rgba").
		str("-f", "rawvideo").
		flag("pipe:1")
	return b
}

func filters(cfg Config) string {
	f := "scale=" + strconv.Itoa(cfg.Width) + ":" + strconv.Itoa(cfg.Height)
	if cfg.FPS > 0 {
		f += ",fps=" + strconv.Itoa(cfg.FPS)
	}
	return f
}

func isRTSP(url string) bool {
	u := strings.ToLower(url)
	return strings.HasPrefix(u, "rtsp://") || strings.HasPrefix(u, "rtsps://")
}

// shQuote returns a POSIX-safe single-quoted token.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
