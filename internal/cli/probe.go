package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/edirooss/firewatch-server/internal/domain/camera"
	"github.com/edirooss/firewatch-server/internal/stream"
	"github.com/edirooss/firewatch-server/pkg/avurl"
)

type probeOptions struct {
	frames  int
	timeout time.Duration
	dump    bool
}

// probeReport is what a probe learned about one source.
type probeReport struct {
	Target      string
	OpenLatency time.Duration
	Frames      int
	Width       int
	Height      int
	FirstFrame  time.Duration // open to first frame
	AvgInterval time.Duration // between frames after the first
	Err         error
}

func newProbeCommand(cfgFile *string) *cobra.Command {
	var opts probeOptions
	cmd := &cobra.Command{
		Use:   "probe <camera-id|url>",
		Short: "Open a camera once and report frames and latency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgFile)
			if err != nil {
				return err
			}
			defer a.close()

			ep, err := a.resolveProbeTarget(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			opener, err := newOpener(a.log, a.cfg.Source)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			report := probe(ctx, opener, ep, opts.frames)
			printProbeReport(cmd.OutOrStdout(), report, opts.dump)
			return report.Err
		},
	}
	cmd.Flags().IntVarP(&opts.frames, "frames", "n", 10, "frames to read")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall probe deadline")
	cmd.Flags().BoolVar(&opts.dump, "dump", false, "dump the full report")
	return cmd
}

// resolveProbeTarget accepts a camera id from the directory or a source URL.
func (a *app) resolveProbeTarget(ctx context.Context, arg string) (camera.Endpoint, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		r, err := a.openRepo(ctx)
		if err != nil {
			return camera.Endpoint{}, err
		}
		c, err := r.Cameras.GetByID(ctx, id)
		if err != nil {
			return camera.Endpoint{}, err
		}
		return c.Endpoint()
	}
	if _, err := avurl.ParseSource(arg); err != nil {
		return camera.Endpoint{}, fmt.Errorf("invalid source url: %w", err)
	}
	return camera.Endpoint{Name: "probe", URL: arg}, nil
}

func probe(ctx context.Context, opener stream.Opener, ep camera.Endpoint, frames int) probeReport {
	rep := probeReport{Target: ep.Redacted()}

	start := time.Now()
	src, err := opener.Open(ctx, ep.URL)
	rep.OpenLatency = time.Since(start)
	if err != nil {
		rep.Err = fmt.Errorf("open: %w", err)
		return rep
	}
	defer src.Close()

	var first, last time.Time
	for rep.Frames < frames {
		f, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w after %d frames", stream.ErrReadTimeout, rep.Frames)
			}
			rep.Err = fmt.Errorf("read: %w", err)
			break
		}
		now := time.Now()
		if rep.Frames == 0 {
			first = now
			rep.FirstFrame = now.Sub(start)
			b := f.Image.Bounds()
			rep.Width, rep.Height = b.Dx(), b.Dy()
		}
		last = now
		rep.Frames++
	}
	if rep.Frames > 1 {
		rep.AvgInterval = last.Sub(first) / time.Duration(rep.Frames-1)
	}
	return rep
}

func printProbeReport(w io.Writer, rep probeReport, dump bool) {
	if dump {
		spew.Fdump(w, rep)
		return
	}
	fmt.Fprintf(w, "source:       %s\n", rep.Target)
	fmt.Fprintf(w, "open:         %v\n", rep.OpenLatency.Round(time.Millisecond))
	fmt.Fprintf(w, "frames:       %d\n", rep.Frames)
	if rep.Frames > 0 {
		fmt.Fprintf(w, "size:         %dx%d\n", rep.Width, rep.Height)
		fmt.Fprintf(w, "first frame:  %v\n", rep.FirstFrame.Round(time.Millisecond))
	}
	if rep.AvgInterval > 0 {
		fmt.Fprintf(w, "avg interval: %v (%.1f fps)\n", rep.AvgInterval.Round(time.Millisecond), float64(time.Second)/float64(rep.AvgInterval))
	}
	if rep.Err != nil {
		fmt.Fprintf(w, "error:        %v\n", rep.Err)
	}
}

