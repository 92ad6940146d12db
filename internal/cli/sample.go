package cli

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"strconv"

	"github.com/alitto/pond"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/swatchwise/internal/agent"
	"github.com/jmylchreest/swatchwise/internal/bitmap"
	"github.com/jmylchreest/swatchwise/internal/catalog"
	"github.com/jmylchreest/swatchwise/internal/sampler"
	httputil "github.com/jmylchreest/swatchwise/internal/util/http"
)

type sampleOptions struct {
	points   pointsValue
	viewport viewportValue
	format   string
	workers  int
}

func newSampleCmd(a *app) *cobra.Command {
	var opts sampleOptions

	cmd := &cobra.Command{
		Use:   "sample <image>",
		Short: "Identify colours at positions of a screenshot",
		Long: `Sample a screenshot at one or more viewport positions and identify the
colours found there.

The image may be a file, an http(s) URL or a data URL. Positions are given in
viewport coordinates; the viewport defaults to the image size, so positions
are then plain pixel coordinates. A capture taken on a high-density display
is sampled correctly by passing the CSS viewport size with --viewport.

Examples:
  # Colour at pixel 10,20 of a screenshot
  swatchwise sample capture.png --at 10,20

  # Several positions of a 2x capture of a 1280x720 viewport
  swatchwise sample capture.png --viewport 1280x720 --at 100,100 --at 640,360

  # Sample a remote image as JSON
  swatchwise sample https://example.com/swatch.png --at 0,0 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSample(cmd, args[0], opts)
		},
	}

	cmd.Flags().Var(&opts.points, "at", "viewport position x,y to sample (repeatable)")
	cmd.Flags().Var(&opts.viewport, "viewport", "viewport size WxH the image was captured from (default: image size)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatText, "output format: text or json")
	cmd.Flags().IntVar(&opts.workers, "workers", runtime.NumCPU(), "number of parallel samples")

	return cmd
}

// sampleResult is the identification at one position.
type sampleResult struct {
	X              float64               `json:"x"`
	Y              float64               `json:"y"`
	Error          string                `json:"error,omitempty"`
	Identification *agent.Identification `json:"identification,omitempty"`
}

func (a *app) runSample(cmd *cobra.Command, ref string, opts sampleOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}
	if len(opts.points) == 0 {
		return errors.New("at least one --at position is required")
	}

	smp, err := a.newSampler()
	if err != nil {
		return err
	}
	cat, err := a.loadCatalog(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	img, err := bitmap.Load(cmd.Context(), ref, httputil.FetchOptions{AllowInsecure: a.cfg.Catalog.AllowInsecure})
	if err != nil {
		return err
	}

	vp := sampler.Viewport(opts.viewport)
	if vp.Width == 0 && vp.Height == 0 {
		b := img.Bounds()
		vp = sampler.Viewport{Width: float64(b.Dx()), Height: float64(b.Dy())}
	}
	a.logger.Debug("sampling", "image", ref, "viewport", opts.viewport.String(), "points", len(opts.points))

	results := sampleAll(smp, cat, img, opts.points, vp, opts.workers, a.logger)

	out := cmd.OutOrStdout()
	if opts.format == formatJSON {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		ansi := a.ansi(out)
		table := NewTable([]string{"At", "", "Colour", "Name", "Seasons", "Reading"})
		table.SetColumnMaxWidth(4, 48)
		for _, r := range results {
			at := formatPoint(sampler.Point{X: r.X, Y: r.Y})
			if r.Identification == nil {
				table.AddRow([]string{at, "", "error", r.Error})
				continue
			}
			ident := r.Identification
			row := []string{at, swatch(ident.RGBA.RGB(), ansi), ident.RGBA.RGB().Hex() + " a=" + strconv.FormatFloat(ident.RGBA.Opacity(), 'f', 2, 64)}
			row = append(row, identMatch(ident.Name, catalog.KindNames), identMatch(ident.Seasons, catalog.KindSeasons))
			d := ident.Description
			row = append(row, d.Hue+", "+d.Saturation+", "+d.Value)
			table.AddRow(row)
		}
		if err := table.Write(out); err != nil {
			return err
		}
	}

	for _, r := range results {
		if r.Error != "" {
			return errors.New("some positions could not be sampled")
		}
	}
	return nil
}

// sampleAll samples every point on a bounded worker pool. Results keep the point order.
func sampleAll(smp *sampler.Sampler, cat *catalog.Catalog, img image.Image, points []sampler.Point, vp sampler.Viewport, workers int, logger hclog.Logger) []sampleResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]sampleResult, len(points))
	pool := pond.New(workers, len(points), pond.MinWorkers(1), pond.PanicHandler(func(p interface{}) {
		logger.Error("sample task panicked", "panic", p)
	}))

	for i, pt := range points {
		pool.Submit(func() {
			r := sampleResult{X: pt.X, Y: pt.Y}
			px, err := smp.SamplePoint(img, pt, vp)
			if err != nil {
				r.Error = err.Error()
			} else {
				ident := agent.Describe(cat, px)
				r.Identification = &ident
			}
			results[i] = r
		})
	}
	pool.StopAndWait()

	return results
}
