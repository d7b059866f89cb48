// Package plotting renders beam patterns and radar profiles to image files.
package plotting

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/rjboer/gophaser/internal/errs"
	"github.com/rjboer/gophaser/internal/fmcw"
	"github.com/rjboer/gophaser/internal/phaser"
)

var (
	sumColor   = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	deltaColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

const (
	width  = 10 * vg.Inch
	height = 5 * vg.Inch
)

// BeamPattern builds a plot of the sum and difference patterns of a sweep
// against steering angle.
func BeamPattern(resp phaser.AngleResponse) (*plot.Plot, error) {
	if len(resp.Points) == 0 {
		return nil, errs.Input("beam pattern has no points")
	}
	sum := make(plotter.XYs, len(resp.Points))
	delta := make(plotter.XYs, len(resp.Points))
	for i, pt := range resp.Points {
		sum[i] = plotter.XY{X: pt.AngleDeg, Y: pt.PowerDB}
		delta[i] = plotter.XY{X: pt.AngleDeg, Y: pt.DeltaDB}
	}

	p := plot.New()
	p.Title.Text = "Beam pattern"
	if resp.RunID != "" {
		p.Title.Text += " " + resp.RunID
	}
	p.X.Label.Text = "Steering angle (deg)"
	p.Y.Label.Text = "Normalized power (dB)"
	p.Add(plotter.NewGrid())

	if err := addLine(p, sum, sumColor, "sum"); err != nil {
		return nil, err
	}
	if err := addLine(p, delta, deltaColor, "delta"); err != nil {
		return nil, err
	}
	if peak, ok := resp.Peak(); ok {
		marker, err := plotter.NewScatter(plotter.XYs{{X: peak.AngleDeg, Y: peak.PowerDB}})
		if err != nil {
			return nil, fmt.Errorf("peak marker: %w", err)
		}
		marker.GlyphStyle.Color = sumColor
		marker.GlyphStyle.Radius = vg.Points(4)
		p.Add(marker)
		p.Legend.Add(fmt.Sprintf("peak %.1f deg", peak.AngleDeg), marker)
	}
	return p, nil
}

// Profile builds a line plot of a range or velocity profile.
func Profile(prof fmcw.Profile, title, xLabel string) (*plot.Plot, error) {
	if len(prof.Values) == 0 || len(prof.Values) != len(prof.Axis) {
		return nil, errs.Shape("profile has %d values over %d axis points", len(prof.Values), len(prof.Axis))
	}
	pts := make(plotter.XYs, len(prof.Values))
	for i := range prof.Values {
		pts[i] = plotter.XY{X: prof.Axis[i], Y: prof.Values[i]}
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Magnitude"
	if prof.DB {
		p.Y.Label.Text = "Magnitude (dB)"
	}
	p.Add(plotter.NewGrid())
	if err := addLine(p, pts, sumColor, ""); err != nil {
		return nil, err
	}
	return p, nil
}

func addLine(p *plot.Plot, pts plotter.XYs, c color.Color, name string) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("line %q: %w", name, err)
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	if name != "" {
		p.Legend.Add(name, line)
	}
	return nil
}

// Save writes p to path; the extension selects the format (png, svg, pdf).
func Save(p *plot.Plot, path string) error {
	switch filepath.Ext(path) {
	case ".png", ".svg", ".pdf", ".jpg", ".jpeg":
	default:
		return errs.Input("unsupported plot format %q", filepath.Ext(path))
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
