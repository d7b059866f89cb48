package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rjboer/gophaser/internal/fmcw"
	"github.com/rjboer/gophaser/internal/mdns"
	"github.com/rjboer/gophaser/internal/phaser"
)

var (
	colorAccent = lipgloss.Color("#00CC33")
	colorDim    = lipgloss.Color("#6C6C6C")
	colorWarn   = lipgloss.Color("#FFAA00")

	styleTitle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(18)

	styleValue = lipgloss.NewStyle().
			Bold(true)

	styleWarn = lipgloss.NewStyle().
			Foreground(colorWarn)

	styleCell = lipgloss.NewStyle().
			Width(10).
			Align(lipgloss.Right)

	styleHeader = styleCell.
			Foreground(colorAccent).
			Bold(true)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
)

func kv(label string, format string, args ...any) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, styleLabel.Render(label), styleValue.Render(fmt.Sprintf(format, args...)))
}

func renderDetection(target fmcw.Target, res fmcw.Result, p fmcw.RadarParameters) string {
	lines := []string{
		styleTitle.Render("FMCW detection"),
		kv("target", "%.2f m, %.2f m/s", target.Range0, target.Velocity),
		kv("range", "%.2f m", res.DetectedRange),
		kv("velocity", "%.2f m/s", res.DetectedVelocity),
		kv("range SNR", "%.1f dB", res.RangeSNR),
		kv("resolution", "%.3f m, %.3f m/s", p.RangeResolution(), p.VelocityResolution()),
		kv("max velocity", "%.2f m/s", p.MaxVelocity()),
	}
	return styleBox.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderCalibration(vec phaser.CalibrationVector) string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		styleHeader.Render("element"),
		styleHeader.Render("channel"),
		styleHeader.Render("gain"),
		styleHeader.Render("phase"),
	)
	rows := []string{styleTitle.Render("Calibration " + vec.RunID), header}
	for i := 0; i < phaser.NumElements; i++ {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			styleCell.Render(fmt.Sprint(i)),
			styleCell.Render(fmt.Sprint(phaser.ChannelOf(i))),
			styleCell.Render(fmt.Sprintf("%.4f", vec.Gain[i])),
			styleCell.Render(fmt.Sprintf("%.2f", vec.Phase[i])),
		))
	}
	rows = append(rows, "",
		kv("channel 0", "%+.2f dB", vec.Channel[0]),
		kv("channel 1", "%+.2f dB", vec.Channel[1]),
	)
	return styleBox.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// sparkline maps normalized powers onto block glyphs over [floorDB, 0].
func sparkline(powers []float64, floorDB float64) string {
	glyphs := []rune("▁▂▃▄▅▆▇█")
	var b strings.Builder
	for _, p := range powers {
		f := 1 - math.Max(math.Min(p, 0), floorDB)/floorDB
		b.WriteRune(glyphs[int(math.Round(f*float64(len(glyphs)-1)))])
	}
	return b.String()
}

func renderSweep(resp phaser.AngleResponse, err error) string {
	lines := []string{styleTitle.Render("Beam sweep " + resp.RunID)}
	peak, ok := resp.Peak()
	if !ok {
		lines = append(lines, styleWarn.Render("no points measured"))
	} else {
		lines = append(lines,
			kv("angle of arrival", "%.1f deg", peak.AngleDeg),
			kv("steering phase", "%.1f deg", peak.SteeringPhaseDeg),
			kv("delta at peak", "%.1f dB", peak.DeltaDB),
			kv("monopulse phase", "%.3f rad", peak.MonopulsePhaseRad),
			kv("points", "%d", len(resp.Points)),
			sparkline(resp.Powers(), -40),
		)
	}
	if err != nil {
		lines = append(lines, styleWarn.Render("incomplete: "+err.Error()))
	}
	return styleBox.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderHosts(hosts []mdns.Host) string {
	if len(hosts) == 0 {
		return styleWarn.Render("no gophaser instances found")
	}
	rows := []string{styleTitle.Render(fmt.Sprintf("%d instance(s)", len(hosts)))}
	for _, h := range hosts {
		rows = append(rows, kv(h.Instance, "%s", h.URL()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
