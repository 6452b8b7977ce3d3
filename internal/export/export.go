// Package export draws a static, unanimated image of a chart scene with
// gonum/plot, for formats browsers cannot animate (PNG, PDF, ...).
package export

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"

	"github.com/user/voterchart/internal/chart"
	"github.com/user/voterchart/internal/format"
	"github.com/user/voterchart/internal/scale"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// Formats lists the encodings gonum/plot can write.
var Formats = []string{"png", "svg", "pdf", "eps", "jpg", "jpeg", "tif", "tiff"}

// FormatFromPath returns the image format implied by path's extension.
func FormatFromPath(path string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, f := range Formats {
		if f == ext {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func hexColor(s string) color.Color {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.Black
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Plot builds a horizontal diverging bar chart equivalent to scene. The first
// municipality is drawn at the top, as in the interactive chart.
func Plot(scene *chart.Scene) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = scene.Category
	p.X.Label.Text = "Change from 2019"

	ticks := scene.Layout.AxisTicks()
	p.X.Tick.Marker = plot.TickerFunc(func(min, max float64) []plot.Tick {
		var out []plot.Tick
		for _, v := range scale.Ticks(min, max, ticks) {
			out = append(out, plot.Tick{Value: v, Label: format.Number(v)})
		}
		return out
	})

	lo, hi := scene.Domain[0], scene.Domain[1]
	if !math.IsNaN(lo) && !math.IsNaN(hi) && !math.IsInf(lo, 0) && !math.IsInf(hi, 0) {
		p.X.Min, p.X.Max = lo, hi
	}

	grid := plotter.NewGrid()
	grid.Horizontal.Color = nil
	grid.Vertical.Color = color.Gray{Y: 128}
	p.Add(grid)

	n := len(scene.Bars)
	if n == 0 {
		return p, nil
	}

	positive := make(plotter.Values, n)
	negative := make(plotter.Values, n)
	names := make([]string, n)
	for i, b := range scene.Bars {
		j := n - 1 - i
		names[j] = b.Municipality

		v := b.Value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v >= 0 {
			positive[j] = v
		} else {
			negative[j] = v
		}
	}

	width := vg.Points(math.Max(1, scene.Bandwidth*0.8))
	for _, series := range []struct {
		values plotter.Values
		fill   string
	}{
		{positive, chart.PositiveFill},
		{negative, chart.NegativeFill},
	} {
		bars, err := plotter.NewBarChart(series.values, width)
		if err != nil {
			return nil, fmt.Errorf("failed to create bar chart for %s: %w", scene.Category, err)
		}
		bars.Horizontal = true
		bars.Color = hexColor(series.fill)
		bars.LineStyle.Width = 0
		p.Add(bars)
	}

	labels, err := valueLabels(scene)
	if err != nil {
		return nil, err
	}
	for _, l := range labels {
		p.Add(l)
	}

	p.NominalY(names...)
	return p, nil
}

// valueLabels places each value at the outer end of its bar: right of
// non-negative bars, and right-aligned left of negative ones.
func valueLabels(scene *chart.Scene) ([]*plotter.Labels, error) {
	n := len(scene.Bars)
	var right, left plotter.XYLabels
	for i, b := range scene.Bars {
		v := b.Value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xy := plotter.XY{X: v, Y: float64(n - 1 - i)}
		if v >= 0 {
			right.XYs = append(right.XYs, xy)
			right.Labels = append(right.Labels, format.Number(v))
		} else {
			left.XYs = append(left.XYs, xy)
			left.Labels = append(left.Labels, format.Number(v))
		}
	}

	pad := vg.Points(scene.Layout.LabelPadding())
	var out []*plotter.Labels
	for _, side := range []struct {
		labels plotter.XYLabels
		offset vg.Length
		align  text.XAlignment
	}{
		{right, pad, text.XLeft},
		{left, -pad, text.XRight},
	} {
		if len(side.labels.XYs) == 0 {
			continue
		}
		l, err := plotter.NewLabels(side.labels)
		if err != nil {
			return nil, fmt.Errorf("failed to create value labels for %s: %w", scene.Category, err)
		}
		l.Offset = vg.Point{X: side.offset}
		for i := range l.TextStyle {
			l.TextStyle[i].XAlign = side.align
		}
		out = append(out, l)
	}
	return out, nil
}

// Write encodes scene in the given format (see Formats) to w.
func Write(w io.Writer, scene *chart.Scene, imageFormat string) error {
	p, err := Plot(scene)
	if err != nil {
		return err
	}

	writer, err := p.WriterTo(vg.Points(scene.Layout.Width), vg.Points(scene.Layout.Height), imageFormat)
	if err != nil {
		return fmt.Errorf("failed to create plot writer: %w", err)
	}

	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to write plot to buffer: %w", err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write %s image: %w", imageFormat, err)
	}
	return nil
}
