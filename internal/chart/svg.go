package chart

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	svg "github.com/ajstarks/svgo/float"
)

// SVGOptions controls how a scene is encoded.
type SVGOptions struct {
	// IDPrefix namespaces element ids so several charts can share a document.
	IDPrefix string
	// Static drops the entry transitions and draws final geometry directly.
	Static bool
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	ew.err = err
	return n, err
}

// Decimals is the number of fractional digits written for coordinates.
const Decimals = 2

var quantum = math.Pow10(Decimals)

// px snaps v to the precision written to the document.
func px(v float64) float64 {
	return math.Round(v*quantum) / quantum
}

// span snaps the interval [x, x+w]. Both edges are snapped independently, so
// intervals meeting at one position in the scene still meet in the output.
func span(x, w float64) (float64, float64) {
	x0, x1 := px(x), px(x+w)
	return x0, px(x1 - x0)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (o SVGOptions) id(kind string, i int) string {
	return fmt.Sprintf("%s%s-%d", o.IDPrefix, kind, i)
}

// WriteSVG encodes the scene as a standalone SVG document.
func (s *Scene) WriteSVG(w io.Writer, opts SVGOptions) error {
	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	canvas.Decimals = Decimals

	l := s.Layout
	canvas.Start(px(l.Width), px(l.Height),
		`class="voters-chart"`,
		fmt.Sprintf(`data-category="%s"`, attrEscape(s.Category)),
	)
	canvas.Translate(px(l.Margin.Left), px(l.Margin.Top))

	textStyle := fmt.Sprintf("font-size:%s;font-family:%s", s.FontSize, FontFamily)

	// Value axis along the top; its baseline is not drawn.
	canvas.Group(`class="x-axis"`, textStyle)
	for _, t := range s.XTicks {
		if !finite(t.Position) {
			continue
		}
		canvas.Text(px(t.Position), -XLabelOffset, t.Label, `class="tick"`, `text-anchor="middle"`)
	}
	canvas.Gend()

	canvas.Group(`class="y-axis"`, textStyle)
	for _, t := range s.YTicks {
		if !finite(t.Position) {
			continue
		}
		attrs := []string{`class="tick"`, `text-anchor="end"`, `dy="0.32em"`}
		if s.RotateLabels() {
			attrs = append(attrs, fmt.Sprintf(`transform="rotate(%d 0 %.*f)"`, MobileLabelRotation, Decimals, px(t.Position)))
		}
		canvas.Text(-YLabelOffset, px(t.Position), t.Label, attrs...)
	}
	canvas.Gend()

	for _, x := range s.Gridlines {
		if !finite(x) {
			continue
		}
		canvas.Line(px(x), 0, px(x), px(s.PlotHeight),
			`class="vertical-grid"`, fmt.Sprintf("stroke:%s;stroke-width:1", GridStroke))
	}

	dur := float64(TransitionMillis) / 1000
	for i, b := range s.Bars {
		if !finite(b.X, b.Y, b.Width, b.Height) {
			continue
		}
		id := opts.id("bar", i)
		x, width := span(b.X, b.Width)
		y, height := span(b.Y, b.Height)
		drawn := width
		if !opts.Static {
			drawn = 0
		}
		canvas.Rect(x, y, drawn, height,
			fmt.Sprintf(`id="%s"`, id), `class="bar"`, fmt.Sprintf(`fill="%s"`, b.Fill))
		if !opts.Static {
			canvas.Animate("#"+id, "width", 0, width, dur, 1, `fill="freeze"`)
		}
	}

	labelStyle := fmt.Sprintf("font-size:%s;paint-order:stroke;stroke:white;stroke-width:3px;stroke-linecap:butt;stroke-linejoin:miter", s.FontSize)
	for i, lb := range s.Labels {
		if !finite(lb.X, lb.Y) {
			continue
		}
		id := opts.id("label", i)
		attrs := []string{
			fmt.Sprintf(`id="%s"`, id),
			`class="value-label"`,
			fmt.Sprintf(`text-anchor="%s"`, lb.Anchor),
			`dy="0.35em"`,
		}
		if !opts.Static {
			attrs = append(attrs, `opacity="0"`)
		}
		attrs = append(attrs, labelStyle)
		canvas.Text(px(lb.X), px(lb.Y), lb.Text, attrs...)
		if !opts.Static {
			canvas.Animate("#"+id, "opacity", 0, 1, dur, 1, `fill="freeze"`)
		}
	}

	canvas.Gend()
	canvas.End()
	if ew.err != nil {
		return fmt.Errorf("failed to write SVG: %w", ew.err)
	}
	return nil
}

// InlineSVG returns the <svg> element without the XML prolog, for embedding
// in an HTML document.
func (s *Scene) InlineSVG(opts SVGOptions) (string, error) {
	var buf bytes.Buffer
	if err := s.WriteSVG(&buf, opts); err != nil {
		return "", err
	}
	out := buf.String()
	if i := strings.Index(out, "<svg"); i > 0 {
		out = out[i:]
	}
	return out, nil
}

var attrReplacer = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")

func attrEscape(s string) string {
	return attrReplacer.Replace(s)
}
