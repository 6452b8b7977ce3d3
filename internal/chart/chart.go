// Package chart builds the diverging bar chart scene for one province and
// encodes it as animated SVG.
package chart

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/user/voterchart/internal/format"
	"github.com/user/voterchart/internal/layout"
	"github.com/user/voterchart/internal/models"
	"github.com/user/voterchart/internal/scale"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	PositiveFill = "#5aae61"
	NegativeFill = "#9970ab"
	GridStroke   = "gray"
	FontFamily   = "Roboto"

	// GridTicks is the tick count hint for gridlines, independent of layout.
	GridTicks = 5
	// TransitionMillis is the duration of the bar and label entry transitions.
	TransitionMillis = 750
	// YLabelOffset is the gap between the value axis line and municipality names.
	YLabelOffset = 20
	// XLabelOffset is the gap between the top axis and its tick labels.
	XLabelOffset = 3
	// MobileLabelRotation applies to municipality names in the compact layout.
	MobileLabelRotation = -15
)

// ErrInvalidContainer is returned when the container has no usable width.
var ErrInvalidContainer = errors.New("chart container has no usable width")

// Anchor is an SVG text-anchor value.
type Anchor string

const (
	AnchorStart  Anchor = "start"
	AnchorMiddle Anchor = "middle"
	AnchorEnd    Anchor = "end"
)

// Tick is one labelled position on an axis.
type Tick struct {
	Value    float64 `json:"value"`
	Position float64 `json:"position"`
	Label    string  `json:"label"`
}

// Bar is one municipality's bar in plot coordinates.
type Bar struct {
	Municipality string  `json:"municipality"`
	Value        float64 `json:"value"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Fill         string  `json:"fill"`
}

// Label is the formatted value drawn next to a bar.
type Label struct {
	Municipality string  `json:"municipality"`
	Text         string  `json:"text"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Anchor       Anchor  `json:"anchor"`
}

// Scene is everything needed to draw one render of the chart.
type Scene struct {
	Category   string        `json:"category"`
	Layout     layout.Layout `json:"layout"`
	PlotWidth  float64       `json:"plot_width"`
	PlotHeight float64       `json:"plot_height"`
	Domain     [2]float64    `json:"domain"`
	XTicks     []Tick        `json:"x_ticks"`
	YTicks     []Tick        `json:"y_ticks"`
	Gridlines  []float64     `json:"gridlines"`
	Bars       []Bar         `json:"bars"`
	Labels     []Label       `json:"labels"`
	FontSize   string        `json:"font_size"`
	Bandwidth  float64       `json:"bandwidth"`

	x *scale.Linear
	y *scale.Band
}

// X maps a change value to its horizontal plot position.
func (s *Scene) X(v float64) float64 { return s.x.Map(v) }

// RotateLabels reports whether municipality names are rotated.
func (s *Scene) RotateLabels() bool { return s.Layout.IsMobile }

// Render filters rows to category and lays the chart out for a container of
// the given width. Every call builds a new scene.
func Render(rows []models.Row, category string, containerWidth float64) (*Scene, error) {
	if containerWidth <= 0 || math.IsNaN(containerWidth) || math.IsInf(containerWidth, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, containerWidth)
	}

	dims := layout.Dimensions(containerWidth)
	filtered := models.Filter(rows, category)

	s := &Scene{
		Category:   category,
		Layout:     dims,
		PlotWidth:  dims.PlotWidth(),
		PlotHeight: dims.PlotHeight(),
		FontSize:   dims.FontSize(),
	}

	names := make([]string, len(filtered))
	values := make([]float64, len(filtered))
	for i, r := range filtered {
		names[i] = r.Municipality
		values[i] = r.ChangeFrom2019
	}

	lo, hi := scale.ZeroAnchoredDomain(values)
	s.Domain = [2]float64{lo, hi}
	s.x = scale.NewLinear(lo, hi, 0, s.PlotWidth)
	s.y = scale.NewBand(names, 0, s.PlotHeight)
	s.Bandwidth = s.y.Bandwidth()

	for _, v := range s.x.Ticks(dims.AxisTicks()) {
		s.XTicks = append(s.XTicks, Tick{Value: v, Position: s.x.Map(v), Label: format.Number(v)})
	}
	for _, name := range s.y.Domain() {
		s.YTicks = append(s.YTicks, Tick{Position: s.y.Center(name), Label: name})
	}
	for _, v := range s.x.Ticks(GridTicks) {
		s.Gridlines = append(s.Gridlines, s.x.Map(v))
	}

	zero := s.x.Map(0)
	pad := dims.LabelPadding()
	for _, r := range filtered {
		v := r.ChangeFrom2019
		fill := NegativeFill
		if v >= 0 {
			fill = PositiveFill
		}
		s.Bars = append(s.Bars, Bar{
			Municipality: r.Municipality,
			Value:        v,
			X:            s.x.Map(math.Min(0, v)),
			Y:            s.y.At(r.Municipality),
			Width:        math.Abs(s.x.Map(v) - zero),
			Height:       s.y.Bandwidth(),
			Fill:         fill,
		})

		label := Label{
			Municipality: r.Municipality,
			Text:         format.Number(v),
			Y:            s.y.Center(r.Municipality),
		}
		if v >= 0 {
			label.X = s.x.Map(v) + pad
			label.Anchor = AnchorStart
		} else {
			label.X = zero + pad
			label.Anchor = AnchorEnd
		}
		s.Labels = append(s.Labels, label)
	}

	return s, nil
}

// RenderContext is Render wrapped in a tracing span.
func RenderContext(ctx context.Context, rows []models.Row, category string, containerWidth float64) (*Scene, error) {
	_, span := otel.Tracer("github.com/user/voterchart/internal/chart").Start(ctx, "chart.Render")
	defer span.End()
	span.SetAttributes(
		attribute.String("chart.category", category),
		attribute.Float64("chart.width", containerWidth),
	)

	s, err := Render(rows, category, containerWidth)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("chart.bars", len(s.Bars)))
	return s, nil
}
