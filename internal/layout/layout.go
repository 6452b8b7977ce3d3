// Package layout derives the chart's responsive dimensions from the width of
// its container.
package layout

// MobileBreakpoint is the container width below which the compact layout is
// used. The injected stylesheet renders its media query from this value.
const MobileBreakpoint = 768

// ChartHeight is fixed regardless of how many municipalities a province has.
const ChartHeight = 1000

// Margin holds the space reserved around the plot area.
type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Layout describes one render's geometry. It is recomputed on every render.
type Layout struct {
	Margin   Margin  `json:"margin"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	IsMobile bool    `json:"is_mobile"`
}

// Dimensions returns the layout for a container of the given width.
func Dimensions(containerWidth float64) Layout {
	isMobile := containerWidth < MobileBreakpoint

	m := Margin{Top: 40, Right: 120, Bottom: 20, Left: 200}
	if isMobile {
		m.Right = 60
		m.Left = 120
	}

	return Layout{
		Margin:   m,
		Width:    containerWidth,
		Height:   ChartHeight,
		IsMobile: isMobile,
	}
}

// PlotWidth is the horizontal extent available to bars.
func (l Layout) PlotWidth() float64 {
	return l.Width - l.Margin.Left - l.Margin.Right
}

// PlotHeight is the vertical extent shared among the municipality bands.
func (l Layout) PlotHeight() float64 {
	return l.Height - l.Margin.Top - l.Margin.Bottom
}

// AxisTicks is the tick count hint for the value axis.
func (l Layout) AxisTicks() int {
	if l.IsMobile {
		return 3
	}
	return 5
}

// FontSize is used for axis and value label text.
func (l Layout) FontSize() string {
	if l.IsMobile {
		return "12px"
	}
	return "14px"
}

// LabelPadding separates a value label from the bar edge or zero line.
func (l Layout) LabelPadding() float64 {
	if l.IsMobile {
		return 3
	}
	return 5
}
