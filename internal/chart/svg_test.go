package chart

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/voterchart/internal/models"
)

func TestWriteSVGAnimated(t *testing.T) {
	s, err := Render(scenarioRows(), "A", 1000)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.WriteSVG(&buf, SVGOptions{IDPrefix: "a-"}))
	out := buf.String()

	assert.Contains(t, out, `width="1000.00"`)
	assert.Contains(t, out, `height="1000.00"`)
	assert.Contains(t, out, `translate(200.00,40.00)`)
	assert.Contains(t, out, `class="x-axis"`)
	assert.Contains(t, out, `class="y-axis"`)
	assert.Contains(t, out, `class="vertical-grid"`)
	assert.Contains(t, out, `fill="#5aae61"`)
	assert.Contains(t, out, `fill="#9970ab"`)
	assert.Contains(t, out, `id="a-bar-0"`)
	assert.Contains(t, out, `id="a-label-1"`)
	assert.Contains(t, out, `attributeName="width"`)
	assert.Contains(t, out, `attributeName="opacity"`)
	assert.Contains(t, out, `dur="0.75s"`)
	assert.Contains(t, out, `fill="freeze"`)
	assert.Contains(t, out, ">+100</text>")
	assert.Contains(t, out, ">-50</text>")
	assert.Contains(t, out, "stroke-linejoin:miter")
	assert.NotContains(t, out, "rotate(", "desktop labels are not rotated")
}

func TestWriteSVGStatic(t *testing.T) {
	s, err := Render(scenarioRows(), "A", 600)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.WriteSVG(&buf, SVGOptions{Static: true}))
	out := buf.String()

	assert.NotContains(t, out, "<animate")
	assert.NotContains(t, out, `opacity="0"`)
	assert.Contains(t, out, "rotate(-15 0 ")
}

func TestWriteSVGBarEdgesMeetAtZero(t *testing.T) {
	// 937 puts the zero position between whole pixels.
	s, err := Render(scenarioRows(), "A", 937)
	require.NoError(t, err)
	require.Len(t, s.Bars, 2)
	pos, neg := s.Bars[0], s.Bars[1]

	posX, posW := span(pos.X, pos.Width)
	negX, negW := span(neg.X, neg.Width)
	assert.InDelta(t, posX, px(negX+negW), 1e-9, "the negative bar ends where the positive bar starts")
	assert.InDelta(t, px(pos.X+pos.Width), px(posX+posW), 1e-9)

	var buf bytes.Buffer
	require.NoError(t, s.WriteSVG(&buf, SVGOptions{Static: true}))
	out := buf.String()
	assert.Contains(t, out, fmt.Sprintf(`x="%.2f" y="%.2f" width="%.2f"`, posX, px(pos.Y), posW))
	assert.Contains(t, out, fmt.Sprintf(`x="%.2f" y="%.2f" width="%.2f"`, negX, px(neg.Y), negW))
}

func TestSpanSnapsBothEdges(t *testing.T) {
	x, w := span(10.004, 5.004)
	assert.InDelta(t, 10.0, x, 1e-9)
	assert.InDelta(t, 5.01, w, 1e-9)
	assert.InDelta(t, px(10.004+5.004), px(x+w), 1e-9)
}

func TestInlineSVGDropsProlog(t *testing.T) {
	rows := []models.Row{{Province: `Noord "&" Zuid`, Municipality: "<Alpha>", ChangeFrom2019: 1}}
	s, err := Render(rows, rows[0].Province, 900)
	require.NoError(t, err)

	out, err := s.InlineSVG(SVGOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<svg"))
	assert.Contains(t, out, `data-category="Noord &quot;&amp;&quot; Zuid"`)
	assert.Contains(t, out, "&lt;Alpha&gt;")
}

func TestStyleSheetSharesBreakpoint(t *testing.T) {
	css := StyleSheet()
	assert.Contains(t, css, "#voters_2025")
	assert.Contains(t, css, "overflow-x: hidden")
	assert.Contains(t, css, "@media (max-width: 768px)")
	assert.Contains(t, css, "font-size: 12px")
}
