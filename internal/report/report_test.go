package report

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/user/voterchart/internal/chart"
	"github.com/user/voterchart/internal/models"
)

func getTestDataset() *models.Dataset {
	return models.NewDataset("voters.csv", []models.Row{
		{Province: "Gelderland", Municipality: "Arnhem", ChangeFrom2019: 1500},
		{Province: "Gelderland", Municipality: "Nijmegen", ChangeFrom2019: -320},
		{Province: "Gelderland", Municipality: "Ede", ChangeFrom2019: 0},
		{Province: "Gelderland", Municipality: "Unknown", ChangeFrom2019: math.NaN()},
		{Province: "Noord-Holland", Municipality: "Haarlem", ChangeFrom2019: 12000},
	})
}

func TestNewAdapter(t *testing.T) {
	for _, name := range Formats {
		a, err := NewAdapter(name)
		require.NoError(t, err, name)
		assert.NotNil(t, a)
	}
	_, err := NewAdapter("pdf")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{"summary": true}
	assert.Equal(t, "a_b_c", sheetName("a/b:c", used))
	assert.Equal(t, "Summary (2)", sheetName("SUMMARY", used))
	assert.Equal(t, "(blank)", sheetName("", used))

	long := strings.Repeat("x", 40)
	first := sheetName(long, used)
	second := sheetName(long, used)
	assert.Len(t, first, 31)
	assert.Len(t, second, 31)
	assert.True(t, strings.HasSuffix(second, " (2)"))
}

func TestJSONReportAdapter(t *testing.T) {
	adapter := &JSONReportAdapter{}
	require.NoError(t, adapter.PrepareData(getTestDataset(), 1000))

	var got struct {
		Source     string   `json:"source"`
		Categories []string `json:"categories"`
		Provinces  []struct {
			Province   string   `json:"province"`
			Gained     int      `json:"gained"`
			Lost       int      `json:"lost"`
			Unchanged  int      `json:"unchanged"`
			NonNumeric int      `json:"non_numeric"`
			NetChange  float64  `json:"net_change"`
			DomainMin  *float64 `json:"domain_min"`
			Ticks      []string `json:"ticks"`
			Bars       []struct {
				Label string   `json:"label"`
				Width *float64 `json:"width"`
			} `json:"bars"`
		} `json:"provinces"`
	}
	require.NoError(t, json.Unmarshal(adapter.reportData, &got))

	assert.Equal(t, "voters.csv", got.Source)
	assert.Equal(t, []string{"Gelderland", "Noord-Holland"}, got.Categories)
	require.Len(t, got.Provinces, 2)

	g := got.Provinces[0]
	assert.Equal(t, 1, g.Gained)
	assert.Equal(t, 1, g.Lost)
	assert.Equal(t, 1, g.Unchanged)
	assert.Equal(t, 1, g.NonNumeric)
	assert.Equal(t, 1180.0, g.NetChange)
	require.NotNil(t, g.DomainMin)
	assert.Equal(t, -320.0, *g.DomainMin)
	assert.Contains(t, g.Ticks, "+1,000")
	require.Len(t, g.Bars, 4)
	assert.Equal(t, "+1,500", g.Bars[0].Label)
	assert.Equal(t, "NaN", g.Bars[3].Label)
	assert.Nil(t, g.Bars[3].Width)

	outputFile := filepath.Join(t.TempDir(), "nested", "report.json")
	require.NoError(t, adapter.Write(outputFile))
	content, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	assert.Equal(t, adapter.reportData, content)
}

func TestHTMLReportAdapter(t *testing.T) {
	adapter := &HTMLReportAdapter{}
	require.NoError(t, adapter.PrepareData(getTestDataset(), 1000))

	outputFile := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, adapter.Write(outputFile))
	content, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	html := string(content)

	assert.Contains(t, html, `<select id="categorySelect"`)
	assert.Contains(t, html, `<option value="0" selected>Gelderland</option>`)
	assert.Contains(t, html, `<option value="1">Noord-Holland</option>`)
	assert.Contains(t, html, `data-index="1" hidden`)
	assert.Contains(t, html, `id="p0-bar-0"`)
	assert.Contains(t, html, `id="p1-bar-0"`)
	assert.Contains(t, html, "+12,000")
	assert.Contains(t, html, "+1,180")
	assert.Contains(t, html, "5 rows from voters.csv")
	assert.Equal(t, 2, strings.Count(html, "<svg"))
}

func TestXLSXReportAdapter(t *testing.T) {
	adapter := &XLSXReportAdapter{}
	require.NoError(t, adapter.PrepareData(getTestDataset(), 1000))

	outputFile := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, adapter.Write(outputFile))

	f, err := excelize.OpenFile(outputFile)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Gelderland", "Noord-Holland"}, f.GetSheetList())

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, "Gelderland", summary[1][0])
	assert.Equal(t, "4", summary[1][1])

	rows, err := f.GetRows("Gelderland")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Municipality", "Change from 2019", "Label", "Gained", "Lost"}, rows[0])
	assert.Equal(t, "Arnhem", rows[1][0])
	assert.Equal(t, "NaN", rows[4][2])

	raw, err := f.GetCellValue("Gelderland", "B3", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "-320", raw)

	empty, err := f.GetCellValue("Gelderland", "B5")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for cellRef, want := range map[string]string{"D2": "1500", "E2": "", "D3": "", "E3": "-320", "D4": "0", "D5": "", "E5": ""} {
		got, err := f.GetCellValue("Gelderland", cellRef, excelize.Options{RawCellValue: true})
		require.NoError(t, err)
		assert.Equal(t, want, got, cellRef)
	}
}

func TestProvinceChartSplitsSeriesBySign(t *testing.T) {
	scene, err := chart.Render(getTestDataset().Rows, "Gelderland", 1000)
	require.NoError(t, err)

	c := provinceChart("Gelder'land", scene)
	require.Len(t, c.Series, 2)
	assert.Equal(t, "'Gelder''land'!$D$2:$D$5", c.Series[0].Values)
	assert.Equal(t, "'Gelder''land'!$E$2:$E$5", c.Series[1].Values)
	assert.Equal(t, "'Gelder''land'!$A$2:$A$5", c.Series[1].Categories)
	assert.Equal(t, []string{"5aae61"}, c.Series[0].Fill.Color)
	assert.Equal(t, []string{"9970ab"}, c.Series[1].Fill.Color)
	require.NotNil(t, c.Overlap)
	assert.Equal(t, 100, *c.Overlap)
}
