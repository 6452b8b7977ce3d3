package report

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/user/voterchart/internal/chart"
	"github.com/user/voterchart/internal/format"
	"github.com/user/voterchart/internal/models"
)

const (
	summarySheet  = "Summary"
	maxSheetName  = 31
	changeNumFmt  = "+#,##0.##;-#,##0.##;0"
	summaryHeader = "Province,Municipalities,Gained,Lost,Unchanged,Non-numeric,Net change"
)

// XLSXReportAdapter writes a workbook with a summary sheet and one sheet
// per province, each with its rows and a native bar chart.
type XLSXReportAdapter struct {
	data []byte
}

// sheetName makes name a valid, unique worksheet name. Excel compares sheet
// names case-insensitively and limits them to 31 characters.
func sheetName(name string, used map[string]bool) string {
	base := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	base = strings.Trim(base, "'")
	if strings.TrimSpace(base) == "" {
		base = "(blank)"
	}

	candidate := truncateRunes(base, maxSheetName)
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateRunes(base, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// PrepareData builds the workbook in memory.
func (xra *XLSXReportAdapter) PrepareData(ds *models.Dataset, width float64) error {
	scenes, err := renderAll(ds, width)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename default sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	numFmt := changeNumFmt
	signed, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("failed to create number style: %w", err)
	}

	for i, header := range strings.Split(summaryHeader, ",") {
		if err := f.SetCellValue(summarySheet, cell(i+1, 1), header); err != nil {
			return err
		}
	}
	if err := f.SetRowStyle(summarySheet, 1, 1, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "B", "G", 14); err != nil {
		return err
	}

	used := map[string]bool{strings.ToLower(summarySheet): true}
	for i, scene := range scenes {
		name := sheetName(scene.Category, used)
		if err := writeProvinceSheet(f, name, scene, bold, signed); err != nil {
			return fmt.Errorf("failed to write sheet for %q: %w", scene.Category, err)
		}

		s := summarize(scene)
		row := i + 2
		values := []any{s.Province, s.Municipalities, s.Gained, s.Lost, s.Unchanged, s.NonNumeric, s.NetChange}
		for col, v := range values {
			if err := f.SetCellValue(summarySheet, cell(col+1, row), v); err != nil {
				return err
			}
		}
		if err := f.SetCellStyle(summarySheet, cell(7, row), cell(7, row), signed); err != nil {
			return err
		}
		link := fmt.Sprintf("'%s'!A1", strings.ReplaceAll(name, "'", "''"))
		if err := f.SetCellHyperLink(summarySheet, cell(1, row), link, "Location"); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("failed to encode workbook: %w", err)
	}
	xra.data = buf.Bytes()
	return nil
}

func writeProvinceSheet(f *excelize.File, name string, scene *chart.Scene, bold, signed int) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	for i, header := range []string{"Municipality", "Change from 2019", "Label", "Gained", "Lost"} {
		if err := f.SetCellValue(name, cell(i+1, 1), header); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(name, "A", "A", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(name, "B", "C", 18); err != nil {
		return err
	}
	if err := f.SetColWidth(name, "D", "E", 12); err != nil {
		return err
	}
	if err := f.SetColStyle(name, "B", signed); err != nil {
		return err
	}
	if err := f.SetColStyle(name, "D:E", signed); err != nil {
		return err
	}
	if err := f.SetRowStyle(name, 1, 1, bold); err != nil {
		return err
	}

	for i, b := range scene.Bars {
		row := i + 2
		if err := f.SetCellValue(name, cell(1, row), b.Municipality); err != nil {
			return err
		}
		// Non-finite values have no spreadsheet representation; the label
		// column still shows them.
		if !math.IsNaN(b.Value) && !math.IsInf(b.Value, 0) {
			if err := f.SetCellValue(name, cell(2, row), b.Value); err != nil {
				return err
			}
			// Split by sign so the chart colours gains and losses apart.
			col := 4
			if b.Value < 0 {
				col = 5
			}
			if err := f.SetCellValue(name, cell(col, row), b.Value); err != nil {
				return err
			}
		}
		if err := f.SetCellValue(name, cell(3, row), format.Number(b.Value)); err != nil {
			return err
		}
	}

	n := len(scene.Bars)
	if n == 0 {
		return nil
	}
	return f.AddChart(name, "G2", provinceChart(name, scene))
}

// provinceChart draws the gained and lost columns as two fully overlapping
// bar series, one per fill colour.
func provinceChart(sheet string, scene *chart.Scene) *excelize.Chart {
	ref := fmt.Sprintf("'%s'", strings.ReplaceAll(sheet, "'", "''"))
	last := len(scene.Bars) + 1
	series := func(col, fill string) excelize.ChartSeries {
		return excelize.ChartSeries{
			Name:       fmt.Sprintf("%s!$%s$1", ref, col),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", ref, last),
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", ref, col, col, last),
			Fill:       excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{strings.TrimPrefix(fill, "#")}},
		}
	}
	overlap := 100
	return &excelize.Chart{
		Type: excelize.Bar,
		Series: []excelize.ChartSeries{
			series("D", chart.PositiveFill),
			series("E", chart.NegativeFill),
		},
		Title:   []excelize.RichTextRun{{Text: scene.Category}},
		Legend:  excelize.ChartLegend{Position: "none"},
		XAxis:   excelize.ChartAxis{ReverseOrder: true},
		Overlap: &overlap,
	}
}

// Write saves the workbook to the specified output file.
func (xra *XLSXReportAdapter) Write(outputFilePath string) error {
	return writeFile(outputFilePath, xra.data)
}
