package report

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/user/voterchart/internal/chart"
	"github.com/user/voterchart/internal/format"
	"github.com/user/voterchart/internal/models"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists the report formats NewAdapter accepts.
var Formats = []string{"html", "json", "xlsx"}

// ReportAdapter defines the interface for generating different report formats.
type ReportAdapter interface {
	PrepareData(ds *models.Dataset, width float64) error
	Write(outputFilePath string) error
}

// NewAdapter returns the adapter for a report format name.
func NewAdapter(name string) (ReportAdapter, error) {
	switch name {
	case "html":
		return &HTMLReportAdapter{}, nil
	case "json":
		return &JSONReportAdapter{}, nil
	case "xlsx":
		return &XLSXReportAdapter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// ProvinceSummary aggregates one province's rows. Non-numeric rows are
// counted but left out of the net change.
type ProvinceSummary struct {
	Province       string   `json:"province"`
	Municipalities int      `json:"municipalities"`
	Gained         int      `json:"gained"`
	Lost           int      `json:"lost"`
	Unchanged      int      `json:"unchanged"`
	NonNumeric     int      `json:"non_numeric"`
	NetChange      float64  `json:"net_change"`
	DomainMin      *float64 `json:"domain_min,omitempty"`
	DomainMax      *float64 `json:"domain_max,omitempty"`
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func summarize(scene *chart.Scene) ProvinceSummary {
	s := ProvinceSummary{
		Province:       scene.Category,
		Municipalities: len(scene.Bars),
		DomainMin:      finitePtr(scene.Domain[0]),
		DomainMax:      finitePtr(scene.Domain[1]),
	}
	for _, b := range scene.Bars {
		switch v := b.Value; {
		case math.IsNaN(v) || math.IsInf(v, 0):
			s.NonNumeric++
			continue
		case v > 0:
			s.Gained++
		case v < 0:
			s.Lost++
		default:
			s.Unchanged++
		}
		s.NetChange += b.Value
	}
	return s
}

// renderAll lays out every province of ds at width.
func renderAll(ds *models.Dataset, width float64) ([]*chart.Scene, error) {
	scenes := make([]*chart.Scene, 0, len(ds.Categories))
	for _, c := range ds.Categories {
		scene, err := chart.Render(ds.Rows, c, width)
		if err != nil {
			return nil, fmt.Errorf("failed to render %q: %w", c, err)
		}
		scenes = append(scenes, scene)
	}
	return scenes, nil
}

func writeFile(outputFilePath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(outputFilePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for report file %s: %w", outputFilePath, err)
	}
	return os.WriteFile(outputFilePath, data, 0644)
}

// --- JSON Report Adapter ---

type jsonBar struct {
	Municipality string   `json:"municipality"`
	Label        string   `json:"label"`
	Fill         string   `json:"fill"`
	X            *float64 `json:"x"`
	Y            float64  `json:"y"`
	Width        *float64 `json:"width"`
	Height       float64  `json:"height"`
}

type jsonProvince struct {
	ProvinceSummary
	Rows  []models.Row `json:"rows"`
	Bars  []jsonBar    `json:"bars"`
	Ticks []string     `json:"ticks"`
}

type jsonReport struct {
	Source      string         `json:"source"`
	GeneratedAt time.Time      `json:"generated_at"`
	Width       float64        `json:"width"`
	Mobile      bool           `json:"mobile"`
	Categories  []string       `json:"categories"`
	Provinces   []jsonProvince `json:"provinces"`
}

// JSONReportAdapter generates reports in JSON format.
type JSONReportAdapter struct {
	reportData []byte
}

// PrepareData lays out every province and marshals rows, summaries and bar
// geometry.
func (jra *JSONReportAdapter) PrepareData(ds *models.Dataset, width float64) error {
	scenes, err := renderAll(ds, width)
	if err != nil {
		return err
	}

	report := jsonReport{
		Source:      ds.Source,
		GeneratedAt: time.Now().UTC(),
		Width:       width,
		Categories:  ds.Categories,
		Provinces:   make([]jsonProvince, 0, len(scenes)),
	}
	for _, scene := range scenes {
		report.Mobile = scene.Layout.IsMobile
		p := jsonProvince{
			ProvinceSummary: summarize(scene),
			Rows:            models.Filter(ds.Rows, scene.Category),
			Bars:            make([]jsonBar, 0, len(scene.Bars)),
			Ticks:           make([]string, 0, len(scene.XTicks)),
		}
		for i, b := range scene.Bars {
			p.Bars = append(p.Bars, jsonBar{
				Municipality: b.Municipality,
				Label:        scene.Labels[i].Text,
				Fill:         b.Fill,
				X:            finitePtr(b.X),
				Y:            b.Y,
				Width:        finitePtr(b.Width),
				Height:       b.Height,
			})
		}
		for _, t := range scene.XTicks {
			p.Ticks = append(p.Ticks, t.Label)
		}
		report.Provinces = append(report.Provinces, p)
	}

	jsonData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	jra.reportData = jsonData
	return nil
}

// Write saves the JSON report data to the specified output file.
func (jra *JSONReportAdapter) Write(outputFilePath string) error {
	return writeFile(outputFilePath, jra.reportData)
}

// --- HTML Report Adapter ---

type htmlChart struct {
	Index   int
	SVG     template.HTML
	Summary ProvinceSummary
}

// HTMLReportAdapter generates a standalone page with every province
// pre-rendered; the selector only toggles which chart is visible.
type HTMLReportAdapter struct {
	reportBuf bytes.Buffer
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"FormatNumber": format.Number,
		"Comma":        func(n int) string { return humanize.Comma(int64(n)) },
		"FormatDateTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05 MST")
		},
	}
}

// PrepareData renders the HTML report into memory.
func (hra *HTMLReportAdapter) PrepareData(ds *models.Dataset, width float64) error {
	scenes, err := renderAll(ds, width)
	if err != nil {
		return err
	}

	charts := make([]htmlChart, 0, len(scenes))
	for i, scene := range scenes {
		svg, err := scene.InlineSVG(chart.SVGOptions{IDPrefix: fmt.Sprintf("p%d-", i)})
		if err != nil {
			return fmt.Errorf("failed to encode chart for %q: %w", scene.Category, err)
		}
		charts = append(charts, htmlChart{
			Index:   i,
			SVG:     template.HTML(svg), //nolint:gosec // generated by svgo with escaped attributes
			Summary: summarize(scene),
		})
	}

	tmpl, err := template.New("report.html.tmpl").Funcs(funcMap()).ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}

	templateData := struct {
		Source        string
		GeneratedAt   time.Time
		Rows          int
		ContainerID   string
		SelectID      string
		DropdownStyle template.CSS
		StyleSheet    template.CSS
		Charts        []htmlChart
	}{
		Source:        ds.Source,
		GeneratedAt:   time.Now().UTC(),
		Rows:          len(ds.Rows),
		ContainerID:   chart.ContainerID,
		SelectID:      chart.SelectID,
		DropdownStyle: template.CSS(chart.DropdownStyle),
		StyleSheet:    template.CSS(chart.StyleSheet()),
		Charts:        charts,
	}

	hra.reportBuf.Reset()
	if err := tmpl.Execute(&hra.reportBuf, templateData); err != nil {
		return fmt.Errorf("failed to execute HTML template: %w", err)
	}
	return nil
}

// Write saves the HTML report data to the specified output file.
func (hra *HTMLReportAdapter) Write(outputFilePath string) error {
	return writeFile(outputFilePath, hra.reportBuf.Bytes())
}
