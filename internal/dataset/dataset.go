// Package dataset loads voter change rows from delimited text or XLSX
// workbooks, read from the local filesystem or over HTTP(S).
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/user/voterchart/internal/cache"
	"github.com/user/voterchart/internal/models"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultSource is the dataset path used when none is configured.
const DefaultSource = "data/voters.csv"

const (
	ColumnProvince     = "province"
	ColumnMunicipality = "municipality"
	ColumnChange       = "change_from_2019"
)

var (
	ErrMissingColumn     = errors.New("missing required column")
	ErrUnsupportedFormat = errors.New("unsupported data format")
	ErrHTTPStatus        = errors.New("unexpected HTTP status")
)

// Format identifies how a source is decoded.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// Loader fetches and decodes data sources. With a Cache, remote sources are
// revalidated with a conditional request and served from disk on 304.
type Loader struct {
	Client *http.Client
	Logger *slog.Logger
	Cache  *cache.Store
}

// NewLoader returns a Loader using a clean, non-shared HTTP client.
func NewLoader() *Loader {
	return &Loader{
		Client: cleanhttp.DefaultClient(),
		Logger: slog.Default(),
	}
}

// Load reads source with a default Loader.
func Load(ctx context.Context, source string) (*models.Dataset, error) {
	return NewLoader().Load(ctx, source)
}

// Load reads source (a file path or an http(s) URL) and decodes it according
// to its extension.
func (l *Loader) Load(ctx context.Context, source string) (*models.Dataset, error) {
	format, err := DetectFormat(source)
	if err != nil {
		return nil, err
	}

	rc, err := l.open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var rows []models.Row
	switch format {
	case FormatXLSX:
		rows, err = ParseXLSX(rc)
	case FormatTSV:
		rows, err = ParseDelimited(rc, '\t')
	default:
		rows, err = ParseDelimited(rc, ',')
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}

	ds := models.NewDataset(source, rows)
	l.logger().Info("dataset loaded", "source", source, "rows", len(ds.Rows), "provinces", len(ds.Categories))
	return ds, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Loader) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if !IsRemote(source) {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open data file %s: %w", source, err)
		}
		return f, nil
	}

	var cached *cache.Entry
	if l.Cache != nil && l.Cache.Exists(source) {
		entry, err := l.Cache.Load(source)
		if err != nil {
			l.logger().Warn("ignoring unreadable cache entry", "source", source, "err", err)
		} else {
			cached = entry
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", source, err)
	}
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}
	client := l.Client
	if client == nil {
		client = cleanhttp.DefaultClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", source, err)
	}
	if resp.StatusCode == http.StatusNotModified && cached != nil {
		resp.Body.Close()
		l.logger().Debug("dataset not modified, using cache", "source", source, "fetched_at", cached.FetchedAt)
		return io.NopCloser(bytes.NewReader(cached.Body)), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %s", ErrHTTPStatus, source, resp.Status)
	}
	if l.Cache == nil {
		return resp.Body, nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	entry := &cache.Entry{
		Source:       source,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now().UTC(),
		Body:         body,
	}
	if entry.Validated() {
		if err := l.Cache.Save(entry); err != nil {
			l.logger().Warn("failed to cache dataset", "source", source, "err", err)
		}
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// IsRemote reports whether source is an http(s) URL rather than a path.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// DetectFormat picks a decoder from the source's extension. Sources without
// an extension are read as CSV.
func DetectFormat(source string) (Format, error) {
	p := source
	if IsRemote(source) {
		u, _ := url.Parse(source)
		p = path.Clean(u.Path)
	}
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".csv", ".txt", "":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ParseDelimited decodes a header-first delimited table. A leading byte order
// mark is removed; rows shorter than the header read missing cells as "".
func ParseDelimited(r io.Reader, comma rune) ([]models.Row, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read delimited data: %w", err)
	}
	return rowsFromRecords(records)
}

// ParseXLSX decodes the first sheet of a workbook with the same header rules
// as ParseDelimited.
func ParseXLSX(r io.Reader) ([]models.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMissingColumn)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rowsFromRecords(records)
}

func rowsFromRecords(records [][]string) ([]models.Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrMissingColumn)
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[name] = i // Later duplicates win.
	}
	for _, name := range []string{ColumnProvince, ColumnMunicipality, ColumnChange} {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	cell := func(record []string, name string) string {
		i := index[name]
		if i >= len(record) {
			return ""
		}
		return record[i]
	}

	rows := make([]models.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		rows = append(rows, models.Row{
			Province:       cell(record, ColumnProvince),
			Municipality:   cell(record, ColumnMunicipality),
			ChangeFrom2019: Coerce(cell(record, ColumnChange)),
		})
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, c := range record {
		if c != "" {
			return false
		}
	}
	return true
}

// EncodeCSV writes rows back out as CSV with the canonical header.
func EncodeCSV(rows []models.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{ColumnProvince, ColumnMunicipality, ColumnChange}); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Province, r.Municipality, formatRaw(r.ChangeFrom2019)}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode CSV: %w", err)
	}
	return buf.Bytes(), nil
}
