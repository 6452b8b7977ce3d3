package dataset

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/voterchart/internal/cache"
	"github.com/user/voterchart/internal/models"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = "province,municipality,change_from_2019\n" +
	"A,X,100\n" +
	"A,Y,-50\n" +
	"B,Z,0\n"

func TestCoerce(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"100", 100},
		{"-50", -50},
		{" 12 ", 12},
		{"", 0},
		{"   ", 0},
		{"1e3", 1000},
		{".5", 0.5},
		{"5.", 5},
		{"+7", 7},
		{"0x1A", 26},
		{"0b101", 5},
		{"0o17", 15},
		{"Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
		{"1e400", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.in))
		})
	}
}

func TestCoerceNaN(t *testing.T) {
	for _, in := range []string{"1,234", "abc", "NaN", "inf", "-0x1A", "0x", "1_000", ".", "12abc"} {
		assert.True(t, math.IsNaN(Coerce(in)), "input %q", in)
	}
}

func TestParseDelimited(t *testing.T) {
	rows, err := ParseDelimited(strings.NewReader(sampleCSV), ',')
	require.NoError(t, err)
	assert.Equal(t, []models.Row{
		{Province: "A", Municipality: "X", ChangeFrom2019: 100},
		{Province: "A", Municipality: "Y", ChangeFrom2019: -50},
		{Province: "B", Municipality: "Z", ChangeFrom2019: 0},
	}, rows)
}

func TestParseDelimitedStripsBOMAndToleratesRaggedRows(t *testing.T) {
	input := "\ufeffmunicipality,province,change_from_2019,extra\n" +
		"\"Den Haag, Centrum\",Zuid-Holland,\"1,234\"\n" +
		"Leiden,Zuid-Holland\n"

	rows, err := ParseDelimited(strings.NewReader(input), ',')
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Den Haag, Centrum", rows[0].Municipality)
	assert.Equal(t, "Zuid-Holland", rows[0].Province)
	assert.True(t, math.IsNaN(rows[0].ChangeFrom2019))

	assert.Equal(t, "Leiden", rows[1].Municipality)
	assert.Equal(t, 0.0, rows[1].ChangeFrom2019)
}

func TestParseDelimitedMissingColumn(t *testing.T) {
	_, err := ParseDelimited(strings.NewReader("province,municipality\nA,X\n"), ',')
	require.ErrorIs(t, err, ErrMissingColumn)

	_, err = ParseDelimited(strings.NewReader(""), ',')
	require.ErrorIs(t, err, ErrMissingColumn)
}

func TestParseDelimitedTabs(t *testing.T) {
	rows, err := ParseDelimited(strings.NewReader("province\tmunicipality\tchange_from_2019\nA\tX\t-3\n"), '\t')
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, -3.0, rows[0].ChangeFrom2019)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"data/voters.csv", FormatCSV},
		{"data/voters", FormatCSV},
		{"voters.TSV", FormatTSV},
		{"book.xlsx", FormatXLSX},
		{"https://example.com/v.xlsx?dl=1", FormatXLSX},
		{"https://example.com/data/voters", FormatCSV},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := DetectFormat("voters.json")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "voters.csv")
	require.NoError(t, os.WriteFile(p, []byte(sampleCSV), 0o600))

	ds, err := Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p, ds.Source)
	assert.Equal(t, []string{"A", "B"}, ds.Categories)
	assert.Len(t, ds.Rows, 3)

	_, err = Load(context.Background(), filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
}

func TestLoadHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/voters.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	ds, err := Load(context.Background(), srv.URL+"/data/voters.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ds.Categories)

	_, err = Load(context.Background(), srv.URL+"/data/other.csv")
	require.ErrorIs(t, err, ErrHTTPStatus)
}

func TestLoadHTTPRevalidatesCache(t *testing.T) {
	var full, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		full.Add(1)
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	loader := NewLoader()
	loader.Cache = cache.NewStore(t.TempDir())
	source := srv.URL + "/voters.csv"

	first, err := loader.Load(context.Background(), source)
	require.NoError(t, err)
	assert.True(t, loader.Cache.Exists(source))

	second, err := loader.Load(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, int32(1), full.Load())
	assert.Equal(t, int32(1), notModified.Load())
}

func TestLoadXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	values := [][]any{
		{"province", "municipality", "change_from_2019"},
		{"A", "X", 100},
		{"A", "Y", -50},
		{"B", "Z", "n/a"},
	}
	for i, row := range values {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	p := filepath.Join(t.TempDir(), "voters.xlsx")
	require.NoError(t, f.SaveAs(p))

	ds, err := Load(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, ds.Rows, 3)
	assert.Equal(t, 100.0, ds.Rows[0].ChangeFrom2019)
	assert.Equal(t, -50.0, ds.Rows[1].ChangeFrom2019)
	assert.True(t, math.IsNaN(ds.Rows[2].ChangeFrom2019))
}

func TestEncodeCSVRoundTrip(t *testing.T) {
	rows, err := ParseDelimited(strings.NewReader(sampleCSV), ',')
	require.NoError(t, err)

	out, err := EncodeCSV(rows)
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, string(out))
}
