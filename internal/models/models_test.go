package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []Row {
	return []Row{
		{Province: "A", Municipality: "X", ChangeFrom2019: 100},
		{Province: "B", Municipality: "Z", ChangeFrom2019: 0},
		{Province: "A", Municipality: "Y", ChangeFrom2019: -50},
		{Province: "C", Municipality: "W", ChangeFrom2019: 7},
		{Province: "B", Municipality: "V", ChangeFrom2019: 3},
	}
}

func TestCategoriesFirstSeenOrder(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, Categories(sampleRows()))
	assert.Empty(t, Categories(nil))
}

func TestFilterPreservesOrder(t *testing.T) {
	rows := sampleRows()

	a := Filter(rows, "A")
	assert.Equal(t, []Row{rows[0], rows[2]}, a)

	b := Filter(rows, "B")
	assert.Equal(t, []Row{rows[1], rows[4]}, b)

	assert.Empty(t, Filter(rows, "missing"))
}

func TestFilterYieldsExactlyMatchingRows(t *testing.T) {
	rows := sampleRows()
	for _, c := range Categories(rows) {
		got := Filter(rows, c)
		count := 0
		for _, r := range rows {
			if r.Province == c {
				count++
			}
		}
		assert.Len(t, got, count, "category %s", c)
		for _, r := range got {
			assert.Equal(t, c, r.Province)
		}
	}
}

func TestDatasetDefaults(t *testing.T) {
	ds := NewDataset("mem", sampleRows())
	assert.Equal(t, "A", ds.DefaultCategory())
	assert.True(t, ds.HasCategory("C"))
	assert.False(t, ds.HasCategory("D"))

	empty := NewDataset("mem", nil)
	assert.Equal(t, "", empty.DefaultCategory())
}

func TestRowJSONNonFinite(t *testing.T) {
	data, err := json.Marshal([]Row{
		{Province: "A", Municipality: "X", ChangeFrom2019: -5},
		{Province: "A", Municipality: "Bad", ChangeFrom2019: math.NaN()},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"province":"A","municipality":"X","change_from_2019":-5},
		{"province":"A","municipality":"Bad","change_from_2019":null}
	]`, string(data))

	var back []Row
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, -5.0, back[0].ChangeFrom2019)
	assert.True(t, math.IsNaN(back[1].ChangeFrom2019))
}

func TestRowJSONInfinityRoundTrips(t *testing.T) {
	rows := []Row{
		{Province: "A", Municipality: "Up", ChangeFrom2019: math.Inf(1)},
		{Province: "A", Municipality: "Down", ChangeFrom2019: math.Inf(-1)},
	}
	data, err := json.Marshal(rows)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"province":"A","municipality":"Up","change_from_2019":"Infinity"},
		{"province":"A","municipality":"Down","change_from_2019":"-Infinity"}
	]`, string(data))

	var back []Row
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsInf(back[0].ChangeFrom2019, 1))
	assert.True(t, math.IsInf(back[1].ChangeFrom2019, -1))
}

func TestRowJSONRejectsUnknownString(t *testing.T) {
	var r Row
	err := json.Unmarshal([]byte(`{"province":"A","municipality":"X","change_from_2019":"lots"}`), &r)
	require.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"province":"A","municipality":"X"}`), &r))
	assert.True(t, math.IsNaN(r.ChangeFrom2019))
}
