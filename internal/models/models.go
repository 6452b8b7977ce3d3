package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// Row is one municipality record of the voter change dataset.
type Row struct {
	Province       string  `json:"province"`
	Municipality   string  `json:"municipality"`
	ChangeFrom2019 float64 `json:"change_from_2019"` // NaN when the source text was not numeric
}

// JSON spellings of infinite changes. NaN is written as null.
const (
	jsonPosInf = "Infinity"
	jsonNegInf = "-Infinity"
)

type rowJSON struct {
	Province       string          `json:"province"`
	Municipality   string          `json:"municipality"`
	ChangeFrom2019 json.RawMessage `json:"change_from_2019"`
}

// MarshalJSON writes non-numeric changes as null and infinite ones as the
// strings "Infinity" and "-Infinity", which encoding/json cannot represent
// as numbers.
func (r Row) MarshalJSON() ([]byte, error) {
	var change any
	switch v := r.ChangeFrom2019; {
	case math.IsNaN(v):
		change = nil
	case math.IsInf(v, 1):
		change = jsonPosInf
	case math.IsInf(v, -1):
		change = jsonNegInf
	default:
		change = v
	}
	raw, err := json.Marshal(change)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rowJSON{r.Province, r.Municipality, raw})
}

// UnmarshalJSON reverses MarshalJSON. A missing change reads as NaN.
func (r *Row) UnmarshalJSON(data []byte) error {
	var aux rowJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Province, r.Municipality = aux.Province, aux.Municipality
	r.ChangeFrom2019 = math.NaN()

	raw := aux.ChangeFrom2019
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		switch s {
		case jsonPosInf:
			r.ChangeFrom2019 = math.Inf(1)
		case jsonNegInf:
			r.ChangeFrom2019 = math.Inf(-1)
		default:
			return fmt.Errorf("invalid change_from_2019 %q", s)
		}
		return nil
	}
	return json.Unmarshal(raw, &r.ChangeFrom2019)
}

// Dataset is the immutable result of loading a data source.
type Dataset struct {
	Source     string   `json:"source"`
	Rows       []Row    `json:"rows"`
	Categories []string `json:"categories"` // Unique provinces in first-seen order
}

// NewDataset builds a Dataset and derives its category set from rows.
func NewDataset(source string, rows []Row) *Dataset {
	return &Dataset{
		Source:     source,
		Rows:       rows,
		Categories: Categories(rows),
	}
}

// Categories returns the unique provinces of rows in first-seen order.
func Categories(rows []Row) []string {
	seen := make(map[string]struct{}, len(rows))
	categories := make([]string, 0)
	for _, r := range rows {
		if _, ok := seen[r.Province]; ok {
			continue
		}
		seen[r.Province] = struct{}{}
		categories = append(categories, r.Province)
	}
	return categories
}

// Filter returns the rows whose province equals category, in their original order.
func Filter(rows []Row, category string) []Row {
	filtered := make([]Row, 0)
	for _, r := range rows {
		if r.Province == category {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// HasCategory reports whether category is part of the dataset's category set.
func (d *Dataset) HasCategory(category string) bool {
	for _, c := range d.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// DefaultCategory is the initial selection: the first category, or "" when empty.
func (d *Dataset) DefaultCategory() string {
	if len(d.Categories) == 0 {
		return ""
	}
	return d.Categories[0]
}
