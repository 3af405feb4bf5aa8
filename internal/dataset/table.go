package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Table is a parsed CSV file: one header row and string cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// Cell returns the trimmed value at (row, col) or "" when col is out of range.
func (t *Table) Cell(row, col int) string {
	if col < 0 || row < 0 || row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// ReadTableFile reads the CSV table at path. A file that cannot be opened
// is a configuration error.
func ReadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, configErrorf("open table %q: %v", path, err)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("read table %q: %w", path, err)
	}
	return t, nil
}

// ReadTable parses CSV with a header row. Ragged rows are accepted.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, schemaErrorf("table is empty")
		}
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Header: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Columns holds resolved header indexes; -1 means absent.
type Columns struct {
	Title    int
	Image    int
	Calories int
}

var (
	TitleCandidates    = []string{"title", "name", "dish", "recipe"}
	ImageCandidates    = []string{"image_name", "imagename", "image", "image_id", "file_name", "filename"}
	CaloriesCandidates = []string{"calories", "calorie", "energy", "kcal"}
)

// ResolveColumns maps the header to the title, image and calories columns.
// Calories is optional.
func ResolveColumns(header []string) (Columns, error) {
	cols := Columns{
		Title:    findColumn(header, TitleCandidates),
		Image:    findColumn(header, ImageCandidates),
		Calories: findColumn(header, CaloriesCandidates),
	}

	var missing []string
	if cols.Title < 0 {
		missing = append(missing, "title")
	}
	if cols.Image < 0 {
		missing = append(missing, "image")
	}
	if len(missing) > 0 {
		return cols, schemaErrorf("required columns %v not found in %v", missing, header)
	}
	return cols, nil
}

// findColumn tries an exact case-insensitive match in candidate order, then a
// substring match scanning the header in order.
func findColumn(header []string, candidates []string) int {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(h)
	}

	for _, c := range candidates {
		for i, h := range lower {
			if h == c {
				return i
			}
		}
	}

	for i, h := range lower {
		for _, c := range candidates {
			if strings.Contains(h, c) {
				return i
			}
		}
	}
	return -1
}

// ParseCalories reads a calorie cell. Empty and non-numeric cells are unknown.
func ParseCalories(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}
	cell = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(cell), "kcal"))
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
