// Package loader reads the engine's build inputs and calculation requests
// from CSV, JSON and XLSX files.
package loader

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

// table is a parsed delimited file with a case-insensitive header.
type table struct {
	name    string
	columns map[string]int
	rows    [][]string
	lines   []int
}

// normaliseHeader makes "Sector Code", "sector_code" and "sectorCode" equal.
func normaliseHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "_", "")
	h = strings.ReplaceAll(h, " ", "")
	return h
}

func newTable(name string, header []string) *table {
	t := &table{name: name, columns: make(map[string]int, len(header))}
	for i, h := range header {
		t.columns[normaliseHeader(h)] = i
	}
	return t
}

func readCSVFile(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %q: %w", path, err)
	}
	defer f.Close()
	return readCSV(path, f)
}

func readCSV(name string, r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("loader: %s: empty file", name)
	}
	if err != nil {
		return nil, fmt.Errorf("loader: %s: read header: %w", name, err)
	}

	t := newTable(name, header)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loader: %s: %w", name, err)
		}
		line, _ := cr.FieldPos(0)
		if isBlank(rec) {
			continue
		}
		t.rows = append(t.rows, rec)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// require returns the column index for each name, failing on the first missing one.
func (t *table) require(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		c, ok := t.columns[normaliseHeader(n)]
		if !ok {
			return nil, fmt.Errorf("loader: %s: missing column %q", t.name, n)
		}
		idx[i] = c
	}
	return idx, nil
}

// optional returns the column index or -1.
func (t *table) optional(name string) int {
	if c, ok := t.columns[normaliseHeader(name)]; ok {
		return c
	}
	return -1
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// parseAmount parses a number, tolerating thousands separators and a leading
// "$". Unparseable values become NaN so downstream validation can count them.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y":
		return true, true
	case "0", "false", "f", "no", "n":
		return false, true
	}
	return false, false
}
