package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"open-dio/models"
)

// CSVWriter writes rows under a fixed header to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string, header []string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRows appends rows and flushes.
func (c *CSVWriter) WriteRows(rows [][]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, row := range rows {
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// MultiplierCSV exports a published table as one row per sector with a
// total and a direct column per impact category.
type MultiplierCSV struct {
	path string
}

// NewMultiplierCSV creates an exporter writing to path.
func NewMultiplierCSV(path string) *MultiplierCSV {
	return &MultiplierCSV{path: path}
}

func (m *MultiplierCSV) Write(_ context.Context, pub *Publication) error {
	header := []string{"sector_code", "name", "low_confidence"}
	for _, ic := range pub.Categories {
		header = append(header, ic.Key, ic.Key+"_direct")
	}

	w, err := NewCSVWriter(m.path, header)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(pub.Table))
	for _, code := range pub.Table.Codes() {
		s := pub.Table[code]
		row := []string{code, s.Name, strconv.FormatBool(s.LowConfidence)}
		for _, ic := range pub.Categories {
			row = append(row, formatFloat(s.Values[ic.Code]), formatFloat(s.Direct[ic.Code]))
		}
		rows = append(rows, row)
	}

	if err := w.WriteRows(rows); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (m *MultiplierCSV) Close() error { return nil }

// WriteUnclassifiedCSV writes every unclassified flow with its reason, for
// curating the classification table.
func WriteUnclassifiedCSV(path string, b models.UnclassifiedBucket) error {
	w, err := NewCSVWriter(path, []string{"line", "process_id", "flow_name", "context", "amount", "unit", "reason"})
	if err != nil {
		return err
	}

	entries := append([]models.UnclassifiedSample(nil), b.Entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Record.Line < entries[j].Record.Line })

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		r := e.Record
		rows = append(rows, []string{
			strconv.Itoa(r.Line), r.ProcessID, r.FlowName, r.Context,
			formatFloat(r.Amount), r.Unit, string(e.Reason),
		})
	}

	if err := w.WriteRows(rows); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
