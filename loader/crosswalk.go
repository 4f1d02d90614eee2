package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"open-dio/models"
)

var crosswalkColumns = []string{"externalCodePrefix", "prefixLength", "internalSectorCode", "weight"}

// LoadCrosswalk reads crosswalk rows from a .csv, .json or .xlsx file.
func LoadCrosswalk(path string) ([]models.CrosswalkRow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return loadCrosswalkJSON(path)
	case ".xlsx", ".xlsm":
		return loadCrosswalkXLSX(path)
	default:
		t, err := readCSVFile(path)
		if err != nil {
			return nil, err
		}
		return crosswalkFromTable(t)
	}
}

func crosswalkFromTable(t *table) ([]models.CrosswalkRow, error) {
	cols, err := t.require(crosswalkColumns...)
	if err != nil {
		return nil, err
	}

	rows := make([]models.CrosswalkRow, 0, len(t.rows))
	for i, row := range t.rows {
		prefix := cell(row, cols[0])
		length := len(prefix)
		if raw := cell(row, cols[1]); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("loader: %s line %d: invalid prefixLength %q", t.name, t.lines[i], raw)
			}
			length = n
		}
		rows = append(rows, models.CrosswalkRow{
			ExternalCodePrefix: prefix,
			PrefixLength:       length,
			InternalSectorCode: cell(row, cols[2]),
			Weight:             parseAmount(cell(row, cols[3])),
			Line:               t.lines[i],
		})
	}
	return rows, nil
}

func loadCrosswalkJSON(path string) ([]models.CrosswalkRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %q: %w", path, err)
	}
	var rows []models.CrosswalkRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("loader: %s: %w", path, err)
	}
	for i := range rows {
		rows[i].Line = i + 1
		if rows[i].PrefixLength == 0 {
			rows[i].PrefixLength = len(rows[i].ExternalCodePrefix)
		}
	}
	return rows, nil
}

// loadCrosswalkXLSX reads the first sheet of a workbook; its first row is the header.
func loadCrosswalkXLSX(path string) ([]models.CrosswalkRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open workbook %q: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("loader: %s: workbook has no sheets", path)
	}
	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("loader: %s: read sheet %q: %w", path, sheets[0], err)
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("loader: %s: empty sheet %q", path, sheets[0])
	}

	t := newTable(path+"#"+sheets[0], grid[0])
	for i, row := range grid[1:] {
		if isBlank(row) {
			continue
		}
		t.rows = append(t.rows, row)
		t.lines = append(t.lines, i+2)
	}
	return crosswalkFromTable(t)
}
