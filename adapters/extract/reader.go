package extract

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"buurtstat/domain/frame"

	"github.com/xuri/excelize/v2"
)

// TableReader reads a raw tabular file (CSV or XLSX) into a Frame.
// Column types are inferred: a column whose every non-empty cell parses
// as a number becomes numeric, anything else stays a string column.
type TableReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewTableReader creates a reader that handles both Excel and CSV files
func NewTableReader(filePath string) *TableReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "csv"
	if ext == ".xlsx" || ext == ".xls" {
		fileType = "xlsx"
	}
	return &TableReader{filePath: filePath, fileType: fileType}
}

// Read loads the file into a header row plus data rows
func (r *TableReader) Read() ([]string, [][]string, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSV()
	case "xlsx":
		return r.readExcel()
	default:
		return nil, nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

func (r *TableReader) readCSV() ([]string, [][]string, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", r.filePath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", r.filePath, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty file: %s", r.filePath)
	}
	return records[0], records[1:], nil
}

func (r *TableReader) readExcel() ([]string, [][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", r.filePath, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("no sheets in %s", r.filePath)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("empty sheet in %s", r.filePath)
	}
	return rows[0], rows[1:], nil
}

// ToFrame converts header+rows into a typed Frame. forceString lists
// columns kept as strings even when their cells look numeric (geographic
// codes lose leading zeros when coerced).
func ToFrame(header []string, rows [][]string, forceString map[string]bool) (*frame.Frame, error) {
	f := frame.New(len(rows))

	for col, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		cells := make([]string, len(rows))
		for i, row := range rows {
			if col < len(row) {
				cells[i] = strings.TrimSpace(row[col])
			}
		}

		if forceString[name] || !allNumeric(cells) {
			if err := f.AddString(name, cells, nil); err != nil {
				return nil, err
			}
			continue
		}

		vals := make([]float64, len(cells))
		for i, cell := range cells {
			vals[i] = parseCell(cell)
		}
		if err := f.AddNumeric(name, vals); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func allNumeric(cells []string) bool {
	sawValue := false
	for _, cell := range cells {
		if cell == "" || cell == "." || strings.EqualFold(cell, "nan") {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
		sawValue = true
	}
	return sawValue
}

func parseCell(cell string) float64 {
	if cell == "" || cell == "." || strings.EqualFold(cell, "nan") {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
