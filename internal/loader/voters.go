// Package loader reads voter tables and drop-box locations from CSV, XLSX,
// and shapefile inputs.
package loader

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/civicsignal/ballotbox-cli/internal/address"
)

// ColumnMapping names the voter-table columns that hold the address parts.
// Unit is optional; the rest are required.
type ColumnMapping struct {
	Street string `mapstructure:"street"`
	City   string `mapstructure:"city"`
	State  string `mapstructure:"state"`
	Zip    string `mapstructure:"zip"`
	Unit   string `mapstructure:"unit"`
}

func (m ColumnMapping) required() map[string]string {
	return map[string]string{
		"street": m.Street,
		"city":   m.City,
		"state":  m.State,
		"zip":    m.Zip,
	}
}

// resolve validates the mapping against the header and returns a column
// name to index lookup for the full header.
func (m ColumnMapping) resolve(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for part, col := range m.required() {
		if col == "" {
			return nil, eris.Errorf("loader: no column mapped for %s", part)
		}
		if _, ok := index[col]; !ok {
			return nil, eris.Errorf("loader: %s column %q not found in header", part, col)
		}
	}
	if m.Unit != "" {
		if _, ok := index[m.Unit]; !ok {
			return nil, eris.Errorf("loader: unit column %q not found in header", m.Unit)
		}
	}
	return index, nil
}

func recordFromRow(header []string, index map[string]int, m ColumnMapping, row []string) address.Record {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	fields := make(map[string]string, len(header))
	for _, name := range header {
		fields[strings.TrimSpace(name)] = cell(strings.TrimSpace(name))
	}

	r := address.Record{
		Street: cell(m.Street),
		City:   cell(m.City),
		State:  cell(m.State),
		Zip:    cell(m.Zip),
		Fields: fields,
	}
	if m.Unit != "" {
		r.Unit = cell(m.Unit)
	}
	return r
}

// VotersFromCSV reads a voter table from a CSV file. The first row is the
// header and must contain every mapped column.
func VotersFromCSV(path string, mapping ColumnMapping) ([]address.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "loader: read csv header")
	}
	index, err := mapping.resolve(header)
	if err != nil {
		return nil, err
	}

	var records []address.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "loader: read csv row")
		}
		records = append(records, recordFromRow(header, index, mapping, row))
	}
	return records, nil
}

// VotersFromXLSX reads a voter table from the named sheet of an XLSX
// workbook, or from the first sheet when sheetName is empty.
func VotersFromXLSX(path string, mapping ColumnMapping, sheetName string) ([]address.Record, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open %s", path)
	}

	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("loader: sheet %q is empty", sheet.Name)
	}

	header := rowToStrings(sheet.Rows[0])
	index, err := mapping.resolve(header)
	if err != nil {
		return nil, err
	}

	var records []address.Record
	for _, row := range sheet.Rows[1:] {
		records = append(records, recordFromRow(header, index, mapping, rowToStrings(row)))
	}
	return records, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("loader: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("loader: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
