package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

var testMapping = ColumnMapping{
	Street: "res_street_address",
	City:   "res_city",
	State:  "res_state",
	Zip:    "res_zip",
	Unit:   "res_unit",
}

const votersCSV = `res_street_address,res_city,res_state,res_zip,res_unit,total_reg_voters
123 Main St,Akron,OH,44301,,12
123 Main St,Akron,OH,44301,Apt 2,3
456 Oak Ave,Akron,OH,44302,,7
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVotersFromCSV(t *testing.T) {
	path := writeTempFile(t, "voters.csv", votersCSV)

	records, err := VotersFromCSV(path, testMapping)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "123 Main St", records[0].Street)
	assert.Equal(t, "Akron", records[0].City)
	assert.Equal(t, "OH", records[0].State)
	assert.Equal(t, "44301", records[0].Zip)
	assert.Empty(t, records[0].Unit)
	assert.Equal(t, "Apt 2", records[1].Unit)

	// Non-address columns survive in Fields.
	assert.Equal(t, "12", records[0].Fields["total_reg_voters"])
	assert.Equal(t, "7", records[2].Fields["total_reg_voters"])
}

func TestVotersFromCSV_MissingMappedColumn(t *testing.T) {
	path := writeTempFile(t, "voters.csv", "res_street_address,res_city\n1 Main St,Akron\n")

	_, err := VotersFromCSV(path, testMapping)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in header")
}

func TestVotersFromCSV_EmptyMapping(t *testing.T) {
	path := writeTempFile(t, "voters.csv", votersCSV)

	_, err := VotersFromCSV(path, ColumnMapping{Street: "res_street_address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no column mapped")
}

func writeVotersXLSX(t *testing.T) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("voters")
	require.NoError(t, err)

	rows := [][]string{
		{"res_street_address", "res_city", "res_state", "res_zip", "res_unit", "total_reg_voters"},
		{"123 Main St", "Akron", "OH", "44301", "", "12"},
		{"456 Oak Ave", "Akron", "OH", "44302", "Unit B", "7"},
	}
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}

	path := filepath.Join(t.TempDir(), "voters.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestVotersFromXLSX(t *testing.T) {
	path := writeVotersXLSX(t)

	records, err := VotersFromXLSX(path, testMapping, "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "456 Oak Ave", records[1].Street)
	assert.Equal(t, "Unit B", records[1].Unit)
	assert.Equal(t, "12", records[0].Fields["total_reg_voters"])
}

func TestVotersFromXLSX_SheetNotFound(t *testing.T) {
	path := writeVotersXLSX(t)

	_, err := VotersFromXLSX(path, testMapping, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "nope" not found`)
}
