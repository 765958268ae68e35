package loader

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsignal/ballotbox-cli/pkg/traveltime"
)

// locationColumns are the accepted header names for the drop-box CSV, in
// priority order per field.
var locationColumns = map[string][]string{
	"id":  {"id", "name", "location"},
	"lat": {"lat", "latitude"},
	"lng": {"lng", "lon", "longitude"},
}

func locationIndex(header []string) (map[string]int, error) {
	lower := make(map[string]int, len(header))
	for i, name := range header {
		lower[strings.ToLower(strings.TrimSpace(name))] = i
	}
	index := make(map[string]int, len(locationColumns))
	for field, candidates := range locationColumns {
		found := -1
		for _, c := range candidates {
			if i, ok := lower[c]; ok {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, eris.Errorf("loader: no %s column in location header (accepted: %s)",
				field, strings.Join(locationColumns[field], ", "))
		}
		index[field] = found
	}
	return index, nil
}

// LocationsFromCSV reads drop-box locations from a CSV file with id, lat,
// and lng columns.
func LocationsFromCSV(path string) ([]traveltime.Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "loader: read location header")
	}
	index, err := locationIndex(header)
	if err != nil {
		return nil, err
	}

	var locations []traveltime.Location
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "loader: read location row")
		}

		// Short rows read as empty cells rather than panicking.
		cell := func(field string) string {
			i := index[field]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		id := cell("id")
		if id == "" {
			return nil, eris.New("loader: location row with empty id")
		}
		lat, err := strconv.ParseFloat(cell("lat"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: location %s: parse lat", id)
		}
		lng, err := strconv.ParseFloat(cell("lng"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: location %s: parse lng", id)
		}

		locations = append(locations, traveltime.Location{ID: id, Lat: lat, Lng: lng})
	}
	return locations, nil
}

// LocationsFromShapefile reads drop-box locations from a point shapefile.
// The attribute named by idField labels each location; records that are not
// points are skipped.
func LocationsFromShapefile(path, idField string) ([]traveltime.Location, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	idIdx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, idField) {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, eris.Errorf("loader: field %q not found in shapefile", idField)
	}

	var locations []traveltime.Location
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		point, ok := shape.(*shp.Point)
		if !ok {
			skipped++
			continue
		}

		id := strings.TrimSpace(strings.TrimRight(reader.Attribute(idIdx), "\x00"))
		if id == "" {
			skipped++
			continue
		}

		locations = append(locations, traveltime.Location{ID: id, Lat: point.Y, Lng: point.X})
	}

	if skipped > 0 {
		zap.L().Debug("loader: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return locations, nil
}
