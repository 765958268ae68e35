package traveltime

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// timeMapResponse is the JSON response from the time-map API.
type timeMapResponse struct {
	Results []timeMapResult `json:"results"`
}

type timeMapResult struct {
	SearchID string  `json:"search_id"`
	Shapes   []Shape `json:"shapes"`
}

// Shape is one polygon part: an outer boundary plus zero or more holes.
type Shape struct {
	Shell []LatLng   `json:"shell"`
	Holes [][]LatLng `json:"holes"`
}

// LatLng is one vertex as returned by the API.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// parseTimeMapPayload extracts the first result's shapes as a MultiPolygon.
// A response with no results or no shapes yields nil: the isochrone is
// affirmatively absent, not an error.
func parseTimeMapPayload(payload []byte) (*geom.MultiPolygon, error) {
	var resp timeMapResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, eris.Wrap(err, "traveltime: parse response")
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Shapes) == 0 {
		return nil, nil
	}
	return ShapesToMultiPolygon(resp.Results[0].Shapes)
}

// ShapesToMultiPolygon converts API shapes to a MultiPolygon in geographic
// coordinates. Ring order is preserved (shell first, then holes) and every
// vertex is emitted as (longitude, latitude).
func ShapesToMultiPolygon(shapes []Shape) (*geom.MultiPolygon, error) {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i, shape := range shapes {
		if len(shape.Shell) == 0 {
			continue
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ringFromPoints(shape.Shell)); err != nil {
			return nil, eris.Wrapf(err, "traveltime: shape %d shell", i)
		}
		for j, hole := range shape.Holes {
			if len(hole) == 0 {
				continue
			}
			if err := poly.Push(ringFromPoints(hole)); err != nil {
				return nil, eris.Wrapf(err, "traveltime: shape %d hole %d", i, j)
			}
		}

		if err := mp.Push(poly); err != nil {
			return nil, eris.Wrapf(err, "traveltime: shape %d", i)
		}
	}

	if mp.NumPolygons() == 0 {
		return nil, nil
	}
	return mp, nil
}

// ringFromPoints builds a closed linear ring in (lng, lat) order. The API
// does not repeat the first vertex, so the ring is closed here.
func ringFromPoints(points []LatLng) *geom.LinearRing {
	flat := make([]float64, 0, (len(points)+1)*2)
	for _, p := range points {
		flat = append(flat, p.Lng, p.Lat)
	}

	first := points[0]
	last := points[len(points)-1]
	if first.Lat != last.Lat || first.Lng != last.Lng {
		flat = append(flat, first.Lng, first.Lat)
	}

	return geom.NewLinearRingFlat(geom.XY, flat)
}
