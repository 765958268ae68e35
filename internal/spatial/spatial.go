// Package spatial aggregates weighted voter points against travel-time
// coverage zones.
package spatial

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// WeightedPoint is one geocoded building with its aggregated voter weight.
type WeightedPoint struct {
	BuildingID string
	Lat        float64
	Lng        float64
	Weight     float64
}

// Summary is the result of classifying every point as within or outside the
// union of the coverage zones.
type Summary struct {
	WithinWeight  float64
	OutsideWeight float64
	TotalWeight   float64
	WithinShare   float64
	OutsideShare  float64
	WithinCount   int
	OutsideCount  int
}

// RollupRow is one line of the two-row within/outside report.
type RollupRow struct {
	Status string
	Weight float64
	Share  float64
}

// MergeByBuilding sums the weights of points that share a building id. The
// first occurrence fixes the coordinates and the output order.
func MergeByBuilding(points []WeightedPoint) []WeightedPoint {
	merged := make([]WeightedPoint, 0, len(points))
	index := make(map[string]int, len(points))
	for _, p := range points {
		if i, ok := index[p.BuildingID]; ok {
			merged[i].Weight += p.Weight
			continue
		}
		index[p.BuildingID] = len(merged)
		merged = append(merged, p)
	}
	return merged
}

// ContainsPoint reports whether the point at (lng, lat) lies strictly inside
// the multipolygon. Points on a shell or hole boundary are not inside.
func ContainsPoint(mp *geom.MultiPolygon, lng, lat float64) bool {
	if mp == nil {
		return false
	}
	p := geom.Coord{lng, lat}
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		shell := poly.LinearRing(0)
		if xy.LocatePointInRing(poly.Layout(), p, shell.FlatCoords()) != location.Interior {
			continue
		}
		inHole := false
		for j := 1; j < poly.NumLinearRings(); j++ {
			hole := poly.LinearRing(j)
			if xy.LocatePointInRing(poly.Layout(), p, hole.FlatCoords()) != location.Exterior {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// Summarize classifies each point against the zones and totals the weights.
// A point counts as within if any zone contains it; zones are checked in
// order and the scan stops at the first match. unresolvedWeight is the
// weight of rows that never got a point; it counts as outside so the shares
// keep the full voter table as their denominator.
func Summarize(points []WeightedPoint, zones []*geom.MultiPolygon, unresolvedWeight float64) (Summary, error) {
	if len(zones) == 0 {
		return Summary{}, eris.New("spatial: no coverage zones")
	}

	s := Summary{
		TotalWeight:   unresolvedWeight,
		OutsideWeight: unresolvedWeight,
	}
	for _, p := range points {
		s.TotalWeight += p.Weight
		within := false
		for _, z := range zones {
			if ContainsPoint(z, p.Lng, p.Lat) {
				within = true
				break
			}
		}
		if within {
			s.WithinWeight += p.Weight
			s.WithinCount++
		} else {
			s.OutsideWeight += p.Weight
			s.OutsideCount++
		}
	}

	if s.TotalWeight > 0 {
		s.WithinShare = s.WithinWeight / s.TotalWeight
		s.OutsideShare = s.OutsideWeight / s.TotalWeight
	}
	return s, nil
}

// Rollup renders the summary as the two-row within/outside report.
func (s Summary) Rollup() []RollupRow {
	return []RollupRow{
		{Status: "within", Weight: s.WithinWeight, Share: s.WithinShare},
		{Status: "outside", Weight: s.OutsideWeight, Share: s.OutsideShare},
	}
}
