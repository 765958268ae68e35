package pipeline

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsignal/ballotbox-cli/internal/address"
	"github.com/civicsignal/ballotbox-cli/internal/spatial"
)

// BuildingWeights turns joined rows into one weighted point per building,
// summing the weight column across rows that share a building. Rows whose
// building never resolved contribute no point; their weight is returned
// separately and belongs in the outside bucket.
func BuildingWeights(rows []JoinedRow, weightCol string) ([]spatial.WeightedPoint, float64, error) {
	points := make([]spatial.WeightedPoint, 0, len(rows))
	var unresolved int
	var unresolvedWeight float64
	for i, row := range rows {
		w, err := address.WeightOf(row.Record, weightCol)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "pipeline: row %d", i)
		}
		if row.Lat == nil || row.Lng == nil {
			unresolved++
			unresolvedWeight += w
			continue
		}
		points = append(points, spatial.WeightedPoint{
			BuildingID: row.Identity.BuildingID,
			Lat:        *row.Lat,
			Lng:        *row.Lng,
			Weight:     w,
		})
	}

	if unresolved > 0 {
		zap.L().Warn("counting unresolved rows as outside",
			zap.Int("unresolved", unresolved),
			zap.Float64("unresolved_weight", unresolvedWeight),
			zap.Int("total", len(rows)),
		)
	}
	return spatial.MergeByBuilding(points), unresolvedWeight, nil
}
