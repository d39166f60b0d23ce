package wikidata

import (
	"context"
	"strconv"
)

const defaultMaxDistanceKm = 1.0

// maxDistanceKm caps how far a settlement of each type may be from the point.
var maxDistanceKm = map[string]float64{
	"Q188509":  1, // suburb
	"Q3957":    2, // town
	"Q532":     1, // village
	"Q5084":    1, // hamlet
	"Q515":     2, // city
	"Q1549591": 3, // big city
	"Q589282":  2, // ward or electoral division of the United Kingdom
}

// Geosearch returns the nearest settlement row that is close enough for its
// type and has Commons evidence. A close settlement of a known type without
// Commons evidence ends the search with no result.
func (c *Client) Geosearch(ctx context.Context, lat, lon float64) (Row, bool, error) {
	rows, err := c.GeosearchQuery(ctx, lat, lon)
	if err != nil {
		return nil, false, err
	}
	row, ok := PickGeosearchRow(rows)
	return row, ok, nil
}

// PickGeosearchRow applies the geosearch acceptance rules to rows sorted by
// distance.
func PickGeosearchRow(rows []Row) (Row, bool) {
	for _, row := range rows {
		isa, err := QIDFromURI(row["isa"].Value)
		if err != nil {
			continue
		}
		hasCommons := row.Has("commonsCat") || row.Has("commonsSiteLink")
		limit, known := maxDistanceKm[isa]

		if !hasCommons && !known {
			continue
		}
		if !known {
			limit = defaultMaxDistanceKm
		}

		distance, err := strconv.ParseFloat(row["distance"].Value, 64)
		if err != nil || distance > limit {
			continue
		}

		if !hasCommons {
			break
		}
		return row, true
	}
	return nil, false
}
