// Package boundary queries the PostGIS import of OSM boundary polygons and
// the Scottish civil parish table.
package boundary

import (
	"encoding/json"
	"fmt"
)

// Polygon is one OSM area containing the queried point.
type Polygon struct {
	OSMID      int64   `json:"osm_id"`
	AdminLevel *int    `json:"admin_level"`
	Boundary   string  `json:"boundary,omitempty"`
	Tags       Tags    `json:"tags"`
	Area       float64 `json:"area"`
	GeoJSON    string  `json:"-"`
}

// IsRelation reports whether the polygon came from an OSM relation.
func (p Polygon) IsRelation() bool { return p.OSMID < 0 }

// OSMType is "relation" for negative ids, "way" otherwise.
func (p Polygon) OSMType() string {
	if p.IsRelation() {
		return "relation"
	}
	return "way"
}

// OSMURL links to the source element on openstreetmap.org.
func (p Polygon) OSMURL() string {
	id := p.OSMID
	if id < 0 {
		id = -id
	}
	return fmt.Sprintf("https://www.openstreetmap.org/%s/%d", p.OSMType(), id)
}

// Geometry returns the GeoJSON as raw JSON, or nil when none was loaded.
func (p Polygon) Geometry() json.RawMessage {
	if p.GeoJSON == "" {
		return nil
	}
	return json.RawMessage(p.GeoJSON)
}

// Qualifies reports whether the polygon passes the boundary filter: a
// political or place boundary, or any polygon with a numeric admin level.
func (p Polygon) Qualifies() bool {
	if p.AdminLevel != nil {
		return true
	}
	return p.Boundary == "political" || p.Boundary == "place"
}

// AreaSqKm is the area in square kilometres.
func (p Polygon) AreaSqKm() float64 { return p.Area / (1000 * 1000) }
