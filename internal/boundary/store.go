package boundary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrStorageUnavailable wraps every failure talking to the boundary database.
var ErrStorageUnavailable = errors.New("boundary store unavailable")

// ErrNotFound is returned by Polygon for an unknown osm_id.
var ErrNotFound = errors.New("polygon not found")

// Store runs point-in-polygon queries against the osm2pgsql import.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database handle.
func NewStore(d *gorm.DB) *Store {
	return &Store{db: d}
}

const polygonColumns = `
	osm_id,
	admin_level,
	COALESCE(boundary, ''),
	ST_Area(way::geography, false) AS area,
	tags`

// Polygons are candidates when they are political or place boundaries, or
// carry a numeric admin_level. Smallest area first, then the finer level;
// among equal areas a polygon without a numeric level sorts first, as
// Postgres orders NULLs in a descending sort.
const coordsWithinQuery = `
	SELECT` + polygonColumns + `
	FROM planet_osm_polygon
	WHERE (boundary IN ('political', 'place')
	       OR (admin_level IS NOT NULL AND admin_level ~ '^\d+$'))
	  AND ST_Within(ST_SetSRID(ST_MakePoint($1, $2), 4326), way)
	ORDER BY area,
	         CASE WHEN admin_level ~ '^\d+$' THEN CAST(admin_level AS integer) END DESC
`

// CoordsWithin returns the candidate polygons containing the point.
func (s *Store) CoordsWithin(ctx context.Context, lat, lon float64) ([]Polygon, error) {
	rows, err := s.db.WithContext(ctx).Raw(coordsWithinQuery, lon, lat).Rows()
	if err != nil {
		return nil, fmt.Errorf("%w: coords within query: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []Polygon
	for rows.Next() {
		p, err := scanPolygon(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate polygons: %v", ErrStorageUnavailable, err)
	}
	return out, nil
}

// Polygon fetches one polygon including its GeoJSON.
func (s *Store) Polygon(ctx context.Context, osmID int64) (*Polygon, error) {
	q := `SELECT` + polygonColumns + `, ST_AsGeoJSON(way, 6)
	FROM planet_osm_polygon
	WHERE osm_id = $1
	LIMIT 1`

	rows, err := s.db.WithContext(ctx).Raw(q, osmID).Rows()
	if err != nil {
		return nil, fmt.Errorf("%w: polygon query: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: polygon query: %v", ErrStorageUnavailable, err)
		}
		return nil, ErrNotFound
	}
	p, err := scanPolygon(rows, true)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GeoJSON returns the geometry of a single polygon.
func (s *Store) GeoJSON(ctx context.Context, osmID int64) (string, error) {
	var geojson sql.NullString
	err := s.db.WithContext(ctx).
		Raw(`SELECT ST_AsGeoJSON(way, 6) FROM planet_osm_polygon WHERE osm_id = $1 LIMIT 1`, osmID).
		Row().Scan(&geojson)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: geojson query: %v", ErrStorageUnavailable, err)
	}
	return geojson.String, nil
}

// ScotlandCode returns the code of the Scottish civil parish containing the
// point. The parish table is stored in British National Grid (EPSG:27700).
func (s *Store) ScotlandCode(ctx context.Context, lat, lon float64) (string, bool, error) {
	var code string
	err := s.db.WithContext(ctx).Raw(`
		SELECT code
		FROM scotland
		WHERE ST_Contains(geom, ST_Transform(ST_SetSRID(ST_MakePoint($1, $2), 4326), 27700))
		LIMIT 1
	`, lon, lat).Row().Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: scotland query: %v", ErrStorageUnavailable, err)
	}
	return code, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPolygon(rows scanner, withGeoJSON bool) (Polygon, error) {
	var (
		p          Polygon
		adminLevel sql.NullString
		rawTags    []byte
		geojson    sql.NullString
	)
	dest := []any{&p.OSMID, &adminLevel, &p.Boundary, &p.Area, &rawTags}
	if withGeoJSON {
		dest = append(dest, &geojson)
	}
	if err := rows.Scan(dest...); err != nil {
		return Polygon{}, fmt.Errorf("%w: scan polygon: %v", ErrStorageUnavailable, err)
	}

	tags, err := parseHstore(rawTags)
	if err != nil {
		return Polygon{}, fmt.Errorf("parse tags of %d: %w", p.OSMID, err)
	}
	p.Tags = ParseTags(tags)
	p.AdminLevel = parseAdminLevel(adminLevel.String)
	p.GeoJSON = geojson.String
	return p, nil
}
