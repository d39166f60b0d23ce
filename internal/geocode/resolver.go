package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EmpoweredVote/geocode/internal/boundary"
	"github.com/EmpoweredVote/geocode/internal/logger"
	"github.com/EmpoweredVote/geocode/internal/metrics"
	"github.com/EmpoweredVote/geocode/internal/wikidata"
)

const (
	// CityOfLondon is tagged admin_level=6 in OSM and must not be refined
	// into whatever settlement geosearch finds nearby.
	CityOfLondon = "Q23311"

	// Results coarser than this admin level are refined with geosearch.
	refineBelowAdminLevel = 7
)

// PolygonStore is the boundary database.
type PolygonStore interface {
	CoordsWithin(ctx context.Context, lat, lon float64) ([]boundary.Polygon, error)
	ScotlandCode(ctx context.Context, lat, lon float64) (string, bool, error)
	GeoJSON(ctx context.Context, osmID int64) (string, error)
}

// KnowledgeBase is the subset of the Wikidata client the resolver uses.
type KnowledgeBase interface {
	QIDToCommonsCategory(ctx context.Context, qid string) (string, error)
	LookupScottishParish(ctx context.Context, code string) ([]wikidata.Row, error)
	LookupGSS(ctx context.Context, gss string) ([]wikidata.Row, error)
	LookupByName(ctx context.Context, name string, lat, lon float64) ([]wikidata.Row, error)
	Geosearch(ctx context.Context, lat, lon float64) (wikidata.Row, bool, error)
}

// Response is a result plus the candidate polygons it was chosen from.
type Response struct {
	Result   *Result            `json:"result"`
	Elements []boundary.Polygon `json:"elements"`
}

// Resolver runs the lookup pipeline. It holds no per-request state.
type Resolver struct {
	store PolygonStore
	kb    KnowledgeBase
}

// NewResolver wires the pipeline to its stores.
func NewResolver(store PolygonStore, kb KnowledgeBase) *Resolver {
	return &Resolver{store: store, kb: kb}
}

// match is a knowledge base hit and the polygon it came from, if any.
type match struct {
	hit     *wikidata.Hit
	polygon *boundary.Polygon
}

// Resolve finds the Wikidata item and Commons category for a point.
//
// An out-of-range coordinate returns a *ValidationError before any query
// runs. A failed SPARQL query becomes an error Result. Storage, entity API
// and transport failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) (*Response, error) {
	c := Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := r.resolve(ctx, c)
	metrics.ResolutionDurationMs.Observe(float64(time.Since(start).Milliseconds()))

	var qErr *wikidata.QueryError
	if errors.As(err, &qErr) {
		logger.L().Warn("wikidata query failed",
			zap.Float64("lat", lat), zap.Float64("lon", lon),
			zap.Int("status", qErr.StatusCode))
		metrics.ResolutionsTotal.WithLabelValues(string(OutcomeQueryError)).Inc()
		return &Response{Result: QueryErrorResult(c, qErr), Elements: []boundary.Polygon{}}, nil
	}
	if err != nil {
		metrics.ResolutionsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.ResolutionsTotal.WithLabelValues(string(resp.Result.Outcome)).Inc()
	return resp, nil
}

func (r *Resolver) resolve(ctx context.Context, c Coordinate) (*Response, error) {
	scot, err := r.scotland(ctx, c)
	if err != nil {
		return nil, err
	}
	if scot != nil {
		return &Response{Result: scot, Elements: []boundary.Polygon{}}, nil
	}

	polygons, err := r.store.CoordsWithin(ctx, c.Lat, c.Lon)
	if err != nil {
		return nil, err
	}
	if polygons == nil {
		polygons = []boundary.Polygon{}
	}

	m, err := r.matchPolygons(ctx, c, polygons)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if m, err = r.singleWikidataTag(ctx, polygons); err != nil {
			return nil, err
		}
	}
	if m == nil {
		return &Response{Result: MissingResult(c), Elements: polygons}, nil
	}

	result, err := r.buildHit(ctx, c, m)
	if err != nil {
		return nil, err
	}
	resp := &Response{Result: result, Elements: polygons}

	if result.Wikidata == CityOfLondon {
		return resp, nil
	}
	if result.AdminLevel == nil || *result.AdminLevel >= refineBelowAdminLevel {
		return resp, nil
	}

	row, ok, err := r.kb.Geosearch(ctx, c.Lat, c.Lon)
	if err != nil {
		return nil, err
	}
	if !ok {
		return resp, nil
	}
	hit := wikidata.CommonsFromRows([]wikidata.Row{row})
	if hit == nil {
		return resp, nil
	}
	return &Response{Result: HitResult(c, hit), Elements: []boundary.Polygon{}}, nil
}

// scotland resolves through the Scottish civil parish table. A nil result
// with a nil error means the pipeline carries on with the OSM polygons.
func (r *Resolver) scotland(ctx context.Context, c Coordinate) (*Result, error) {
	code, ok, err := r.store.ScotlandCode(ctx, c.Lat, c.Lon)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := r.kb.LookupScottishParish(ctx, code)
	if err != nil {
		return nil, err
	}
	hit := wikidata.CommonsFromRows(rows)
	if hit == nil {
		return nil, nil
	}
	return HitResult(c, hit), nil
}

// matchPolygons walks the candidates in order and returns the first hit.
func (r *Resolver) matchPolygons(ctx context.Context, c Coordinate, polygons []boundary.Polygon) (*match, error) {
	for i := range polygons {
		p := &polygons[i]
		if !p.Qualifies() {
			continue
		}
		hit, err := r.matchPolygon(ctx, c, p)
		if err != nil {
			return nil, err
		}
		if hit != nil {
			return &match{hit: hit, polygon: p}, nil
		}
	}
	return nil, nil
}

func (r *Resolver) matchPolygon(ctx context.Context, c Coordinate, p *boundary.Polygon) (*wikidata.Hit, error) {
	switch {
	case p.Tags.Wikidata != "":
		cat, err := r.kb.QIDToCommonsCategory(ctx, p.Tags.Wikidata)
		if err != nil {
			return nil, err
		}
		if cat == "" {
			return nil, nil
		}
		return &wikidata.Hit{QID: p.Tags.Wikidata, CommonsCat: cat}, nil

	case p.Tags.GSS != "":
		rows, err := r.kb.LookupGSS(ctx, p.Tags.GSS)
		if err != nil {
			return nil, err
		}
		return wikidata.CommonsFromRows(rows), nil

	case p.Tags.Name != "":
		name := strings.TrimSuffix(p.Tags.Name, " CP")
		rows, err := r.kb.LookupByName(ctx, name, c.Lat, c.Lon)
		if err != nil {
			return nil, err
		}
		if len(rows) != 1 {
			return nil, nil
		}
		return wikidata.CommonsFromRows(rows), nil
	}
	return nil, nil
}

// singleWikidataTag is the last resort: when exactly one candidate carries a
// wikidata tag, that item is the answer even without a Commons category.
func (r *Resolver) singleWikidataTag(ctx context.Context, polygons []boundary.Polygon) (*match, error) {
	var tagged *boundary.Polygon
	for i := range polygons {
		if polygons[i].Tags.Wikidata == "" {
			continue
		}
		if tagged != nil {
			return nil, nil
		}
		tagged = &polygons[i]
	}
	if tagged == nil {
		return nil, nil
	}

	cat, err := r.kb.QIDToCommonsCategory(ctx, tagged.Tags.Wikidata)
	if err != nil {
		return nil, err
	}
	return &match{hit: &wikidata.Hit{QID: tagged.Tags.Wikidata, CommonsCat: cat}, polygon: tagged}, nil
}

// buildHit attaches the source polygon's level, id and geometry.
func (r *Resolver) buildHit(ctx context.Context, c Coordinate, m *match) (*Result, error) {
	result := HitResult(c, m.hit)
	if m.polygon == nil {
		return result, nil
	}
	p := m.polygon
	result.AdminLevel = p.AdminLevel
	id := p.OSMID
	result.Element = &id

	geojson := p.GeoJSON
	if geojson == "" {
		var err error
		geojson, err = r.store.GeoJSON(ctx, p.OSMID)
		if err != nil && !errors.Is(err, boundary.ErrNotFound) {
			return nil, err
		}
	}
	if geojson != "" {
		result.GeoJSON = json.RawMessage(geojson)
	}
	return result, nil
}
