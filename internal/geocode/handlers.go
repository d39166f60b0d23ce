package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/geocode/internal/boundary"
	"github.com/EmpoweredVote/geocode/internal/logger"
	"github.com/EmpoweredVote/geocode/internal/lookuplog"
	"github.com/EmpoweredVote/geocode/internal/middleware"
	"github.com/EmpoweredVote/geocode/internal/overpass"
)

// England bounding box used by /random.
const (
	englandSouth = 50.8520
	englandNorth = 53.7984
	englandWest  = -2.7296
	englandEast  = 0.3536
)

// PolygonLoader serves the polygon debugging views.
type PolygonLoader interface {
	CoordsWithin(ctx context.Context, lat, lon float64) ([]boundary.Polygon, error)
	Polygon(ctx context.Context, osmID int64) (*boundary.Polygon, error)
}

// ElementSource returns the OSM elements enclosing a point.
type ElementSource interface {
	IsIn(ctx context.Context, lat, lon float64) ([]overpass.Element, error)
}

// LookupRecorder persists lookups and server errors.
type LookupRecorder interface {
	Record(ctx context.Context, e lookuplog.Entry) error
	RecordError(ctx context.Context, errType, message, trace string, info map[string]any) error
	Report(ctx context.Context, limit int) (*lookuplog.Report, error)
}

// Handlers holds the dependencies of the HTTP surface.
type Handlers struct {
	resolver *Resolver
	polygons PolygonLoader
	elements ElementSource
	recorder LookupRecorder
	samples  []Sample
	random   func() float64
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a lookup failure onto an HTTP status.
func statusFor(err error) int {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, boundary.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, boundary.ErrStorageUnavailable), errors.Is(err, lookuplog.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	// Wikidata, Overpass and transport failures.
	return http.StatusBadGateway
}

// fail writes an error payload. Server-side failures are also stored in the
// error log.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err))
		info := map[string]any{
			"url":         r.URL.String(),
			"args":        r.URL.Query(),
			"remote_addr": lookuplog.RemoteAddr(r),
			"status":      status,
		}
		if rc := chi.RouteContext(r.Context()); rc != nil {
			info["endpoint"] = rc.RoutePattern()
		}
		if rerr := h.recorder.RecordError(context.WithoutCancel(r.Context()), "ERROR", err.Error(), "", info); rerr != nil {
			logger.L().Warn("error log write failed", zap.Error(rerr))
		}
	}
	writeJSONStatus(w, status, map[string]string{"error": err.Error()})
}

func coordinateFromQuery(r *http.Request) (Coordinate, error) {
	q := r.URL.Query()
	return ParseCoordinate(q.Get("lat"), q.Get("lon"))
}

// Lookup resolves ?lat=&lon= and records the lookup. Without parameters it
// lists the sample locations.
func (h *Handlers) Lookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("lat") == "" && q.Get("lon") == "" {
		writeJSON(w, map[string]any{"samples": h.samples})
		return
	}

	c, err := coordinateFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	start := time.Now()
	resp, err := h.resolver.Resolve(r.Context(), c.Lat, c.Lon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	elapsed := time.Since(start)

	if resp.Result.Outcome != OutcomeQueryError {
		stored, err := resp.Result.LogJSON()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		entry := lookuplog.EntryFromRequest(r, c.Lat, c.Lon, stored, elapsed)
		if err := h.recorder.Record(r.Context(), entry); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	writeJSON(w, resp.Result)
}

// Random resolves a random point in England.
func (h *Handlers) Random(w http.ResponseWriter, r *http.Request) {
	lat := englandSouth + h.random()*(englandNorth-englandSouth)
	lon := englandWest + h.random()*(englandEast-englandWest)

	resp, err := h.resolver.Resolve(r.Context(), lat, lon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{
		"lat":      lat,
		"lon":      lon,
		"result":   resp.Result,
		"elements": resp.Elements,
	})
}

type polygonView struct {
	OSMID      int64             `json:"osm_id"`
	OSMURL     string            `json:"osm_url"`
	AdminLevel *int              `json:"admin_level"`
	Boundary   string            `json:"boundary,omitempty"`
	AreaSqKm   float64           `json:"area_sq_km"`
	Tags       map[string]string `json:"tags"`
	GeoJSON    json.RawMessage   `json:"geojson,omitempty"`
}

func viewOf(p boundary.Polygon) polygonView {
	return polygonView{
		OSMID:      p.OSMID,
		OSMURL:     p.OSMURL(),
		AdminLevel: p.AdminLevel,
		Boundary:   p.Boundary,
		AreaSqKm:   p.AreaSqKm(),
		Tags:       p.Tags.Map(),
		GeoJSON:    p.Geometry(),
	}
}

// WikidataTag shows every candidate polygon with its tags next to the
// resolution, for debugging OSM tagging.
func (h *Handlers) WikidataTag(w http.ResponseWriter, r *http.Request) {
	c, err := coordinateFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	polygons, err := h.polygons.CoordsWithin(r.Context(), c.Lat, c.Lon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]polygonView, 0, len(polygons))
	for _, p := range polygons {
		views = append(views, viewOf(p))
	}

	resp, err := h.resolver.Resolve(r.Context(), c.Lat, c.Lon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{
		"coords":   c,
		"polygons": views,
		"result":   resp.Result,
	})
}

// Detail returns the resolution together with the Overpass is_in elements.
func (h *Handlers) Detail(w http.ResponseWriter, r *http.Request) {
	c, err := coordinateFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := h.resolver.Resolve(r.Context(), c.Lat, c.Lon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	elements, err := h.elements.IsIn(r.Context(), c.Lat, c.Lon)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if elements == nil {
		elements = []overpass.Element{}
	}
	writeJSON(w, map[string]any{
		"coords":       c,
		"result":       resp.Result,
		"elements":     resp.Elements,
		"osm_elements": elements,
	})
}

// Polygon returns one polygon with its geometry.
func (h *Handlers) Polygon(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "osm_id"), 10, 64)
	if err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "invalid osm_id"})
		return
	}
	p, err := h.polygons.Polygon(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, viewOf(*p))
}

// Reports summarises the lookup log. Admin only.
func (h *Handlers) Reports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if admin, ok := middleware.AdminFromContext(r.Context()); ok {
		logger.L().Info("lookup report requested", zap.String("admin", admin), zap.Int("limit", limit))
	}
	rep, err := h.recorder.Report(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, rep)
}

// Samples lists the sample locations.
func (h *Handlers) Samples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.samples)
}

func defaultRandom() float64 { return rand.Float64() }
