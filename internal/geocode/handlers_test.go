package geocode_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/EmpoweredVote/geocode/internal/boundary"
	"github.com/EmpoweredVote/geocode/internal/geocode"
	"github.com/EmpoweredVote/geocode/internal/logger"
	"github.com/EmpoweredVote/geocode/internal/lookuplog"
	"github.com/EmpoweredVote/geocode/internal/middleware"
	"github.com/EmpoweredVote/geocode/internal/overpass"
	"github.com/EmpoweredVote/geocode/internal/wikidata"
)

type loaderStore struct {
	*mockStore
}

func (l loaderStore) Polygon(_ context.Context, osmID int64) (*boundary.Polygon, error) {
	for _, p := range l.polygons {
		if p.OSMID == osmID {
			return &p, nil
		}
	}
	return nil, boundary.ErrNotFound
}

type mockRecorder struct {
	entries   []lookuplog.Entry
	errors    []string
	recordErr error
}

func (m *mockRecorder) Record(_ context.Context, e lookuplog.Entry) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRecorder) RecordError(_ context.Context, errType, message, _ string, _ map[string]any) error {
	m.errors = append(m.errors, errType+": "+message)
	return nil
}

func (m *mockRecorder) Report(context.Context, int) (*lookuplog.Report, error) {
	return &lookuplog.Report{Total: 3}, nil
}

type mockElements struct{}

func (mockElements) IsIn(context.Context, float64, float64) ([]overpass.Element, error) {
	return []overpass.Element{{Type: "relation", ID: 62149, Tags: map[string]string{"name": "United Kingdom"}}}, nil
}

type denyAll struct{}

func (denyAll) CheckAdmin(string, string) error { return middleware.ErrBadCredentials }

type allowAdmin struct{}

func (allowAdmin) CheckAdmin(user, _ string) error {
	if user != "admin" {
		return middleware.ErrBadCredentials
	}
	return nil
}

func newServer(t *testing.T, store *mockStore, kb *mockKB, rec *mockRecorder) http.Handler {
	t.Helper()
	h, err := geocode.SetupRoutes(geocode.Deps{
		Resolver: geocode.NewResolver(store, kb),
		Polygons: loaderStore{store},
		Elements: mockElements{},
		Recorder: rec,
		Admin:    denyAll{},
		Random:   func() float64 { return 0.5 },
	})
	if err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	return h
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.10:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func hitStore() *mockStore {
	return &mockStore{polygons: []boundary.Polygon{
		{OSMID: 42, AdminLevel: level(10), Tags: boundary.Tags{Wikidata: "Q1", Name: "Ely"}},
	}}
}

// TestLookup_NoParamsListsSamples verifies that / without coordinates lists the
// samples.
func TestLookup_NoParamsListsSamples(t *testing.T) {
	h := newServer(t, &mockStore{}, &mockKB{}, &mockRecorder{})

	rec := get(h, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Samples []geocode.Sample `json:"samples"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Samples) == 0 || body.Samples[0].Name != "Adur" {
		t.Errorf("unexpected samples %+v", body.Samples)
	}
}

// TestLookup_RecordsHit verifies that a hit is logged with the forwarded client
// address and without polygon data.
func TestLookup_RecordsHit(t *testing.T) {
	rec := &mockRecorder{}
	h := newServer(t, hitStore(), &mockKB{commons: map[string]string{"Q1": "Ely"}}, rec)

	resp := get(h, "/?lat=52.387&lon=0.294")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"element":42`) {
		t.Errorf("response should carry the element: %s", resp.Body.String())
	}
	if len(rec.entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(rec.entries))
	}
	e := rec.entries[0]
	if e.RemoteAddr != "198.51.100.7" || e.Lat != 52.387 || e.Lon != 0.294 {
		t.Errorf("unexpected entry %+v", e)
	}
	if strings.Contains(string(e.Result), "element") || strings.Contains(string(e.Result), "geojson") {
		t.Errorf("stored result should not carry polygon data: %s", e.Result)
	}
}

// TestLookup_InvalidCoordinate verifies that bad coordinates get a 400 and
// never reach the stores.
func TestLookup_InvalidCoordinate(t *testing.T) {
	store := &mockStore{}
	rec := &mockRecorder{}
	h := newServer(t, store, &mockKB{}, rec)

	for _, target := range []string{"/?lat=91&lon=0", "/?lat=0&lon=-181", "/?lat=abc&lon=0"} {
		resp := get(h, target)
		if resp.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, resp.Code)
		}
	}
	if store.coordsCalls != 0 || len(rec.entries) != 0 || len(rec.errors) != 0 {
		t.Errorf("invalid input must not reach the stores: %d %v %v", store.coordsCalls, rec.entries, rec.errors)
	}
}

// TestLookup_QueryErrorIsNotRecorded verifies that a query error is returned
// but not logged.
func TestLookup_QueryErrorIsNotRecorded(t *testing.T) {
	store := &mockStore{polygons: []boundary.Polygon{
		{OSMID: 1, AdminLevel: level(10), Tags: boundary.Tags{GSS: "E04000001"}},
	}}
	rec := &mockRecorder{}
	kb := &mockKB{err: &wikidata.QueryError{Query: "SELECT 1", Body: "oops"}}
	h := newServer(t, store, kb, rec)

	resp := get(h, "/?lat=52&lon=-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"query_url":"https://query.wikidata.org/#SELECT%201"`) {
		t.Errorf("unexpected body %s", resp.Body.String())
	}
	if len(rec.entries) != 0 {
		t.Errorf("query errors must not be logged, got %d entries", len(rec.entries))
	}
}

// TestLookup_LogOutageIsServiceUnavailable verifies that a failed log write is
// a 503.
func TestLookup_LogOutageIsServiceUnavailable(t *testing.T) {
	rec := &mockRecorder{recordErr: lookuplog.ErrStorageUnavailable}
	h := newServer(t, hitStore(), &mockKB{commons: map[string]string{"Q1": "Ely"}}, rec)

	resp := get(h, "/?lat=52.387&lon=0.294")
	if resp.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.Code)
	}
}

// TestLookup_StoreOutageIsRecorded verifies that a store outage lands in the
// error log.
func TestLookup_StoreOutageIsRecorded(t *testing.T) {
	rec := &mockRecorder{}
	store := &mockStore{err: boundary.ErrStorageUnavailable}
	h := newServer(t, store, &mockKB{}, rec)

	resp := get(h, "/?lat=52&lon=-1")
	if resp.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.Code)
	}
	if len(rec.errors) != 1 {
		t.Errorf("expected the failure in the error log, got %v", rec.errors)
	}
}

// TestRandom_UsesEnglandBoundingBox verifies that random points fall inside
// England.
func TestRandom_UsesEnglandBoundingBox(t *testing.T) {
	h := newServer(t, &mockStore{}, &mockKB{}, &mockRecorder{})

	resp := get(h, "/random")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Lat < 50.8520 || body.Lat > 53.7984 || body.Lon < -2.7296 || body.Lon > 0.3536 {
		t.Errorf("point outside England box: %+v", body)
	}
}

// TestPolygon verifies the 400, 404 and 200 answers of the polygon view.
func TestPolygon(t *testing.T) {
	h := newServer(t, hitStore(), &mockKB{}, &mockRecorder{})

	if resp := get(h, "/polygon/abc"); resp.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.Code)
	}
	if resp := get(h, "/polygon/7"); resp.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.Code)
	}
	resp := get(h, "/polygon/42")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"osm_url":"https://www.openstreetmap.org/way/42"`) {
		t.Errorf("unexpected body %s", resp.Body.String())
	}
}

// TestDetail_IncludesOverpassElements verifies that the detail view carries the
// is_in elements.
func TestDetail_IncludesOverpassElements(t *testing.T) {
	h := newServer(t, hitStore(), &mockKB{commons: map[string]string{"Q1": "Ely"}}, &mockRecorder{})

	resp := get(h, "/detail?lat=52.387&lon=0.294")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"osm_elements":[{"type":"relation","id":62149`) {
		t.Errorf("unexpected body %s", resp.Body.String())
	}
}

// TestReports_RequiresAdmin verifies that the report needs credentials.
func TestReports_RequiresAdmin(t *testing.T) {
	h := newServer(t, &mockStore{}, &mockKB{}, &mockRecorder{})

	if resp := get(h, "/reports"); resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.Code)
	}
}

// TestReports_LogsAdmin verifies that an authenticated report request returns
// the report and names the admin in the process log.
func TestReports_LogsAdmin(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := logger.L()
	logger.Set(zap.New(core))
	defer logger.Set(prev)

	h, err := geocode.SetupRoutes(geocode.Deps{
		Resolver: geocode.NewResolver(&mockStore{}, &mockKB{}),
		Polygons: loaderStore{&mockStore{}},
		Elements: mockElements{},
		Recorder: &mockRecorder{},
		Admin:    allowAdmin{},
	})
	if err != nil {
		t.Fatalf("setup routes: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/reports?limit=5", nil)
	req.SetBasicAuth("admin", "anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total":3`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	entries := logs.FilterMessage("lookup report requested").All()
	if len(entries) != 1 || entries[0].ContextMap()["admin"] != "admin" {
		t.Errorf("expected one report log naming the admin, got %v", entries)
	}
}
