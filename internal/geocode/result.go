package geocode

import (
	"encoding/json"

	"github.com/EmpoweredVote/geocode/internal/wikidata"
)

// Outcome is the terminal state of a resolution.
type Outcome string

const (
	OutcomeHit        Outcome = "hit"
	OutcomeMissing    Outcome = "missing"
	OutcomeQueryError Outcome = "query_error"
)

// CommonsCat is a Commons category title and its URL.
type CommonsCat struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Result is what a lookup returns to its caller. The JSON shape depends on
// the outcome, see MarshalJSON.
type Result struct {
	Outcome    Outcome
	Coords     Coordinate
	AdminLevel *int
	Wikidata   string
	Element    *int64
	GeoJSON    json.RawMessage
	CommonsCat *CommonsCat

	Query    string
	Error    string
	QueryURL string
}

// hitJSON keeps the key order of a hit payload stable.
type hitJSON struct {
	Coords     Coordinate      `json:"coords"`
	AdminLevel *int            `json:"admin_level"`
	Wikidata   string          `json:"wikidata"`
	Element    *int64          `json:"element"`
	GeoJSON    json.RawMessage `json:"geojson"`
	CommonsCat *CommonsCat     `json:"commons_cat,omitempty"`
}

type missingJSON struct {
	CommonsCat *CommonsCat `json:"commons_cat"`
	Missing    bool        `json:"missing"`
	Coords     Coordinate  `json:"coords"`
}

type queryErrorJSON struct {
	Query    string `json:"query"`
	Error    string `json:"error"`
	QueryURL string `json:"query_url"`
}

// MarshalJSON renders the payload for the result's outcome.
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.Outcome {
	case OutcomeMissing:
		return json.Marshal(missingJSON{Missing: true, Coords: r.Coords})
	case OutcomeQueryError:
		return json.Marshal(queryErrorJSON{Query: r.Query, Error: r.Error, QueryURL: r.QueryURL})
	}
	geojson := r.GeoJSON
	if len(geojson) == 0 {
		geojson = nil
	}
	return json.Marshal(hitJSON{
		Coords:     r.Coords,
		AdminLevel: r.AdminLevel,
		Wikidata:   r.Wikidata,
		Element:    r.Element,
		GeoJSON:    geojson,
		CommonsCat: r.CommonsCat,
	})
}

// LogJSON is the payload stored in the lookup log, without the source
// polygon reference and geometry.
func (r Result) LogJSON() (json.RawMessage, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	if r.Outcome != OutcomeHit {
		return b, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	delete(m, "element")
	delete(m, "geojson")
	return json.Marshal(m)
}

// MissingResult is the payload when nothing matched.
func MissingResult(c Coordinate) *Result {
	return &Result{Outcome: OutcomeMissing, Coords: c}
}

// HitResult builds a hit. An empty commons category leaves commons_cat out.
func HitResult(c Coordinate, hit *wikidata.Hit) *Result {
	r := &Result{Outcome: OutcomeHit, Coords: c, Wikidata: hit.QID}
	if hit.CommonsCat != "" {
		r.CommonsCat = &CommonsCat{Title: hit.CommonsCat, URL: wikidata.CommonsCatURL(hit.CommonsCat)}
	}
	return r
}

// QueryErrorResult converts a failed SPARQL query into a renderable payload.
func QueryErrorResult(c Coordinate, err *wikidata.QueryError) *Result {
	return &Result{
		Outcome:  OutcomeQueryError,
		Coords:   c,
		Query:    err.Query,
		Error:    err.Body,
		QueryURL: err.QueryURL(),
	}
}
