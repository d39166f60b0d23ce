package geocode

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/EmpoweredVote/geocode/internal/middleware"
)

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Resolver *Resolver
	Polygons PolygonLoader
	Elements ElementSource
	Recorder LookupRecorder
	Admin    middleware.CredentialChecker
	// Random draws from [0, 1); defaults to math/rand.
	Random func() float64
}

// NewHandlers loads the sample list and binds the dependencies.
func NewHandlers(d Deps) (*Handlers, error) {
	samples, err := LoadSamples()
	if err != nil {
		return nil, err
	}
	random := d.Random
	if random == nil {
		random = defaultRandom
	}
	return &Handlers{
		resolver: d.Resolver,
		polygons: d.Polygons,
		elements: d.Elements,
		recorder: d.Recorder,
		samples:  samples,
		random:   random,
	}, nil
}

// SetupRoutes builds the router for the lookup API.
func SetupRoutes(d Deps) (http.Handler, error) {
	h, err := NewHandlers(d)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// Public routes
	r.Get("/", h.Lookup)
	r.Get("/random", h.Random)
	r.Get("/samples", h.Samples)
	r.Get("/wikidata_tag", h.WikidataTag)
	r.Get("/detail", h.Detail)
	r.Get("/polygon/{osm_id}", h.Polygon)

	// Admin routes
	r.With(middleware.AdminMiddleware(d.Admin)).Get("/reports", h.Reports)

	return r, nil
}
