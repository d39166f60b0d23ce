package overpass_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/EmpoweredVote/geocode/internal/overpass"
	"github.com/EmpoweredVote/geocode/internal/retry"
)

type mapCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok
}

func (c *mapCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

func noSleep(context.Context, time.Duration) error { return nil }

// TestIsIn_CachesResponse verifies that a cached point does not hit Overpass
// again.
func TestIsIn_CachesResponse(t *testing.T) {
	var hits int
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/api/interpreter" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		fmt.Fprint(w, `{"elements":[
			{"type":"relation","id":62149,"bounds":{"minlat":49.8,"minlon":-8.6,"maxlat":60.9,"maxlon":1.8},
			 "tags":{"name":"United Kingdom","admin_level":"2","wikidata":"Q145"}}]}`)
	}))
	defer srv.Close()

	cache := &mapCache{m: map[string][]byte{}}
	c := overpass.NewClient(overpass.Config{BaseURL: srv.URL, Cache: cache})

	for i := 0; i < 2; i++ {
		elements, err := c.IsIn(context.Background(), 51.5, -0.12)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(elements) != 1 || elements[0].Tags["wikidata"] != "Q145" {
			t.Fatalf("unexpected elements %+v", elements)
		}
	}
	if hits != 1 {
		t.Errorf("expected one upstream request, got %d", hits)
	}
	if !strings.Contains(gotBody, "is_in(51.5,-0.12)") {
		t.Errorf("unexpected query:\n%s", gotBody)
	}
	if _, ok := cache.m[overpass.CacheKey(51.5, -0.12)]; !ok {
		t.Error("response not cached")
	}
}

// TestIsIn_RetriesThenFails verifies that a failing endpoint is tried once per
// attempt before the error is returned.
func TestIsIn_RetriesThenFails(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := retry.DefaultPolicy()
	p.Sleep = noSleep
	c := overpass.NewClient(overpass.Config{BaseURL: srv.URL, Policy: &p})

	if _, err := c.IsIn(context.Background(), 52, 0); err == nil {
		t.Fatal("expected error")
	}
	if hits != p.MaxAttempts {
		t.Errorf("expected %d requests, got %d", p.MaxAttempts, hits)
	}
}

// TestElementOSMURL verifies the browse URL of an element.
func TestElementOSMURL(t *testing.T) {
	e := overpass.Element{Type: "way", ID: 42}
	if got := e.OSMURL(); got != "https://www.openstreetmap.org/way/42" {
		t.Errorf("got %q", got)
	}
}
