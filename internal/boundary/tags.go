package boundary

import (
	"strconv"

	"github.com/lib/pq/hstore"
)

// Tags holds the OSM tags the resolver matches on. Anything else lands in
// Extra.
type Tags struct {
	Wikidata   string            `json:"wikidata,omitempty"`
	GSS        string            `json:"ref:gss,omitempty"`
	Name       string            `json:"name,omitempty"`
	AdminLevel string            `json:"admin_level,omitempty"`
	Boundary   string            `json:"boundary,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

const (
	keyWikidata   = "wikidata"
	keyGSS        = "ref:gss"
	keyName       = "name"
	keyAdminLevel = "admin_level"
	keyBoundary   = "boundary"
)

// ParseTags splits a raw tag mapping into Tags.
func ParseTags(m map[string]string) Tags {
	var t Tags
	for k, v := range m {
		switch k {
		case keyWikidata:
			t.Wikidata = v
		case keyGSS:
			t.GSS = v
		case keyName:
			t.Name = v
		case keyAdminLevel:
			t.AdminLevel = v
		case keyBoundary:
			t.Boundary = v
		default:
			if t.Extra == nil {
				t.Extra = make(map[string]string)
			}
			t.Extra[k] = v
		}
	}
	return t
}

// Map converts t back into a flat tag mapping.
func (t Tags) Map() map[string]string {
	m := make(map[string]string, len(t.Extra)+5)
	for k, v := range t.Extra {
		m[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set(keyWikidata, t.Wikidata)
	set(keyGSS, t.GSS)
	set(keyName, t.Name)
	set(keyAdminLevel, t.AdminLevel)
	set(keyBoundary, t.Boundary)
	return m
}

// parseHstore decodes the text form of an hstore column. NULL values are
// dropped.
func parseHstore(raw []byte) (map[string]string, error) {
	if raw == nil {
		return map[string]string{}, nil
	}
	var h hstore.Hstore
	if err := h.Scan(raw); err != nil {
		return nil, err
	}
	m := make(map[string]string, len(h.Map))
	for k, v := range h.Map {
		if v.Valid {
			m[k] = v.String
		}
	}
	return m, nil
}

// parseAdminLevel returns the level when s is all digits.
func parseAdminLevel(s string) *int {
	if s == "" {
		return nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
