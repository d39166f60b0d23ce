package wikidata

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/text/unicode/norm"
)

const commonsOptionals = `
  OPTIONAL { ?commonsSiteLink schema:about ?item ;
             schema:isPartOf <https://commons.wikimedia.org/> . }
  OPTIONAL { ?item wdt:P373 ?commonsCat . }`

// geosearchQuery finds human settlements within 5 km, nearest first.
const geosearchQuery = `
SELECT DISTINCT ?item ?distance ?itemLabel ?isa ?isaLabel ?commonsCat ?commonsSiteLink WHERE {
  {
    SELECT DISTINCT ?item ?location ?distance ?isa WHERE {
      ?item wdt:P31/wdt:P279* wd:Q486972 .
      ?item wdt:P31 ?isa .
      SERVICE wikibase:around {
        ?item wdt:P625 ?location .
        bd:serviceParam wikibase:center "Point({{.Lon}} {{.Lat}})"^^geo:wktLiteral ;
                        wikibase:radius 5 ;
                        wikibase:distance ?distance .
      }
    }
  }
  MINUS { ?item wdt:P582 ?endTime . }` + commonsOptionals + `
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en" . }
}
ORDER BY ?distance
`

// scottishParishQuery matches a civil parish in Scotland by its code.
const scottishParishQuery = `
SELECT ?item ?itemLabel ?commonsSiteLink ?commonsCat WHERE {
  ?item wdt:P31 wd:Q5124673 ;
        wdt:P528 {{literal .Code}} .` + commonsOptionals + `
  SERVICE wikibase:label { bd:serviceParam wikibase:language "[AUTO_LANGUAGE],en" . }
}
`

// gssQuery matches an item by its GSS code (P836).
const gssQuery = `
SELECT ?item ?itemLabel ?commonsSiteLink ?commonsCat WHERE {
  ?item wdt:P836 {{literal .GSS}} .` + commonsOptionals + `
  SERVICE wikibase:label { bd:serviceParam wikibase:language "[AUTO_LANGUAGE],en" . }
}
`

// byNameQuery matches items with the exact English label within 10 km.
// Wikimedia duplicated pages (Q17362920) are excluded.
const byNameQuery = `
SELECT DISTINCT ?item ?itemLabel ?commonsSiteLink ?commonsCat WHERE {
  ?item rdfs:label {{literal .Name}}@en .
  FILTER NOT EXISTS { ?item wdt:P31 wd:Q17362920 . }
  ?item wdt:P625 ?coords .
  FILTER(geof:distance(?coords, "Point({{.Lon}} {{.Lat}})"^^geo:wktLiteral) < 10)` + commonsOptionals + `
  SERVICE wikibase:label { bd:serviceParam wikibase:language "[AUTO_LANGUAGE],en" . }
}
`

var queryFuncs = template.FuncMap{"literal": sparqlLiteral}

var (
	geosearchTmpl      = template.Must(template.New("geosearch").Funcs(queryFuncs).Parse(geosearchQuery))
	scottishParishTmpl = template.Must(template.New("scottish_parish").Funcs(queryFuncs).Parse(scottishParishQuery))
	gssTmpl            = template.Must(template.New("lookup_gss").Funcs(queryFuncs).Parse(gssQuery))
	byNameTmpl         = template.Must(template.New("lookup_by_name").Funcs(queryFuncs).Parse(byNameQuery))
)

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sparqlLiteral renders s as a double-quoted SPARQL string literal.
func sparqlLiteral(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return `"` + r.Replace(s) + `"`
}

// formatCoord renders a coordinate with six decimal places.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// shortCoord renders a coordinate with the fewest digits that round-trip.
func shortCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// GeosearchQuery returns the raw geosearch rows around a point.
func (c *Client) GeosearchQuery(ctx context.Context, lat, lon float64) ([]Row, error) {
	q, err := render(geosearchTmpl, struct{ Lat, Lon string }{formatCoord(lat), formatCoord(lon)})
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, q)
}

// LookupScottishParish finds the item of a Scottish civil parish code.
func (c *Client) LookupScottishParish(ctx context.Context, code string) ([]Row, error) {
	q, err := render(scottishParishTmpl, struct{ Code string }{code})
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, q)
}

// LookupGSS finds items carrying a GSS code.
func (c *Client) LookupGSS(ctx context.Context, gss string) ([]Row, error) {
	q, err := render(gssTmpl, struct{ GSS string }{gss})
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, q)
}

// LookupByName finds items labelled name within 10 km of the point.
func (c *Client) LookupByName(ctx context.Context, name string, lat, lon float64) ([]Row, error) {
	data := struct{ Name, Lat, Lon string }{
		Name: norm.NFC.String(name),
		Lat:  shortCoord(lat),
		Lon:  shortCoord(lon),
	}
	q, err := render(byNameTmpl, data)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, q)
}
