package wikidata_test

import (
	"testing"

	"github.com/EmpoweredVote/geocode/internal/wikidata"
)

func uri(qid string) wikidata.Binding {
	return wikidata.Binding{Type: "uri", Value: "http://www.wikidata.org/entity/" + qid}
}

func lit(v string) wikidata.Binding {
	return wikidata.Binding{Type: "literal", Value: v}
}

// TestQIDFromURI verifies extraction of the item id from an entity URI.
func TestQIDFromURI(t *testing.T) {
	got, err := wikidata.QIDFromURI("http://www.wikidata.org/entity/Q30")
	if err != nil || got != "Q30" {
		t.Fatalf("expected Q30, got %q, %v", got, err)
	}
	if _, err := wikidata.QIDFromURI("https://www.wikidata.org/wiki/Q30"); err == nil {
		t.Error("expected error for non-entity uri")
	}
	if _, err := wikidata.QIDFromBinding(lit("Q30")); err == nil {
		t.Error("expected error for literal binding")
	}
}

// TestCommonsFromRows verifies which rows count as Commons evidence.
func TestCommonsFromRows(t *testing.T) {
	rows := []wikidata.Row{
		{"item": uri("Q1")},
		{"item": uri("Q2"), "commonsSiteLink": {Type: "uri", Value: "https://commons.wikimedia.org/wiki/Category:Weston-on-the-Green"}},
		{"item": uri("Q3"), "commonsCat": lit("Ignored")},
	}
	hit := wikidata.CommonsFromRows(rows)
	if hit == nil {
		t.Fatal("expected a hit")
	}
	if hit.QID != "Q2" || hit.CommonsCat != "Weston-on-the-Green" {
		t.Errorf("unexpected hit %+v", hit)
	}

	if wikidata.CommonsFromRows([]wikidata.Row{{"item": uri("Q1")}}) != nil {
		t.Error("expected no hit without commons evidence")
	}
}

// TestUnescapeTitle verifies that underscores become spaces and that valid
// escapes are decoded even when a malformed one appears in the same title.
func TestUnescapeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Brackenborough_with_Little_Grimsby", "Brackenborough with Little Grimsby"},
		{"Buckland,_Hertfordshire%20%28village%29", "Buckland, Hertfordshire (village)"},
		{"Caf%C3%A9_100%_Pure", "Café 100% Pure"},
		{"Trailing%2", "Trailing%2"},
		{"50%25", "50%"},
	}
	for _, tt := range tests {
		if got := wikidata.UnescapeTitle(tt.in); got != tt.want {
			t.Errorf("UnescapeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestCommonsCatURL verifies the escaped category URL.
func TestCommonsCatURL(t *testing.T) {
	got := wikidata.CommonsCatURL("Buckland, Hertfordshire")
	want := "https://commons.wikimedia.org/wiki/Category:Buckland%2C_Hertfordshire"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

// TestPickGeosearchRow verifies the distance thresholds applied per place type.
func TestPickGeosearchRow(t *testing.T) {
	const (
		village = "Q532"
		town    = "Q3957"
		church  = "Q16970"
	)
	row := func(qid, isa, distance string, commons bool) wikidata.Row {
		r := wikidata.Row{"item": uri(qid), "isa": uri(isa), "distance": lit(distance)}
		if commons {
			r["commonsCat"] = lit(qid)
		}
		return r
	}

	tests := []struct {
		name    string
		rows    []wikidata.Row
		wantQID string
	}{
		{
			name:    "first close settlement with commons wins",
			rows:    []wikidata.Row{row("Q1", village, "0.4", true), row("Q2", town, "0.5", true)},
			wantQID: "Q1",
		},
		{
			name:    "unknown type without commons is skipped",
			rows:    []wikidata.Row{row("Q1", church, "0.1", false), row("Q2", village, "0.5", true)},
			wantQID: "Q2",
		},
		{
			name:    "village beyond 1km is skipped, town within 2km accepted",
			rows:    []wikidata.Row{row("Q1", village, "1.2", true), row("Q2", town, "1.5", true)},
			wantQID: "Q2",
		},
		{
			name:    "unknown type uses the default radius",
			rows:    []wikidata.Row{row("Q1", church, "1.5", true), row("Q2", church, "0.9", true)},
			wantQID: "Q2",
		},
		{
			name:    "known type in range without commons stops the search",
			rows:    []wikidata.Row{row("Q1", village, "0.3", false), row("Q2", town, "0.6", true)},
			wantQID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := wikidata.PickGeosearchRow(tt.rows)
			if tt.wantQID == "" {
				if ok {
					t.Fatalf("expected no row, got %v", got)
				}
				return
			}
			if !ok {
				t.Fatal("expected a row")
			}
			qid, _ := wikidata.QIDFromBinding(got["item"])
			if qid != tt.wantQID {
				t.Errorf("expected %s, got %s", tt.wantQID, qid)
			}
		})
	}
}
