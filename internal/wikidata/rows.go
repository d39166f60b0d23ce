package wikidata

import (
	"fmt"
	"strings"
)

const (
	entityPrefix     = "http://www.wikidata.org/entity/Q"
	CommonsCatPrefix = "https://commons.wikimedia.org/wiki/Category:"
)

// Binding is one variable of a SPARQL result row.
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Row is a SPARQL result row keyed by variable name.
type Row map[string]Binding

// Has reports whether the row binds the variable.
func (r Row) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Hit is a Wikidata item together with its Commons category, if any.
type Hit struct {
	QID        string
	CommonsCat string
}

// QIDFromBinding extracts the QID from a "uri" binding.
func QIDFromBinding(b Binding) (string, error) {
	if b.Type != "uri" {
		return "", fmt.Errorf("expected uri binding, got %q", b.Type)
	}
	return QIDFromURI(b.Value)
}

// QIDFromURI converts http://www.wikidata.org/entity/Q30 into Q30.
func QIDFromURI(value string) (string, error) {
	if !strings.HasPrefix(value, entityPrefix) {
		return "", fmt.Errorf("not a wikidata entity uri: %q", value)
	}
	return value[len(entityPrefix)-1:], nil
}

// UnescapeTitle turns a URL path segment into a page title. Valid %XX
// escapes are decoded; malformed ones are kept as they are.
func UnescapeTitle(t string) string {
	t = strings.ReplaceAll(t, "_", " ")
	if !strings.Contains(t, "%") {
		return t
	}
	b := make([]byte, 0, len(t))
	for i := 0; i < len(t); i++ {
		if t[i] == '%' && i+2 < len(t) && isHex(t[i+1]) && isHex(t[i+2]) {
			b = append(b, unhex(t[i+1])<<4|unhex(t[i+2]))
			i += 2
			continue
		}
		b = append(b, t[i])
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	}
	return c - 'A' + 10
}

// CommonsFromRows returns the first row carrying Commons evidence: a P373
// value or a Commons sitelink.
func CommonsFromRows(rows []Row) *Hit {
	for _, row := range rows {
		if cat, ok := row["commonsCat"]; ok {
			qid, err := QIDFromBinding(row["item"])
			if err != nil {
				continue
			}
			return &Hit{QID: qid, CommonsCat: cat.Value}
		}
		if link, ok := row["commonsSiteLink"]; ok {
			qid, err := QIDFromBinding(row["item"])
			if err != nil {
				continue
			}
			title := strings.TrimPrefix(link.Value, CommonsCatPrefix)
			return &Hit{QID: qid, CommonsCat: UnescapeTitle(title)}
		}
	}
	return nil
}

// CommonsCatURL builds the Commons URL of a category title.
func CommonsCatURL(title string) string {
	return CommonsCatPrefix + Quote(strings.ReplaceAll(title, " ", "_"))
}

// Quote percent-encodes s, leaving only unreserved characters and "/".
func Quote(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
			b.WriteByte(ch)
		case ch == '_' || ch == '.' || ch == '-' || ch == '~' || ch == '/':
			b.WriteByte(ch)
		default:
			fmt.Fprintf(&b, "%%%02X", ch)
		}
	}
	return b.String()
}
