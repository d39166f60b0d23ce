package wikidata

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

const (
	propCommonsCategory = "P373"
	propTopicsMainCat   = "P910"
	commonsWikiSiteKey  = "commonswiki"
	categoryTitlePrefix = "Category:"
)

// Entity is the subset of a wbgetentities entity the geocoder reads.
type Entity struct {
	ID        string              `json:"id"`
	Missing   json.RawMessage     `json:"missing,omitempty"`
	Claims    map[string][]Claim  `json:"claims"`
	Sitelinks map[string]Sitelink `json:"sitelinks"`
}

type Claim struct {
	Mainsnak Snak `json:"mainsnak"`
}

type Snak struct {
	Property  string     `json:"property"`
	Datavalue *DataValue `json:"datavalue"`
}

type DataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type Sitelink struct {
	Site  string `json:"site"`
	Title string `json:"title"`
}

func (e *Entity) firstValue(pid string) (json.RawMessage, bool) {
	claims := e.Claims[pid]
	if len(claims) == 0 || claims[0].Mainsnak.Datavalue == nil {
		return nil, false
	}
	return claims[0].Mainsnak.Datavalue.Value, true
}

// StringClaim returns the first string value of the property.
func (e *Entity) StringClaim(pid string) (string, bool) {
	raw, ok := e.firstValue(pid)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// ItemClaim returns the QID of the first item value of the property.
func (e *Entity) ItemClaim(pid string) (string, bool) {
	raw, ok := e.firstValue(pid)
	if !ok {
		return "", false
	}
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || v.ID == "" {
		return "", false
	}
	return v.ID, true
}

type entitiesResponse struct {
	Entities map[string]Entity `json:"entities"`
}

// GetEntity fetches an entity. It returns nil when Wikidata reports the
// entity as missing or the response holds no entities.
func (c *Client) GetEntity(ctx context.Context, qid string) (*Entity, error) {
	params := url.Values{}
	params.Set("action", "wbgetentities")
	params.Set("ids", qid)

	var resp entitiesResponse
	if err := c.apiCall(ctx, params, &resp); err != nil {
		return nil, err
	}
	for _, e := range resp.Entities {
		if len(e.Missing) > 0 {
			return nil, nil
		}
		entity := e
		return &entity, nil
	}
	return nil, nil
}

// QIDToCommonsCategory finds the Commons category of an item. It reads P373,
// then the Commons sitelink, then follows P910 one hop.
func (c *Client) QIDToCommonsCategory(ctx context.Context, qid string) (string, error) {
	return c.commonsCategory(ctx, qid, true)
}

func (c *Client) commonsCategory(ctx context.Context, qid string, followMainCat bool) (string, error) {
	entity, err := c.GetEntity(ctx, qid)
	if err != nil || entity == nil {
		return "", err
	}

	if cat, ok := entity.StringClaim(propCommonsCategory); ok {
		return cat, nil
	}

	if link, ok := entity.Sitelinks[commonsWikiSiteKey]; ok && link.Title != "" {
		if strings.HasPrefix(link.Title, categoryTitlePrefix) {
			return link.Title[len(categoryTitlePrefix):], nil
		}
		return "", nil
	}

	if !followMainCat {
		return "", nil
	}
	catQID, ok := entity.ItemClaim(propTopicsMainCat)
	if !ok {
		return "", nil
	}
	return c.commonsCategory(ctx, catQID, false)
}
