package places

import (
	"bytes"
	"encoding/json"
	"strings"
)

// searchTextRequest is the body of a Places Text Search (New) call.
type searchTextRequest struct {
	TextQuery      string        `json:"textQuery"`
	MaxResultCount int           `json:"maxResultCount"`
	LocationBias   *LocationBias `json:"locationBias,omitempty"`
}

// LocationBias weights results toward a circle around Center.
type LocationBias struct {
	Circle Circle `json:"circle"`
}

type Circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"` // meters
}

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// searchResponse accepts both the Text Search (New) envelope and the
// legacy "results" envelope.
type searchResponse struct {
	Places  []RawCandidate `json:"places"`
	Results []RawCandidate `json:"results"`
	Status  string         `json:"status"`
}

func (r searchResponse) candidates() []RawCandidate {
	if len(r.Places) > 0 {
		return r.Places
	}
	return r.Results
}

// RawCandidate is a single search result as returned by the places backend.
// Field names differ between API generations, so both spellings are kept
// and resolved by the accessor methods.
type RawCandidate struct {
	ID                  string            `json:"id"`
	PlaceIDLegacy       string            `json:"place_id"`
	ResourceName        string            `json:"name"`
	DisplayName         localizedText     `json:"displayName"`
	FormattedAddress    string            `json:"formattedAddress"`
	FormattedAddressOld string            `json:"formatted_address"`
	Vicinity            string            `json:"vicinity"`
	Location            *point            `json:"location"`
	Geometry            *geometry         `json:"geometry"`
	Rating              *float64          `json:"rating"`
	UserRatingCount     *int              `json:"userRatingCount"`
	UserRatingsTotal    *int              `json:"user_ratings_total"`
	WebsiteURI          string            `json:"websiteUri"`
	Website             string            `json:"website"`
	PrimaryType         string            `json:"primaryType"`
	Types               []string          `json:"types"`
	PriceLevel          string            `json:"priceLevel"`
	PriceLevelLegacy    *int              `json:"price_level"`
	EditorialSummary    *localizedText    `json:"editorialSummary"`
	RegularOpeningHours *openingHours     `json:"regularOpeningHours"`
	AddressComponents   []addrComponent   `json:"addressComponents"`
	AddressComponentsV1 []addrComponentV1 `json:"address_components"`
}

type geometry struct {
	Location point `json:"location"`
}

// point decodes {latitude, longitude} as well as {lat, lng}.
type point struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
}

func (p point) resolve() (lat, lng float64, ok bool) {
	switch {
	case p.Latitude != nil && p.Longitude != nil:
		return *p.Latitude, *p.Longitude, true
	case p.Lat != nil && p.Lng != nil:
		return *p.Lat, *p.Lng, true
	}
	return 0, 0, false
}

// localizedText decodes either a bare string or {"text": ..., "languageCode": ...}.
type localizedText struct {
	Text string `json:"text"`
}

func (t *localizedText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &t.Text)
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Text = obj.Text
	return nil
}

type openingHours struct {
	WeekdayDescriptions []string `json:"weekdayDescriptions"`
}

type addrComponent struct {
	LongText string   `json:"longText"`
	Types    []string `json:"types"`
}

type addrComponentV1 struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

// PlaceID returns the stable identifier of the place, whichever field
// carried it.
func (c *RawCandidate) PlaceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.PlaceIDLegacy != "":
		return c.PlaceIDLegacy
	case strings.HasPrefix(c.ResourceName, "places/"):
		return strings.TrimPrefix(c.ResourceName, "places/")
	}
	return ""
}

func (c *RawCandidate) Name() string {
	if c.DisplayName.Text != "" {
		return c.DisplayName.Text
	}
	// legacy responses put the display name in "name"
	if !strings.HasPrefix(c.ResourceName, "places/") {
		return c.ResourceName
	}
	return ""
}

func (c *RawCandidate) Address() string {
	return firstNonEmpty(c.FormattedAddress, c.FormattedAddressOld, c.Vicinity)
}

func (c *RawCandidate) Coordinates() (lat, lng float64, ok bool) {
	if c.Location != nil {
		if lat, lng, ok = c.Location.resolve(); ok {
			return lat, lng, ok
		}
	}
	if c.Geometry != nil {
		return c.Geometry.Location.resolve()
	}
	return 0, 0, false
}

func (c *RawCandidate) ReviewCount() int {
	switch {
	case c.UserRatingCount != nil:
		return *c.UserRatingCount
	case c.UserRatingsTotal != nil:
		return *c.UserRatingsTotal
	}
	return 0
}

func (c *RawCandidate) City() string {
	for _, comp := range c.AddressComponents {
		if hasType(comp.Types, "locality") {
			return comp.LongText
		}
	}
	for _, comp := range c.AddressComponentsV1 {
		if hasType(comp.Types, "locality") {
			return comp.LongName
		}
	}
	return ""
}

func hasType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
