package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GeoResult is a provider-normalised geocode hit.
type GeoResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	County           string
	// HasStreet is false for locality-only matches (city/postcode rows with
	// no house-number/street component); spec.md §4.3 rejects these outright.
	HasStreet bool
	// IsBareCityPostcode marks a "<city>, <state> <zip>, <country>" shaped
	// result with no street name at all, rejected per spec.md §4.3.
	IsBareCityPostcode bool
}

// Geocoder resolves a normalised address string to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeoResult, error)
}

// standard library net/http is used directly for all three geocoding
// backends below rather than a generated client SDK: none of the pack repos
// import a Google Maps, LocationIQ, or Nominatim client library, and these
// are simple unauthenticated-or-single-key-query-param REST GETs with tiny
// JSON responses — not enough surface to justify a dependency the corpus
// never reaches for.

// NewGeocoder builds a Geocoder for the configured provider name.
func NewGeocoder(provider, googleKey, locationIQKey string) (Geocoder, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	switch strings.ToLower(provider) {
	case "google":
		if googleKey == "" {
			return nil, fmt.Errorf("extract: GEOCODE_PROVIDER=google requires GOOGLE_MAPS_API_KEY")
		}
		return &googleGeocoder{client: client, apiKey: googleKey}, nil
	case "locationiq":
		if locationIQKey == "" {
			return nil, fmt.Errorf("extract: GEOCODE_PROVIDER=locationiq requires LOCATIONIQ_API_KEY")
		}
		return &locationIQGeocoder{client: client, apiKey: locationIQKey}, nil
	case "nominatim", "":
		return &nominatimGeocoder{client: client}, nil
	default:
		return nil, fmt.Errorf("extract: unknown GEOCODE_PROVIDER %q", provider)
	}
}

// --- Google Geocoding API ---------------------------------------------------

type googleGeocoder struct {
	client *http.Client
	apiKey string
}

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
		Types []string `json:"types"`
	} `json:"results"`
}

func (g *googleGeocoder) Geocode(ctx context.Context, address string) (*GeoResult, error) {
	q := url.Values{"address": {address}, "key": {g.apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://maps.googleapis.com/maps/api/geocode/json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Status != "OK" || len(out.Results) == 0 {
		return nil, nil
	}
	r := out.Results[0]
	result := &GeoResult{
		Lat:              r.Geometry.Location.Lat,
		Lon:              r.Geometry.Location.Lng,
		FormattedAddress: r.FormattedAddress,
	}
	var hasStreetNumber, hasRoute bool
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			switch t {
			case "street_number":
				hasStreetNumber = true
			case "route":
				hasRoute = true
			case "administrative_area_level_2":
				result.County = c.LongName
			}
		}
	}
	result.HasStreet = hasStreetNumber && hasRoute
	for _, t := range r.Types {
		if t == "postal_code" {
			result.IsBareCityPostcode = true
		}
	}
	return result, nil
}

// --- LocationIQ -------------------------------------------------------------

type locationIQGeocoder struct {
	client *http.Client
	apiKey string
}

type locationIQResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Class       string `json:"class"`
	Type        string `json:"type"`
	Address     struct {
		County   string `json:"county"`
		Road     string `json:"road"`
		HouseNum string `json:"house_number"`
		Postcode string `json:"postcode"`
	} `json:"address"`
}

func (g *locationIQGeocoder) Geocode(ctx context.Context, address string) (*GeoResult, error) {
	q := url.Values{"q": {address}, "key": {g.apiKey}, "format": {"json"}, "addressdetails": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://us1.locationiq.com/v1/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []locationIQResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out) == 0 {
		return nil, nil
	}
	return nominatimLikeResult(out[0].Lat, out[0].Lon, out[0].DisplayName, out[0].Address.County,
		out[0].Address.Road, out[0].Address.HouseNum, out[0].Type), nil
}

// --- Nominatim (OpenStreetMap, no API key) ----------------------------------

type nominatimGeocoder struct {
	client *http.Client
}

func (g *nominatimGeocoder) Geocode(ctx context.Context, address string) (*GeoResult, error) {
	q := url.Values{"q": {address}, "format": {"json"}, "addressdetails": {"1"}, "limit": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://nominatim.openstreetmap.org/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "scanner-map/1.0")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []locationIQResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out) == 0 {
		return nil, nil
	}
	return nominatimLikeResult(out[0].Lat, out[0].Lon, out[0].DisplayName, out[0].Address.County,
		out[0].Address.Road, out[0].Address.HouseNum, out[0].Type), nil
}

func nominatimLikeResult(latStr, lonStr, display, county, road, houseNum, osmType string) *GeoResult {
	var lat, lon float64
	fmt.Sscanf(latStr, "%f", &lat)
	fmt.Sscanf(lonStr, "%f", &lon)
	return &GeoResult{
		Lat:                lat,
		Lon:                lon,
		FormattedAddress:   display,
		County:             county,
		HasStreet:          road != "" && houseNum != "",
		IsBareCityPostcode: osmType == "postcode" || osmType == "administrative",
	}
}
