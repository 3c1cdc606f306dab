// Package geocode resolves free-text addresses to coordinates through an
// external provider. The core treats resolution as an opaque dependency
// that may legitimately return nothing.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// ErrNoResult means the provider answered but found no match for the
// address.
var ErrNoResult = errors.New("geocode: no result")

// Geocoder resolves an address to a coordinate pair.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (models.Coord, error)
}

// NominatimClient queries an OpenStreetMap Nominatim server. Nominatim
// requires a User-Agent identifying the application.
type NominatimClient struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

func NewNominatimClient(baseURL, userAgent string) *NominatimClient {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if userAgent == "" {
		userAgent = "ride-dispatch/1.0"
	}
	return &NominatimClient{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *NominatimClient) Resolve(ctx context.Context, address string) (models.Coord, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.BaseURL+"/search?"+q.Encode(), http.NoBody)
	if err != nil {
		return models.Coord{}, err
	}
	req.Header.Set("User-Agent", n.UserAgent)

	resp, err := n.Client.Do(req)
	if err != nil {
		return models.Coord{}, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Coord{}, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	// Nominatim returns coordinates as strings.
	var out []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Coord{}, fmt.Errorf("nominatim decode: %w", err)
	}
	if len(out) == 0 {
		return models.Coord{}, ErrNoResult
	}
	lat, err := strconv.ParseFloat(out[0].Lat, 64)
	if err != nil {
		return models.Coord{}, fmt.Errorf("nominatim bad lat %q", out[0].Lat)
	}
	lng, err := strconv.ParseFloat(out[0].Lon, 64)
	if err != nil {
		return models.Coord{}, fmt.Errorf("nominatim bad lon %q", out[0].Lon)
	}
	return models.Coord{Lat: lat, Lng: lng}, nil
}
