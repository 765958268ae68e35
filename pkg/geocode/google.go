package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// fetchGoogle calls the Google Geocoding API and returns the raw body plus
// the response status field. Transport-level failures propagate to the
// caller; a non-"OK" status is a semantic no-match, not an error.
func (r *Resolver) fetchGoogle(ctx context.Context, oneLine string) (body []byte, status string, err error) {
	if r.googleKey == "" {
		return nil, "", eris.New("geocode: google api key not configured, set GOOGLE_API_KEY")
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, "", eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"address": {oneLine},
		"key":     {r.googleKey},
	}

	reqURL := googleGeocodeURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "geocode: google build request")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, "", eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, "", eris.Wrap(err, "geocode: google parse response")
	}
	return body, googleResp.Status, nil
}

// parseGooglePayload extracts coordinates from a cached or fresh Google
// payload.
func parseGooglePayload(payload []byte) (*Result, error) {
	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(payload, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	if googleResp.Status != "OK" || len(googleResp.Results) == 0 {
		return &Result{Matched: false, Source: SourceGoogle}, nil
	}

	result := googleResp.Results[0]
	return &Result{
		Latitude:  result.Geometry.Location.Lat,
		Longitude: result.Geometry.Location.Lng,
		Source:    SourceGoogle,
		Matched:   true,
	}, nil
}
