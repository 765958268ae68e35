// Package traveltime fetches travel-time isochrones from the TravelTime
// time-map API, with a file cache keyed by location, mode, and arrival
// parameters.
package traveltime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/civicsignal/ballotbox-cli/internal/resilience"
)

const timeMapURL = "https://api.traveltimeapp.com/v4/time-map"

// Mode is a TravelTime transportation type.
type Mode string

const (
	ModeDriving         Mode = "driving"
	ModePublicTransport Mode = "public_transport"
	ModeWalking         Mode = "walking"
)

// ParseMode validates a travel mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDriving, ModePublicTransport, ModeWalking:
		return Mode(s), nil
	default:
		return "", eris.Errorf("traveltime: unknown travel mode %q", s)
	}
}

// Location is a drop-box location to build an isochrone around.
type Location struct {
	ID  string
	Lat float64
	Lng float64
}

// Isochrone is the polygon of points that can reach the location within the
// travel budget, arriving by the arrival time. Geometry is nil when the API
// reports nothing reachable.
type Isochrone struct {
	Location Location
	Mode     Mode
	Minutes  int
	Arrival  time.Time
	Geometry *geom.MultiPolygon
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPreRequestDelay sets the fixed delay applied before every request
// attempt. Zero disables the throttle.
func WithPreRequestDelay(d time.Duration) Option {
	return func(c *Client) {
		c.preDelay = d
	}
}

// WithMaxRetries sets the maximum number of attempts for rate-limited requests.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBackoffBase sets the base unit of the linear retry backoff.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = d
	}
}

// Client calls the TravelTime time-map API. It is single-threaded by design;
// the only shared state is the file cache.
type Client struct {
	appID  string
	apiKey string

	httpClient  *http.Client
	cacheDir    string
	preDelay    time.Duration
	maxRetries  int
	backoffBase time.Duration
}

// NewClient creates a Client. Both credentials are required; their absence is
// a configuration error. An empty cacheDir disables caching.
func NewClient(appID, apiKey, cacheDir string, opts ...Option) (*Client, error) {
	if appID == "" || apiKey == "" {
		return nil, eris.New("traveltime: credentials not configured, set TRAVELTIME_ID and TRAVELTIME_KEY")
	}

	c := &Client{
		appID:       appID,
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		cacheDir:    cacheDir,
		preDelay:    5 * time.Second,
		maxRetries:  4,
		backoffBase: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cacheDir != "" {
		if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "traveltime: create cache dir %s", c.cacheDir)
		}
	}
	return c, nil
}

var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// SanitizeID strips everything but alphanumerics and hyphens from a location
// identifier so it is safe in cache filenames and search ids.
func SanitizeID(s string) string {
	return idSanitizer.ReplaceAllString(s, "")
}

// CacheKey builds the cache filename for one isochrone request.
func CacheKey(locationID string, mode Mode, minutes int, arrival time.Time) string {
	return fmt.Sprintf("%s_-_%s_-_%d_-_%s_-_%s.json",
		SanitizeID(locationID), mode, minutes, arrival.Weekday(), arrival.Format("1504"))
}

// Isochrone returns the isochrone for one location, loading from cache when
// the key exists and fetching (with rate-limit retry) otherwise.
func (c *Client) Isochrone(ctx context.Context, loc Location, mode Mode, arrival time.Time, minutes int) (*Isochrone, error) {
	iso := &Isochrone{
		Location: loc,
		Mode:     mode,
		Minutes:  minutes,
		Arrival:  arrival,
	}

	var payload []byte
	var cachePath string

	if c.cacheDir != "" {
		cachePath = filepath.Join(c.cacheDir, CacheKey(loc.ID, mode, minutes, arrival))
		if data, err := os.ReadFile(cachePath); err == nil {
			zap.L().Info("isochrone cache hit",
				zap.String("location", loc.ID),
				zap.String("file", cachePath),
			)
			payload = data
		}
	}

	if payload == nil {
		zap.L().Info("fetching isochrone",
			zap.String("location", loc.ID),
			zap.String("mode", string(mode)),
			zap.Int("minutes", minutes),
		)

		var err error
		payload, err = resilience.DoVal(ctx, resilience.RetryConfig{
			MaxAttempts: c.maxRetries,
			Backoff:     resilience.LinearBackoff(c.backoffBase),
			ShouldRetry: resilience.IsRateLimit,
			OnRetry:     resilience.RetryLogger("traveltime", "time-map"),
		}, func(ctx context.Context) ([]byte, error) {
			return c.fetch(ctx, loc, mode, arrival, minutes)
		})
		if err != nil {
			return nil, err
		}

		if cachePath != "" {
			if err := writeAtomic(cachePath, payload); err != nil {
				return nil, err
			}
		}
	}

	geometry, err := parseTimeMapPayload(payload)
	if err != nil {
		return nil, err
	}
	iso.Geometry = geometry
	return iso, nil
}

// Isochrones fetches isochrones for a set of locations sequentially.
func (c *Client) Isochrones(ctx context.Context, locs []Location, mode Mode, arrival time.Time, minutes int) ([]Isochrone, error) {
	out := make([]Isochrone, 0, len(locs))
	for _, loc := range locs {
		iso, err := c.Isochrone(ctx, loc, mode, arrival, minutes)
		if err != nil {
			return nil, eris.Wrapf(err, "traveltime: isochrone for %s", loc.ID)
		}
		out = append(out, *iso)
	}
	return out, nil
}

// timeMapRequest is the body of a time-map call with one arrival search.
type timeMapRequest struct {
	ArrivalSearches []arrivalSearch `json:"arrival_searches"`
}

type arrivalSearch struct {
	ID             string         `json:"id"`
	Coords         coords         `json:"coords"`
	ArrivalTime    string         `json:"arrival_time"`
	TravelTime     int            `json:"travel_time"`
	Transportation transportation `json:"transportation"`
	LevelOfDetail  levelOfDetail  `json:"level_of_detail"`
}

type coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type transportation struct {
	Type Mode `json:"type"`
}

type levelOfDetail struct {
	ScaleType string `json:"scale_type"`
	Level     string `json:"level"`
}

// fetch posts one arrival search. A 429 response is returned as a rate-limit
// error so the retry layer can back off; any other failure is terminal.
func (c *Client) fetch(ctx context.Context, loc Location, mode Mode, arrival time.Time, minutes int) ([]byte, error) {
	if c.preDelay > 0 {
		timer := time.NewTimer(c.preDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, eris.Wrap(ctx.Err(), "traveltime: pre-request delay")
		case <-timer.C:
		}
	}

	reqBody := timeMapRequest{
		ArrivalSearches: []arrivalSearch{{
			ID:             SanitizeID(loc.ID),
			Coords:         coords{Lat: loc.Lat, Lng: loc.Lng},
			ArrivalTime:    arrival.Format(time.RFC3339),
			TravelTime:     minutes * 60,
			Transportation: transportation{Type: mode},
			LevelOfDetail:  levelOfDetail{ScaleType: "simple", Level: "medium"},
		}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "traveltime: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, timeMapURL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "traveltime: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application-Id", c.appID)
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "traveltime: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resilience.NewHTTPError(
			eris.Errorf("traveltime: rate limited for %s", loc.ID),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("traveltime: returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "traveltime: read body")
	}
	return payload, nil
}

// writeAtomic writes data via a temp file and rename so a partially-written
// cache entry is never observable.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "traveltime: create temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "traveltime: write temp file %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "traveltime: close temp file %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "traveltime: rename into %s", path)
	}
	return nil
}
