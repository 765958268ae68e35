// Package geocode resolves addresses to coordinates via the Census Geocoder
// (primary) and the Google Geocoding API (fallback), with a persistent
// per-source result cache in front of both.
package geocode

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Source identifies which backend produced a result.
type Source string

const (
	SourceCensus Source = "census"
	SourceGoogle Source = "google"
)

// AddressInput is a single address to resolve. ID must be the building
// identifier used as the cache key.
type AddressInput struct {
	ID      string
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds resolved coordinates with their source tag. Matched=false
// means no provider could place the address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    Source
	Matched   bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGoogleAPIKey enables the Google Geocoding API as fallback.
func WithGoogleAPIKey(key string) Option {
	return func(r *Resolver) {
		r.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Resolver) {
		r.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit applied to outbound calls.
// Burst stays at least 1 so fractional rates still admit single requests.
func WithRateLimit(rps float64) Option {
	return func(r *Resolver) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Resolver geocodes single addresses, consulting the cache before either
// backend. Safe for concurrent use across goroutines and processes: all
// shared state lives in the filesystem cache, whose writes are atomic.
type Resolver struct {
	cache      *Cache
	httpClient *http.Client
	limiter    *rate.Limiter
	googleKey  string
}

// NewResolver creates a Resolver backed by the given cache.
func NewResolver(cache *Cache, opts ...Option) *Resolver {
	r := &Resolver{
		cache:      cache,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(50, 50), // Census default: 50 req/s
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
