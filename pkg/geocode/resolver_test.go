package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const censusMatchBody = `{
	"result": {
		"addressMatches": [{
			"coordinates": {"x": -118.2437, "y": 33.9731},
			"matchedAddress": "123 MAIN ST, SPRINGFIELD, CA, 90001"
		}]
	}
}`

const censusNoMatchBody = `{"result": {"addressMatches": []}}`

const googleOKBody = `{
	"status": "OK",
	"results": [{
		"formatted_address": "123 Main St, Springfield, CA 90001, USA",
		"geometry": {"location": {"lat": 33.9731, "lng": -118.2437}}
	}]
}`

func countingServer(t *testing.T, body string, status int, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_CensusSuccessIsCached(t *testing.T) {
	var calls atomic.Int64
	srv := countingServer(t, censusMatchBody, http.StatusOK, &calls)

	cache := newTestCache(t)
	r := NewResolver(cache, WithHTTPClient(newRewriteClient(srv.URL, censusOneLineURL)))
	r.limiter = newTestLimiter()

	addr := AddressInput{ID: "b1", Street: "123 Main St", City: "Springfield", State: "CA", ZipCode: "90001"}

	result, err := r.Resolve(context.Background(), addr)
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.Equal(t, SourceCensus, result.Source)
	assert.InDelta(t, 33.9731, result.Latitude, 0.0001)
	assert.InDelta(t, -118.2437, result.Longitude, 0.0001)
	assert.Equal(t, int64(1), calls.Load())
	assert.True(t, cache.HasSuccess(SourceCensus, "b1"))

	// Second resolution must not issue any network request.
	result, err = r.Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, int64(1), calls.Load())
}

func TestResolve_CensusNoMatchFallsBackToGoogle(t *testing.T) {
	var censusCalls, googleCalls atomic.Int64
	censusSrv := countingServer(t, censusNoMatchBody, http.StatusOK, &censusCalls)
	googleSrv := countingServer(t, googleOKBody, http.StatusOK, &googleCalls)

	cache := newTestCache(t)
	r := NewResolver(cache,
		WithHTTPClient(newSplitClient(censusSrv.URL, googleSrv.URL)),
		WithGoogleAPIKey("test-key"),
	)
	r.limiter = newTestLimiter()

	addr := AddressInput{ID: "b2", Street: "9 Nowhere Ln", City: "Springfield", State: "CA", ZipCode: "90001"}

	result, err := r.Resolve(context.Background(), addr)
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.Equal(t, SourceGoogle, result.Source)
	assert.Equal(t, int64(1), censusCalls.Load())
	assert.Equal(t, int64(1), googleCalls.Load())
	assert.True(t, cache.HasFailure(SourceCensus, "b2"))
	assert.True(t, cache.HasSuccess(SourceGoogle, "b2"))
}

func TestResolve_CachedCensusFailureSkipsPrimary(t *testing.T) {
	var censusCalls, googleCalls atomic.Int64
	censusSrv := countingServer(t, censusMatchBody, http.StatusOK, &censusCalls)
	googleSrv := countingServer(t, googleOKBody, http.StatusOK, &googleCalls)

	cache := newTestCache(t)
	require.NoError(t, cache.WriteFailure(SourceCensus, "b3"))

	r := NewResolver(cache,
		WithHTTPClient(newSplitClient(censusSrv.URL, googleSrv.URL)),
		WithGoogleAPIKey("test-key"),
	)
	r.limiter = newTestLimiter()

	result, err := r.Resolve(context.Background(), AddressInput{
		ID: "b3", Street: "1 Elm St", City: "Springfield", State: "CA", ZipCode: "90001",
	})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, SourceGoogle, result.Source)
	assert.Zero(t, censusCalls.Load(), "primary source must not be re-attempted")
	assert.Equal(t, int64(1), googleCalls.Load())
}

func TestResolve_GoogleNonOKStatusIsPermanentFailure(t *testing.T) {
	var googleCalls atomic.Int64
	censusSrv := countingServer(t, censusNoMatchBody, http.StatusOK, new(atomic.Int64))
	googleSrv := countingServer(t, `{"status": "ZERO_RESULTS", "results": []}`, http.StatusOK, &googleCalls)

	cache := newTestCache(t)
	r := NewResolver(cache,
		WithHTTPClient(newSplitClient(censusSrv.URL, googleSrv.URL)),
		WithGoogleAPIKey("test-key"),
	)
	r.limiter = newTestLimiter()

	addr := AddressInput{ID: "b4", Street: "0 Void Rd", City: "Springfield", State: "CA", ZipCode: "90001"}

	result, err := r.Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.True(t, cache.HasFailure(SourceGoogle, "b4"))

	// Both failure markers present now; no further calls on retry.
	result, err = r.Resolve(context.Background(), addr)
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, int64(1), googleCalls.Load())
}

func TestResolve_CensusTransportErrorYieldsUnmatchedWithoutFallback(t *testing.T) {
	var googleCalls atomic.Int64
	censusSrv := countingServer(t, "oops", http.StatusInternalServerError, new(atomic.Int64))
	googleSrv := countingServer(t, googleOKBody, http.StatusOK, &googleCalls)

	cache := newTestCache(t)
	r := NewResolver(cache,
		WithHTTPClient(newSplitClient(censusSrv.URL, googleSrv.URL)),
		WithGoogleAPIKey("test-key"),
	)
	r.limiter = newTestLimiter()

	result, err := r.Resolve(context.Background(), AddressInput{
		ID: "b5", Street: "2 Oak St", City: "Springfield", State: "CA", ZipCode: "90001",
	})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Zero(t, googleCalls.Load(), "fallback must not run on a census transport error")
	assert.False(t, cache.HasFailure(SourceCensus, "b5"), "transport errors are not permanent failures")
}

func TestResolve_GoogleTransportErrorPropagates(t *testing.T) {
	censusSrv := countingServer(t, censusNoMatchBody, http.StatusOK, new(atomic.Int64))
	googleSrv := countingServer(t, "oops", http.StatusBadGateway, new(atomic.Int64))

	cache := newTestCache(t)
	r := NewResolver(cache,
		WithHTTPClient(newSplitClient(censusSrv.URL, googleSrv.URL)),
		WithGoogleAPIKey("test-key"),
	)
	r.limiter = newTestLimiter()

	_, err := r.Resolve(context.Background(), AddressInput{
		ID: "b6", Street: "3 Pine St", City: "Springfield", State: "CA", ZipCode: "90001",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google")
}

func TestResolve_MissingGoogleKeyIsFatalAtPointOfUse(t *testing.T) {
	censusSrv := countingServer(t, censusNoMatchBody, http.StatusOK, new(atomic.Int64))

	cache := newTestCache(t)
	r := NewResolver(cache, WithHTTPClient(newRewriteClient(censusSrv.URL, censusOneLineURL)))
	r.limiter = newTestLimiter()

	_, err := r.Resolve(context.Background(), AddressInput{
		ID: "b7", Street: "4 Birch St", City: "Springfield", State: "CA", ZipCode: "90001",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")
}

func TestResolve_MissingIdentifier(t *testing.T) {
	r := NewResolver(newTestCache(t))
	_, err := r.Resolve(context.Background(), AddressInput{Street: "123 Main St"})
	assert.Error(t, err)
}

func TestParseCensusPayload(t *testing.T) {
	result, err := parseCensusPayload([]byte(censusMatchBody))
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, SourceCensus, result.Source)

	result, err = parseCensusPayload([]byte(censusNoMatchBody))
	require.NoError(t, err)
	assert.False(t, result.Matched)

	_, err = parseCensusPayload([]byte("not json"))
	assert.Error(t, err)
}

func TestParseGooglePayload(t *testing.T) {
	result, err := parseGooglePayload([]byte(googleOKBody))
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, SourceGoogle, result.Source)

	result, err = parseGooglePayload([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestWithRateLimit_FractionalRateKeepsBurst(t *testing.T) {
	r := NewResolver(newTestCache(t), WithRateLimit(0.5))
	assert.Equal(t, 1, r.limiter.Burst())
	require.NoError(t, r.limiter.Wait(context.Background()))
}
