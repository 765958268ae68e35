package geocode

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Resolve geocodes one address. The cache is consulted first for each
// source; Census is tried before Google. A recorded failure for a source is
// permanent within the cache's lifetime and is never retried.
//
// Error semantics mirror the two backends deliberately: Census transport
// errors are logged and yield an unmatched result without attempting the
// fallback, while Google transport errors propagate to the caller. Missing
// Google credentials surface as an error the first time the fallback is
// actually needed.
func (r *Resolver) Resolve(ctx context.Context, addr AddressInput) (*Result, error) {
	if addr.ID == "" {
		return nil, eris.New("geocode: address input has no identifier")
	}

	if r.cache.HasSuccess(SourceCensus, addr.ID) {
		payload, err := r.cache.ReadSuccess(SourceCensus, addr.ID)
		if err != nil {
			return nil, err
		}
		return parseCensusPayload(payload)
	}

	if r.cache.HasFailure(SourceCensus, addr.ID) {
		return r.resolveGoogle(ctx, addr)
	}

	oneLine := formatOneLine(addr)
	payload, err := r.fetchCensus(ctx, oneLine)
	if err != nil {
		zap.L().Error("census geocode failed",
			zap.String("building_id", addr.ID),
			zap.Error(err),
		)
		return &Result{Matched: false, Source: SourceCensus}, nil
	}

	result, err := parseCensusPayload(payload)
	if err != nil {
		zap.L().Error("census geocode returned malformed payload",
			zap.String("building_id", addr.ID),
			zap.Error(err),
		)
		return &Result{Matched: false, Source: SourceCensus}, nil
	}

	if !result.Matched {
		if err := r.cache.WriteFailure(SourceCensus, addr.ID); err != nil {
			return nil, err
		}
		return r.resolveGoogle(ctx, addr)
	}

	if err := r.cache.WriteSuccess(SourceCensus, addr.ID, payload); err != nil {
		return nil, err
	}
	return result, nil
}

// resolveGoogle runs the fallback path, subject to its own cache.
func (r *Resolver) resolveGoogle(ctx context.Context, addr AddressInput) (*Result, error) {
	if r.cache.HasSuccess(SourceGoogle, addr.ID) {
		payload, err := r.cache.ReadSuccess(SourceGoogle, addr.ID)
		if err != nil {
			return nil, err
		}
		return parseGooglePayload(payload)
	}

	if r.cache.HasFailure(SourceGoogle, addr.ID) {
		return &Result{Matched: false, Source: SourceGoogle}, nil
	}

	payload, status, err := r.fetchGoogle(ctx, formatOneLine(addr))
	if err != nil {
		return nil, err
	}

	if status != "OK" {
		// A non-OK status is a permanent no-match for this address.
		if err := r.cache.WriteFailure(SourceGoogle, addr.ID); err != nil {
			return nil, err
		}
		return &Result{Matched: false, Source: SourceGoogle}, nil
	}

	if err := r.cache.WriteSuccess(SourceGoogle, addr.ID, payload); err != nil {
		return nil, err
	}
	return parseGooglePayload(payload)
}

// formatOneLine formats an address as a single line for either API.
func formatOneLine(addr AddressInput) string {
	var nonEmpty []string
	for _, p := range []string{addr.Street, addr.City, addr.State, addr.ZipCode} {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
