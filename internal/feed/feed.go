// Package feed hosts market data providers that hand the engine normalized
// book-and-trade snapshots.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tapereader/internal/config"
	"tapereader/internal/market"
)

const (
	// ProviderStub emits deterministic synthetic snapshots for offline work.
	ProviderStub = "stub"
	// ProviderWebsocket consumes a gateway websocket stream.
	ProviderWebsocket = "websocket"
)

// Provider is a pluggable snapshot source. Snapshot never blocks on the
// network beyond the context; providers that stream keep their own state and
// return the latest view.
type Provider interface {
	// Start launches any background streaming; it returns immediately.
	Start(ctx context.Context)
	// Snapshot returns the current market view for the tracked symbols.
	Snapshot(ctx context.Context) (*market.Snapshot, error)
}

// New constructs the provider named by the configuration.
func New(cfg config.Feed, mkt config.Market, log zerolog.Logger) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderStub:
		stub := NewStub(mkt.LegA, mkt.LegB)
		stub.Throttle(PollInterval(cfg))
		return stub, nil
	case ProviderWebsocket:
		if cfg.URL == "" {
			return nil, fmt.Errorf("websocket feed requires a url")
		}
		return NewWebsocket(cfg.URL, []string{mkt.LegA, mkt.LegB}, log), nil
	default:
		return nil, fmt.Errorf("unknown feed provider %q", cfg.Provider)
	}
}

// PollInterval converts the configured cadence with a floor.
func PollInterval(cfg config.Feed) time.Duration {
	if cfg.PollIntervalMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(cfg.PollIntervalMs) * time.Millisecond
}
