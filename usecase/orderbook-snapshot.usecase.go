package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/xonx4l/orderbook/domain"
)

var ErrUnknownSymbol = errors.New("symbol is not maintained")

type DepthSource interface {
	Symbol() *domain.MarketSymbol
	Depth(limit int) *domain.DepthView
}

type OrderBookSnapshotConfig struct {
	// Depth requested from the provider; queries are cut down from it.
	FallbackDepth int
	// How long a provider snapshot, or the failure to get one, is reused.
	FallbackTTL time.Duration
}

type fallbackResult struct {
	snapshot  *domain.OrderBookSnapshot
	err       error
	fetchedAt time.Time
}

type OrderBookSnapshotUseCase struct {
	local   DepthSource
	syncAPI domain.ProviderSyncAPI
	cfg     OrderBookSnapshotConfig
	logger  zerolog.Logger
	now     func() time.Time

	group    singleflight.Group
	mu       sync.Mutex
	fallback *fallbackResult
}

func NewOrderBookSnapshotUseCase(
	local DepthSource,
	syncAPI domain.ProviderSyncAPI,
	cfg OrderBookSnapshotConfig,
	logger zerolog.Logger,
) *OrderBookSnapshotUseCase {
	return &OrderBookSnapshotUseCase{
		local:   local,
		syncAPI: syncAPI,
		cfg:     cfg,
		logger:  logger.With().Str("component", "orderbook-snapshot-usecase").Logger(),
		now:     time.Now,
	}
}

// GetOrderBookSnapshot returns the local book when it is synchronized.
// While the book is bootstrapping or resynchronizing it serves the provider's
// snapshot instead, and when that fails too it falls back to the local view,
// which is consistent but flagged as not synchronized.
//
// Provider snapshots share the request weight budget with the maintainer's
// own bootstrap, so at most one request is made per FallbackTTL.
func (o *OrderBookSnapshotUseCase) GetOrderBookSnapshot(
	ctx context.Context, symbol *domain.MarketSymbol, limit int,
) (*domain.DepthView, error) {
	if !o.local.Symbol().Equal(symbol) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	view := o.local.Depth(limit)
	if view.Synchronized {
		return view, nil
	}

	snapshot, err := o.providerSnapshot(ctx, symbol)
	if err != nil {
		o.logger.Warn().Err(err).Str("state", view.State.String()).
			Msg("provider snapshot unavailable, serving unsynchronized local book")
		return view, nil
	}

	o.logger.Debug().Str("state", view.State.String()).Msg("local book not live, serving provider snapshot")
	return &domain.DepthView{
		Snapshot:     snapshot.Limit(limit),
		State:        view.State,
		Synchronized: false,
	}, nil
}

func (o *OrderBookSnapshotUseCase) providerSnapshot(ctx context.Context, symbol *domain.MarketSymbol) (*domain.OrderBookSnapshot, error) {
	if cached := o.cached(); cached != nil {
		return cached.snapshot, cached.err
	}

	v, _, _ := o.group.Do(symbol.String(), func() (interface{}, error) {
		if cached := o.cached(); cached != nil {
			return cached, nil
		}

		snapshot, err := o.syncAPI.OrderBookSnapshot(ctx, symbol, o.cfg.FallbackDepth)
		result := &fallbackResult{snapshot: snapshot, err: err, fetchedAt: o.now()}

		// A caller that went away says nothing about the provider.
		if ctx.Err() == nil {
			o.mu.Lock()
			o.fallback = result
			o.mu.Unlock()
		}
		return result, nil
	})

	result := v.(*fallbackResult)
	return result.snapshot, result.err
}

func (o *OrderBookSnapshotUseCase) cached() *fallbackResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fallback == nil || o.now().Sub(o.fallback.fetchedAt) >= o.cfg.FallbackTTL {
		return nil
	}
	return o.fallback
}
