package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xonx4l/orderbook/helpers"
)

var ErrStreamClosed = errors.New("depth update stream closed")

type MaintainerConfig struct {
	// Depth requested from the snapshot endpoint.
	SnapshotLimit   int
	SnapshotTimeout time.Duration
	// Pause between failed bootstrap attempts.
	RetryInterval time.Duration
	// Max buffered updates while not live; exceeding it is fatal. <= 0 disables the limit.
	BufferHighWater int
}

func DefaultMaintainerConfig() MaintainerConfig {
	return MaintainerConfig{
		SnapshotLimit:   1000,
		SnapshotTimeout: 10 * time.Second,
		RetryInterval:   2 * time.Second,
		BufferHighWater: 5000,
	}
}

// DepthView is what readers get: a consistent copy of the book plus the
// state it was taken in. Synchronized is true only in the live state.
type DepthView struct {
	Snapshot     *OrderBookSnapshot
	State        SyncState
	Synchronized bool
}

// OrderbookMaintainer keeps a local order book in sync with a provider.
// It runs two tasks: the stream subscriber, which hands every update either
// to the buffer or to the live applier depending on the state, and the
// reconciler, which bootstraps the book from a snapshot plus the buffered
// updates at startup and after every detected gap.
type OrderbookMaintainer struct {
	symbol    *MarketSymbol
	orderBook *OrderBook
	syncAPI   ProviderSyncAPI
	streamAPI ProviderStreamAPI
	validator DepthUpdateValidator
	live      *LiveApplier
	observer  MaintainerObserver
	logger    zerolog.Logger
	cfg       MaintainerConfig

	// mu guards state, buffer and lastSnapshotID. Dispatching an update and
	// splicing both run entirely under it.
	mu             sync.Mutex
	state          SyncState
	buffer         *EventBuffer
	lastSnapshotID uint64

	buffered chan struct{}
	resync   chan struct{}
}

func NewOrderBookMaintainer(
	symbol *MarketSymbol,
	stream ProviderStreamAPI,
	syncAPI ProviderSyncAPI,
	depthUpdateValidator DepthUpdateValidator,
	cfg MaintainerConfig,
	logger zerolog.Logger,
) *OrderbookMaintainer {
	orderBook := NewOrderBook(symbol)

	return &OrderbookMaintainer{
		symbol:    symbol,
		orderBook: orderBook,
		syncAPI:   syncAPI,
		streamAPI: stream,
		validator: depthUpdateValidator,
		live:      NewLiveApplier(orderBook, depthUpdateValidator),
		observer:  NopObserver{},
		logger:    logger.With().Str("component", "maintainer").Str("symbol", symbol.String()).Logger(),
		cfg:       cfg,

		state:  SyncStateBuffering,
		buffer: NewEventBuffer(cfg.BufferHighWater),

		buffered: make(chan struct{}, 1),
		resync:   make(chan struct{}, 1),
	}
}

// SetObserver must be called before Run.
func (m *OrderbookMaintainer) SetObserver(observer MaintainerObserver) {
	if observer == nil {
		observer = NopObserver{}
	}
	m.observer = observer
}

// Run subscribes to the depth stream and keeps the book synchronized until
// ctx is cancelled. It returns nil on cancellation and an error only for
// conditions that cannot be retried: a failed subscription, a closed
// stream, or a buffer overflow.
func (m *OrderbookMaintainer) Run(ctx context.Context) error {
	subscription, err := m.streamAPI.DepthDiffStream(m.symbol)
	if err != nil {
		return fmt.Errorf("subscribe to depth update stream: %w", err)
	}
	if subscription.Unsubscribe != nil {
		defer subscription.Unsubscribe()
	}

	m.logger.Info().Str("topic", subscription.Topic).Msg("subscribed to depth update stream")
	m.observer.OnStateChange(m.State())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.runStreamSubscriber(gctx, subscription)
	})
	g.Go(func() error {
		return m.runReconciler(gctx)
	})

	err = g.Wait()
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}

func (m *OrderbookMaintainer) State() SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

func (m *OrderbookMaintainer) Symbol() *MarketSymbol {
	return m.symbol
}

// Depth returns up to limit levels per side. The snapshot and the state are
// read in the same critical section, so Synchronized always describes the
// returned data.
func (m *OrderbookMaintainer) Depth(limit int) *DepthView {
	m.mu.Lock()
	defer m.mu.Unlock()

	return &DepthView{
		Snapshot:     m.orderBook.TakeSnapshot(limit),
		State:        m.state,
		Synchronized: m.state.IsLive(),
	}
}

func (m *OrderbookMaintainer) runStreamSubscriber(ctx context.Context, subscription *Subscription[*OrderBookUpdate]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-subscription.Disconnected:
			m.onDisconnected()
		case update, ok := <-subscription.Stream:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrStreamClosed
			}

			if err := m.dispatch(update); err != nil {
				m.logger.Error().Err(err).Msg("stopping stream subscriber")
				return err
			}
		}
	}
}

func (m *OrderbookMaintainer) dispatch(update *OrderBookUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.IsLive() {
		err := m.live.Apply(update)
		switch {
		case err == nil:
			m.observer.OnUpdateApplied(update.LastUpdateID)
			return nil
		case errors.Is(err, ErrOrderBookUpdateIsOutdated):
			m.logger.Debug().
				Uint64("first_update_id", update.FirstUpdateID).
				Uint64("last_update_id", update.LastUpdateID).
				Uint64("book", m.orderBook.LastUpdateID()).
				Msg("dropped outdated update")
			m.observer.OnUpdateDropped("outdated")
			return nil
		default:
			m.logger.Warn().
				Uint64("first_update_id", update.FirstUpdateID).
				Uint64("last_update_id", update.LastUpdateID).
				Uint64("book", m.orderBook.LastUpdateID()).
				Msg("sequence gap in live stream, resynchronizing")
			m.startResyncLocked("live_gap")
		}
	}

	return m.bufferLocked(update)
}

// onDisconnected drops everything learned from the lost connection; updates
// after a reconnect never join the old sequence.
func (m *OrderbookMaintainer) onDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Warn().
		Str("state", m.state.String()).
		Uint64("book", m.orderBook.LastUpdateID()).
		Int("buffered", m.buffer.Len()).
		Msg("depth stream disconnected, resynchronizing")
	m.startResyncLocked("transport")
}

func (m *OrderbookMaintainer) bufferLocked(update *OrderBookUpdate) error {
	if err := m.buffer.Push(update); err != nil {
		return fmt.Errorf("%w: %d updates buffered while %s", err, m.buffer.Len(), m.state)
	}
	m.observer.OnBufferSize(m.buffer.Len())

	select {
	case m.buffered <- struct{}{}:
	default:
	}
	return nil
}

// startResyncLocked wakes the reconciler only when it is idle, i.e. the
// book was live. Otherwise it is still bootstrapping and its next attempt
// waits for fresh updates.
func (m *OrderbookMaintainer) startResyncLocked(reason string) {
	wasLive := m.state.IsLive()

	m.orderBook.Reset()
	m.buffer.Clear()
	m.setStateLocked(SyncStateBuffering)
	m.observer.OnResync(reason)
	m.observer.OnBufferSize(0)

	if !wasLive {
		return
	}
	select {
	case m.resync <- struct{}{}:
	default:
	}
}

func (m *OrderbookMaintainer) runReconciler(ctx context.Context) error {
	for {
		if err := m.bootstrap(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.resync:
			m.logger.Info().Msg("resync requested")
		}
	}
}

// bootstrap retries until the book is live or ctx is done. Every failure is
// recoverable: fetch errors and timeouts, a snapshot that did not advance,
// and gaps between the snapshot and the buffered updates.
func (m *OrderbookMaintainer) bootstrap(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := m.waitForBufferedUpdate(ctx); err != nil {
			return err
		}

		err := m.tryBootstrap(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", m.cfg.RetryInterval).Msg("bootstrap attempt failed")
		m.setState(SyncStateBuffering)

		if !helpers.SleepContext(ctx, m.cfg.RetryInterval) {
			return ctx.Err()
		}
	}
}

// The stream is subscribed before the first snapshot is requested, and the
// snapshot is only worth fetching once at least one update is buffered.
func (m *OrderbookMaintainer) waitForBufferedUpdate(ctx context.Context) error {
	for {
		m.mu.Lock()
		n := m.buffer.Len()
		m.mu.Unlock()

		if n > 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.buffered:
		}
	}
}

func (m *OrderbookMaintainer) tryBootstrap(ctx context.Context) error {
	m.setState(SyncStateFetching)

	snapshot, err := m.fetchSnapshot(ctx)
	if err != nil {
		return err
	}

	return m.splice(snapshot)
}

// fetchSnapshot never holds mu; the stream keeps buffering meanwhile.
func (m *OrderbookMaintainer) fetchSnapshot(ctx context.Context) (*OrderBookSnapshot, error) {
	if m.cfg.SnapshotTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.SnapshotTimeout)
		defer cancel()
	}

	started := time.Now()
	snapshot, err := m.syncAPI.OrderBookSnapshot(ctx, m.symbol, m.cfg.SnapshotLimit)
	m.observer.OnSnapshotFetch(time.Since(started), err)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}

	m.logger.Debug().Uint64("last_update_id", snapshot.LastUpdateID).
		Int("asks", len(snapshot.Asks)).Int("bids", len(snapshot.Bids)).
		Msg("snapshot received")
	return snapshot, nil
}

func (m *OrderbookMaintainer) splice(snapshot *OrderBookSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastSnapshotID != 0 && snapshot.LastUpdateID <= m.lastSnapshotID {
		return fmt.Errorf("%w: got %d, previous %d", ErrSnapshotNotAdvanced, snapshot.LastUpdateID, m.lastSnapshotID)
	}
	m.lastSnapshotID = snapshot.LastUpdateID
	m.setStateLocked(SyncStateSplicing)

	pending := m.buffer.DrainAndDiscardThrough(snapshot.LastUpdateID)
	m.observer.OnBufferSize(m.buffer.Len())

	staged, applied, err := Splice(m.symbol, snapshot, pending, m.validator)
	if err != nil {
		return err
	}

	if err := m.orderBook.Restore(staged); err != nil {
		return err
	}
	m.buffer.TakeAll()
	m.observer.OnBufferSize(0)
	m.observer.OnSynchronized(snapshot.LastUpdateID, m.orderBook.LastUpdateID(), applied)
	m.setStateLocked(SyncStateLive)

	m.logger.Info().
		Uint64("snapshot", snapshot.LastUpdateID).
		Int("replayed", applied).
		Uint64("last_update_id", m.orderBook.LastUpdateID()).
		Msg("order book synchronized")
	return nil
}

func (m *OrderbookMaintainer) setState(state SyncState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setStateLocked(state)
}

func (m *OrderbookMaintainer) setStateLocked(state SyncState) {
	if m.state == state {
		return
	}

	m.logger.Debug().Str("from", m.state.String()).Str("to", state.String()).Msg("state transition")
	m.state = state
	m.observer.OnStateChange(state)
}
