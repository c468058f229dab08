package domain

import "time"

// MaintainerObserver receives notifications from the maintainer. Most calls
// are made while the maintainer holds its lock, so implementations must be
// fast and must not call back into the maintainer.
type MaintainerObserver interface {
	OnStateChange(state SyncState)
	OnSynchronized(snapshotID uint64, lastUpdateID uint64, replayed int)
	OnUpdateApplied(lastUpdateID uint64)
	OnUpdateDropped(reason string)
	OnBufferSize(size int)
	OnResync(reason string)
	OnSnapshotFetch(took time.Duration, err error)
}

type NopObserver struct{}

func (NopObserver) OnStateChange(SyncState) {}
func (NopObserver) OnSynchronized(uint64, uint64, int) {}
func (NopObserver) OnUpdateApplied(uint64) {}
func (NopObserver) OnUpdateDropped(string) {}
func (NopObserver) OnBufferSize(int) {}
func (NopObserver) OnResync(string) {}
func (NopObserver) OnSnapshotFetch(time.Duration, error) {}

// Observers fans every notification out to each member in order.
type Observers []MaintainerObserver

func (o Observers) OnStateChange(state SyncState) {
	for _, obs := range o {
		obs.OnStateChange(state)
	}
}

func (o Observers) OnSynchronized(snapshotID uint64, lastUpdateID uint64, replayed int) {
	for _, obs := range o {
		obs.OnSynchronized(snapshotID, lastUpdateID, replayed)
	}
}

func (o Observers) OnUpdateApplied(lastUpdateID uint64) {
	for _, obs := range o {
		obs.OnUpdateApplied(lastUpdateID)
	}
}

func (o Observers) OnUpdateDropped(reason string) {
	for _, obs := range o {
		obs.OnUpdateDropped(reason)
	}
}

func (o Observers) OnBufferSize(size int) {
	for _, obs := range o {
		obs.OnBufferSize(size)
	}
}

func (o Observers) OnResync(reason string) {
	for _, obs := range o {
		obs.OnResync(reason)
	}
}

func (o Observers) OnSnapshotFetch(took time.Duration, err error) {
	for _, obs := range o {
		obs.OnSnapshotFetch(took, err)
	}
}
