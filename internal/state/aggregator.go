package state

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// Observer is called after every state change once the session is live. It
// reads the new state through Aggregator.Snapshot.
type Observer func()

// ObserverID identifies one registration. Registering the same function
// twice yields two ids and two invocations per change.
type ObserverID uint64

type observerEntry struct {
	id ObserverID
	fn Observer
}

// Aggregator holds the device state. Writes go through a Writer bound to one
// session; Reset retires that writer so late pushes from the ended session
// are dropped. Observers run only while live.
type Aggregator struct {
	log zerolog.Logger

	mu    sync.RWMutex
	state DeviceState
	live  bool
	gen   uint64

	// obsMu is taken before mu when both are held.
	obsMu     sync.Mutex
	observers []observerEntry
	nextID    ObserverID
}

// Writer applies reducer updates on behalf of one session. Once the
// aggregator has been reset or a newer session has begun, every write
// through it is ignored.
type Writer struct {
	agg *Aggregator
	gen uint64
}

// NewAggregator creates an aggregator holding the empty defaults.
func NewAggregator(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		log:   log.With().Str("component", "state").Logger(),
		state: emptyState(),
	}
}

// Begin starts a new session and returns its writer. Writers of earlier
// sessions go stale.
func (a *Aggregator) Begin() *Writer {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	a.live = false
	return &Writer{agg: a, gen: a.gen}
}

// Snapshot returns the current state.
func (a *Aggregator) Snapshot() DeviceState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := a.state
	s.Live = a.live
	return s
}

// Live reports whether priming has completed for the current session.
func (a *Aggregator) Live() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}

// RegisterObserver adds fn to the registry. When the session is already live,
// fn is invoked once before RegisterObserver returns.
func (a *Aggregator) RegisterObserver(fn Observer) ObserverID {
	a.obsMu.Lock()
	a.nextID++
	id := a.nextID
	a.observers = append(a.observers, observerEntry{id: id, fn: fn})
	live := a.Live()
	a.obsMu.Unlock()

	if live {
		fn()
	}
	return id
}

// UnregisterObserver removes one registration. Unknown ids are ignored.
func (a *Aggregator) UnregisterObserver(id ObserverID) {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	a.observers = slices.DeleteFunc(a.observers, func(e observerEntry) bool {
		return e.id == id
	})
}

// ClearObservers removes every registration.
func (a *Aggregator) ClearObservers() {
	a.obsMu.Lock()
	a.observers = nil
	a.obsMu.Unlock()
}

func (a *Aggregator) snapshotObservers() []observerEntry {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	return slices.Clone(a.observers)
}

// notify runs every observer concurrently and waits for all of them.
func notify(observers []observerEntry) {
	if len(observers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, o := range observers {
		wg.Add(1)
		go func(fn Observer) {
			defer wg.Done()
			fn()
		}(o.fn)
	}
	wg.Wait()
}

// update applies fn under the lock and notifies observers when live. Writes
// from a stale writer are dropped.
func (w *Writer) update(fn func(s *DeviceState)) {
	a := w.agg
	a.mu.Lock()
	if w.gen != a.gen {
		a.mu.Unlock()
		return
	}
	fn(&a.state)
	live := a.live
	a.mu.Unlock()

	if live {
		notify(a.snapshotObservers())
	}
}

// AppChanged records the foreground app id. An empty id means no app.
func (w *Writer) AppChanged(appID string) {
	w.update(func(s *DeviceState) { s.CurrentAppID = appID })
}

// MuteChanged records the mute flag.
func (w *Writer) MuteChanged(muted bool) {
	w.update(func(s *DeviceState) { s.Muted = muted })
}

// VolumeChanged records the volume level.
func (w *Writer) VolumeChanged(volume int) {
	w.update(func(s *DeviceState) { s.Volume = volume })
}

// ChannelChanged records the current channel payload.
func (w *Writer) ChannelChanged(channel json.RawMessage) {
	w.update(func(s *DeviceState) { s.Channel = channel })
}

// AppsReplaced swaps the app catalog, keyed by each entry's "id".
func (w *Writer) AppsReplaced(entries []json.RawMessage) {
	catalog := keyCatalog(entries, "id")
	w.update(func(s *DeviceState) { s.Apps = catalog })
}

// InputsReplaced swaps the input catalog, keyed by each entry's "appId".
func (w *Writer) InputsReplaced(entries []json.RawMessage) {
	catalog := keyCatalog(entries, "appId")
	w.update(func(s *DeviceState) { s.Inputs = catalog })
}

// SetStaticInfo stores system and software info fetched during priming.
// It never notifies.
func (w *Writer) SetStaticInfo(system, software json.RawMessage) {
	a := w.agg
	a.mu.Lock()
	defer a.mu.Unlock()
	if w.gen != a.gen {
		return
	}
	a.state.SystemInfo = system
	a.state.SoftwareInfo = software
}

// GoLive marks priming complete and fires the single post-priming
// notification. An observer registering concurrently is either part of that
// notification or invoked by RegisterObserver, never both.
func (w *Writer) GoLive() {
	a := w.agg
	a.obsMu.Lock()
	a.mu.Lock()
	if w.gen != a.gen {
		a.mu.Unlock()
		a.obsMu.Unlock()
		return
	}
	a.live = true
	a.mu.Unlock()
	observers := slices.Clone(a.observers)
	a.obsMu.Unlock()

	a.log.Debug().Msg("state live")
	notify(observers)
}

// Reset restores the empty defaults, clears the live flag, retires the
// current writer and notifies observers of the empty state. It waits for the
// fan-out to finish.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.state = emptyState()
	a.live = false
	a.gen++
	a.mu.Unlock()

	a.log.Debug().Msg("state reset")
	notify(a.snapshotObservers())
}

// Calibration derives calibration support from the current model name.
func (a *Aggregator) Calibration() CalibrationInfo {
	return CalibrationSupport(a.Snapshot().ModelName())
}
