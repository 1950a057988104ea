package state

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestAggregator_NoNotificationWhilePriming(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	w := agg.Begin()

	var calls atomic.Int32
	agg.RegisterObserver(func() { calls.Add(1) })

	w.AppChanged("netflix")
	w.VolumeChanged(10)
	w.MuteChanged(true)
	w.AppsReplaced([]json.RawMessage{json.RawMessage(`{"id":"netflix","title":"Netflix"}`)})

	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no notifications while priming, got %d", got)
	}

	// Observer registered mid-priming receives the single live notification.
	var late atomic.Int32
	agg.RegisterObserver(func() { late.Add(1) })

	w.GoLive()

	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly one notification on live, got %d", got)
	}
	if got := late.Load(); got != 1 {
		t.Errorf("expected mid-priming observer notified once, got %d", got)
	}

	snap := agg.Snapshot()
	if snap.Volume != 10 || !snap.Muted || snap.CurrentAppID != "netflix" || !snap.Live {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestAggregator_NotifiesEachChangeWhenLive(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	w := agg.Begin()
	w.GoLive()

	var calls atomic.Int32
	agg.RegisterObserver(func() { calls.Add(1) })
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected immediate invocation when registering while live, got %d", got)
	}

	w.VolumeChanged(20)
	w.ChannelChanged(json.RawMessage(`{"channelId":"1_2"}`))

	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 notifications, got %d", got)
	}
	if agg.Snapshot().Volume != 20 {
		t.Errorf("expected volume 20, got %d", agg.Snapshot().Volume)
	}
}

func TestAggregator_ObserverSeesNewState(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	w := agg.Begin()
	w.GoLive()

	var mu sync.Mutex
	var seen []int
	agg.RegisterObserver(func() {
		mu.Lock()
		seen = append(seen, agg.Snapshot().Volume)
		mu.Unlock()
	})

	w.VolumeChanged(5)
	w.VolumeChanged(6)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[1] != 5 || seen[2] != 6 {
		t.Errorf("unexpected observed volumes %v", seen)
	}
}

func TestAggregator_Unregister(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	w := agg.Begin()

	var a, b atomic.Int32
	fn := func() { a.Add(1) }
	id1 := agg.RegisterObserver(fn)
	agg.RegisterObserver(fn)
	agg.RegisterObserver(func() { b.Add(1) })

	w.GoLive()
	if got := a.Load(); got != 2 {
		t.Fatalf("duplicate registrations should both fire, got %d", got)
	}

	agg.UnregisterObserver(id1)
	agg.UnregisterObserver(ObserverID(999))
	w.MuteChanged(true)

	if got := a.Load(); got != 3 {
		t.Errorf("expected one remaining registration to fire, got %d", got)
	}
	if got := b.Load(); got != 2 {
		t.Errorf("expected other observer to fire twice, got %d", got)
	}

	agg.ClearObservers()
	w.MuteChanged(false)
	if a.Load() != 3 || b.Load() != 2 {
		t.Error("cleared observers must not fire")
	}
}

func TestAggregator_Reset(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	w := agg.Begin()
	w.SetStaticInfo(json.RawMessage(`{"modelName":"OLED55C9PLA"}`), json.RawMessage(`{"product_name":"webOSTV 4.5"}`))
	w.AppChanged("youtube")
	w.VolumeChanged(30)
	w.InputsReplaced([]json.RawMessage{json.RawMessage(`{"appId":"hdmi1","label":"HDMI 1"}`)})
	w.ChannelChanged(json.RawMessage(`{"channelId":"7"}`))
	w.GoLive()

	var calls atomic.Int32
	var afterReset DeviceState
	agg.RegisterObserver(func() {
		calls.Add(1)
		afterReset = agg.Snapshot()
	})

	agg.Reset()

	if got := calls.Load(); got != 2 {
		t.Fatalf("expected a notification on reset, got %d total", got)
	}
	if agg.Live() {
		t.Error("live flag must be cleared")
	}
	if afterReset.Live || afterReset.Volume != 0 || afterReset.CurrentAppID != "" ||
		afterReset.Channel != nil || afterReset.SystemInfo != nil || afterReset.SoftwareInfo != nil ||
		len(afterReset.Apps) != 0 || len(afterReset.Inputs) != 0 || afterReset.Muted {
		t.Errorf("expected empty defaults, got %+v", afterReset)
	}

	// The reset retires the session's writer.
	w.VolumeChanged(1)
	w.AppsReplaced([]json.RawMessage{json.RawMessage(`{"id":"late","title":"Late"}`)})
	if got := calls.Load(); got != 2 {
		t.Errorf("expected no notification after reset, got %d", got)
	}
	if s := agg.Snapshot(); s.Volume != 0 || len(s.Apps) != 0 {
		t.Errorf("writes after reset must be dropped, got %+v", s)
	}
}

func TestAggregator_StaleWriterDropped(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	old := agg.Begin()
	old.VolumeChanged(15)
	old.GoLive()
	agg.Reset()

	cur := agg.Begin()
	cur.VolumeChanged(3)

	// A push from the ended session arriving after the next one began.
	old.VolumeChanged(99)
	old.SetStaticInfo(json.RawMessage(`{"modelName":"stale"}`), nil)
	old.GoLive()

	s := agg.Snapshot()
	if s.Volume != 3 {
		t.Errorf("expected volume 3 from current session, got %d", s.Volume)
	}
	if s.SystemInfo != nil {
		t.Errorf("stale static info stored: %s", s.SystemInfo)
	}
	if s.Live {
		t.Error("stale writer must not mark the new session live")
	}

	cur.GoLive()
	if !agg.Live() {
		t.Error("expected current writer to go live")
	}
}

func TestAggregator_RegisterDuringGoLiveNotifiesOnce(t *testing.T) {
	for trial := 0; trial < 50; trial++ {
		agg := NewAggregator(zerolog.Nop())
		w := agg.Begin()

		const observers = 16
		counts := make([]atomic.Int32, observers)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := range counts {
			wg.Add(1)
			go func(n *atomic.Int32) {
				defer wg.Done()
				<-start
				agg.RegisterObserver(func() { n.Add(1) })
			}(&counts[i])
		}

		close(start)
		w.GoLive()
		wg.Wait()

		for i := range counts {
			if got := counts[i].Load(); got != 1 {
				t.Fatalf("trial %d: observer %d notified %d times", trial, i, got)
			}
		}
	}
}

func TestAggregator_CatalogReplacedWholesale(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	w := agg.Begin()

	w.AppsReplaced([]json.RawMessage{
		json.RawMessage(`{"id":"a","title":"A"}`),
		json.RawMessage(`{"id":"b","title":"B"}`),
		json.RawMessage(`{"title":"no id"}`),
	})
	first := agg.Snapshot()
	if len(first.Apps) != 2 {
		t.Fatalf("expected 2 apps, got %d", len(first.Apps))
	}

	w.AppsReplaced([]json.RawMessage{json.RawMessage(`{"id":"c","title":"C"}`)})
	second := agg.Snapshot()
	if len(second.Apps) != 1 {
		t.Fatalf("expected catalog replaced, got %d apps", len(second.Apps))
	}
	if _, ok := second.App("c"); !ok {
		t.Error("expected app c")
	}

	// Earlier snapshots are unaffected by later swaps.
	if _, ok := first.App("a"); !ok || len(first.Apps) != 2 {
		t.Error("published snapshot was mutated")
	}

	w.InputsReplaced([]json.RawMessage{json.RawMessage(`{"appId":"com.webos.app.hdmi1","label":"HDMI1"}`)})
	if _, ok := agg.Snapshot().Input("com.webos.app.hdmi1"); !ok {
		t.Error("expected input keyed by appId")
	}
}

func TestAggregator_Calibration(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	w := agg.Begin()
	if got := agg.Calibration(); got != (CalibrationInfo{}) {
		t.Errorf("expected no support without system info, got %+v", got)
	}

	w.SetStaticInfo(json.RawMessage(`{"modelName":"OLED65B8PLA"}`), nil)
	got := agg.Calibration()
	if !got.LUT1D || got.LUT3DSize != 17 || got.DVConfigType != 2018 {
		t.Errorf("unexpected calibration info %+v", got)
	}
}
