package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundlink-io/groundlink/internal/gcsd/event"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

func alertEvent(id telemetry.VehicleID) event.Event {
	return event.Event{Kind: event.KindAlert, VehicleID: id, At: time.Now()}
}

func stateEvent(id telemetry.VehicleID) event.Event {
	return event.Event{Kind: event.KindStateChanged, VehicleID: id, At: time.Now()}
}

func TestPublishFanOutAndOrder(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	got := make(map[string][]telemetry.VehicleID)
	sub := func(name string) {
		require.NoError(t, b.Subscribe(name, 16, nil, func(ev event.Event) {
			mu.Lock()
			got[name] = append(got[name], ev.VehicleID)
			mu.Unlock()
		}))
	}
	sub("first")
	sub("second")

	for i := 0; i < 5; i++ {
		b.Publish(stateEvent(telemetry.VehicleID(rune('a' + i))))
	}
	b.Close()

	want := []telemetry.VehicleID{"a", "b", "c", "d", "e"}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got["first"], "per-subscriber delivery must stay FIFO")
	assert.Equal(t, want, got["second"])
}

func TestFilter(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var kinds []event.Kind
	onlyAlerts := func(ev event.Event) bool { return ev.Kind == event.KindAlert }
	require.NoError(t, b.Subscribe("alerts", 16, onlyAlerts, func(ev event.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	}))

	b.Publish(stateEvent("drone-a"))
	b.Publish(alertEvent("drone-a"))
	b.Publish(stateEvent("drone-b"))
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []event.Kind{event.KindAlert}, kinds)
}

// A blocked subscriber must not delay delivery to a responsive one.
func TestStalledSubscriberIsolated(t *testing.T) {
	b := New()
	defer b.Close()

	release := make(chan struct{})
	require.NoError(t, b.Subscribe("stalled", 1, nil, func(event.Event) {
		<-release
	}))

	delivered := make(chan telemetry.VehicleID, 16)
	require.NoError(t, b.Subscribe("responsive", 16, nil, func(ev event.Event) {
		delivered <- ev.VehicleID
	}))

	for i := 0; i < 5; i++ {
		b.Publish(stateEvent("drone-a"))
	}

	for i := 0; i < 5; i++ {
		select {
		case <-delivered:
		case <-time.After(2 * time.Second):
			t.Fatal("responsive subscriber starved by stalled one")
		}
	}
	close(release)
}

func TestOverflowDropsOldest(t *testing.T) {
	var mu sync.Mutex
	var droppedFrom []string
	b := New(WithDropHandler(func(name string, _ event.Event) {
		mu.Lock()
		droppedFrom = append(droppedFrom, name)
		mu.Unlock()
	}))

	block := make(chan struct{})
	var got []telemetry.VehicleID
	require.NoError(t, b.Subscribe("slow", 2, nil, func(ev event.Event) {
		<-block
		mu.Lock()
		got = append(got, ev.VehicleID)
		mu.Unlock()
	}))

	// One event occupies the handler; the queue of 2 then overflows.
	b.Publish(stateEvent("h"))
	for _, id := range []telemetry.VehicleID{"a", "b", "c", "d"} {
		b.Publish(stateEvent(id))
	}
	// Give the first publish time to reach the handler before counting.
	time.Sleep(50 * time.Millisecond)

	close(block)
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, droppedFrom)
	// The newest events survive the shed.
	require.NotEmpty(t, got)
	assert.Equal(t, telemetry.VehicleID("d"), got[len(got)-1])
}

func TestPanicIsolatedAndReported(t *testing.T) {
	faults := make(chan string, 1)
	b := New(WithFaultHandler(func(name string, _ error) {
		faults <- name
	}))

	var mu sync.Mutex
	var survived []telemetry.VehicleID
	require.NoError(t, b.Subscribe("flaky", 16, nil, func(ev event.Event) {
		if ev.VehicleID == "boom" {
			panic("handler bug")
		}
		mu.Lock()
		survived = append(survived, ev.VehicleID)
		mu.Unlock()
	}))

	b.Publish(stateEvent("a"))
	b.Publish(stateEvent("boom"))
	b.Publish(stateEvent("b"))
	b.Close()

	select {
	case name := <-faults:
		assert.Equal(t, "flaky", name)
	default:
		t.Fatal("panic was not reported")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []telemetry.VehicleID{"a", "b"}, survived, "subscriber keeps running after a panic")
}

func TestSubscribeErrors(t *testing.T) {
	b := New()
	require.NoError(t, b.Subscribe("dup", 1, nil, func(event.Event) {}))
	assert.Error(t, b.Subscribe("dup", 1, nil, func(event.Event) {}))
	assert.Error(t, b.Subscribe("nil-handler", 1, nil, nil))

	b.Close()
	assert.Error(t, b.Subscribe("late", 1, nil, func(event.Event) {}))

	// Double close and publish-after-close are harmless.
	b.Close()
	b.Publish(stateEvent("a"))
}

func TestUnsubscribeDrains(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	count := 0
	require.NoError(t, b.Subscribe("leaver", 16, nil, func(event.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	for i := 0; i < 10; i++ {
		b.Publish(stateEvent("drone-a"))
	}
	b.Unsubscribe("leaver")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count, "queued events must be delivered before unsubscribe returns")
	assert.Zero(t, b.Dropped("leaver"))
}
