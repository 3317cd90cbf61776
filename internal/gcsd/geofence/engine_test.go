package geofence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

// squareAround builds a square polygon of the given half-side (in degrees)
// centred on lat/lon.
func squareAround(name string, kind Kind, lat, lon, half float64) Polygon {
	return Polygon{
		Name: name,
		Kind: kind,
		Vertices: []Vertex{
			{lat - half, lon - half},
			{lat - half, lon + half},
			{lat + half, lon + half},
			{lat + half, lon - half},
		},
	}
}

func pos(lat, lon float64) telemetry.Position {
	return telemetry.Position{Latitude: lat, Longitude: lon}
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"valid square", Definition{Polygons: []Polygon{squareAround("ops", Inclusion, 51, 5, 0.01)}}, false},
		{"empty definition", Definition{}, false},
		{"two vertices", Definition{Polygons: []Polygon{{Name: "bad", Kind: Inclusion, Vertices: []Vertex{{0, 0}, {1, 1}}}}}, true},
		{"bad kind", Definition{Polygons: []Polygon{{Name: "bad", Kind: "zone", Vertices: []Vertex{{0, 0}, {0, 1}, {1, 0}}}}}, true},
		{"latitude out of range", Definition{Polygons: []Polygon{{Name: "bad", Kind: Inclusion, Vertices: []Vertex{{95, 0}, {0, 1}, {1, 0}}}}}, true},
		{"self-intersecting bowtie", Definition{Polygons: []Polygon{{Name: "bow", Kind: Inclusion, Vertices: []Vertex{{0, 0}, {1, 1}, {0, 1}, {1, 0}}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvaluateInclusion(t *testing.T) {
	def := &Definition{Polygons: []Polygon{squareAround("ops", Inclusion, 51, 5, 0.01)}}
	e := NewEngine(def, 5)
	now := time.Now()

	status, changed := e.Evaluate("scout-1", pos(51, 5), now)
	if status != StatusInside {
		t.Errorf("centre status = %v, want inside", status)
	}
	if changed {
		t.Error("baseline inside evaluation reported a transition")
	}

	status, changed = e.Evaluate("scout-1", pos(52, 5), now)
	if status != StatusViolating || !changed {
		t.Errorf("outside fence: status = %v, changed = %v", status, changed)
	}

	// Re-evaluating the same position must not re-fire.
	_, changed = e.Evaluate("scout-1", pos(52, 5), now)
	if changed {
		t.Error("steady-state violation re-fired a transition")
	}

	status, changed = e.Evaluate("scout-1", pos(51, 5), now)
	if status != StatusInside || !changed {
		t.Errorf("recovery: status = %v, changed = %v", status, changed)
	}
}

func TestEvaluateExclusion(t *testing.T) {
	def := &Definition{Polygons: []Polygon{squareAround("no-fly", Exclusion, 51, 5, 0.01)}}
	e := NewEngine(def, 5)
	now := time.Now()

	status, _ := e.Evaluate("d1", pos(50, 4), now)
	if status != StatusOutside {
		t.Errorf("clear of exclusion: status = %v, want outside (no inclusion fence defined)", status)
	}

	status, changed := e.Evaluate("d1", pos(51, 5), now)
	if status != StatusViolating || !changed {
		t.Errorf("inside exclusion: status = %v, changed = %v", status, changed)
	}
}

func TestEvaluateCombination(t *testing.T) {
	// Inclusion area with an exclusion pocket inside it.
	def := &Definition{Polygons: []Polygon{
		squareAround("ops", Inclusion, 51, 5, 0.1),
		squareAround("no-fly", Exclusion, 51.05, 5.05, 0.01),
	}}
	e := NewEngine(def, 5)
	now := time.Now()

	if status, _ := e.Evaluate("d1", pos(51, 5), now); status != StatusInside {
		t.Errorf("inside ops, clear of pocket: %v", status)
	}
	if status, _ := e.Evaluate("d2", pos(51.05, 5.05), now); status != StatusViolating {
		t.Errorf("in exclusion pocket: %v", status)
	}
	if status, _ := e.Evaluate("d3", pos(52, 6), now); status != StatusViolating {
		t.Errorf("outside ops: %v", status)
	}
}

func TestEpsilonBandDoesNotFlap(t *testing.T) {
	// Fence edge at latitude 51.01; a point ~2 m outside it sits within
	// the 5 m epsilon band and must always read Inside.
	def := &Definition{Polygons: []Polygon{squareAround("ops", Inclusion, 51, 5, 0.01)}}
	e := NewEngine(def, 5)
	now := time.Now()

	onBand := pos(51.01+2.0/metersPerDegree, 5)

	first, _ := e.Evaluate("d1", onBand, now)
	if first != StatusInside {
		t.Fatalf("band position status = %v, want inside", first)
	}
	for i := 0; i < 50; i++ {
		status, changed := e.Evaluate("d1", onBand, now)
		if status != first || changed {
			t.Fatalf("iteration %d: status flapped to %v (changed=%v)", i, status, changed)
		}
	}
}

func TestEpsilonBandExclusion(t *testing.T) {
	// A point just inside an exclusion fence edge reads Outside
	// (compliant) while within the band.
	def := &Definition{Polygons: []Polygon{squareAround("no-fly", Exclusion, 51, 5, 0.01)}}
	e := NewEngine(def, 5)

	justInside := pos(51.01-2.0/metersPerDegree, 5)
	if status, _ := e.Evaluate("d1", justInside, time.Now()); status == StatusViolating {
		t.Error("band position inside exclusion fence reported violating")
	}
}

func TestSwapEmitsOnlyRealTransitions(t *testing.T) {
	small := &Definition{Polygons: []Polygon{squareAround("ops", Inclusion, 51, 5, 0.01)}}
	e := NewEngine(small, 5)
	now := time.Now()

	// Three vehicles inside the fence, one outside.
	positions := map[telemetry.VehicleID]telemetry.Position{}
	for i := 0; i < 3; i++ {
		id := telemetry.VehicleID(fmt.Sprintf("in-%d", i))
		positions[id] = pos(51, 5)
		e.Evaluate(id, positions[id], now)
	}
	positions["out-0"] = pos(51.5, 5)
	e.Evaluate("out-0", positions["out-0"], now)

	// Growing the fence to cover everyone must transition only out-0.
	big := &Definition{Polygons: []Polygon{squareAround("ops", Inclusion, 51, 5, 1.0)}}
	transitions := e.Swap(big, positions, now.Add(time.Second))

	if len(transitions) != 1 {
		t.Fatalf("Swap emitted %d transitions, want 1: %+v", len(transitions), transitions)
	}
	tr := transitions[0]
	if tr.VehicleID != "out-0" || tr.Old != StatusViolating || tr.New != StatusInside {
		t.Errorf("transition = %+v", tr)
	}

	// Swapping the identical definition again must be silent.
	if again := e.Swap(big, positions, now.Add(2*time.Second)); len(again) != 0 {
		t.Errorf("idempotent swap emitted %d transitions", len(again))
	}
}

func TestEvaluateConcurrentWithSwap(t *testing.T) {
	// After a Swap completes, the recorded status must reflect the new
	// definition even when an Evaluate classified under the old one and
	// raced it to the status map.
	home := pos(51, 5)
	covering := &Definition{Polygons: []Polygon{squareAround("ops", Inclusion, 51, 5, 0.01)}}
	elsewhere := &Definition{Polygons: []Polygon{squareAround("ops", Inclusion, 40, -3, 0.01)}}
	positions := map[telemetry.VehicleID]telemetry.Position{"d1": home}

	for i := 0; i < 1000; i++ {
		e := NewEngine(covering, 5)
		now := time.Now()
		e.Evaluate("d1", home, now)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.Swap(elsewhere, positions, now)
		}()
		go func() {
			defer wg.Done()
			e.Evaluate("d1", home, now)
		}()
		wg.Wait()

		if status, _, _ := e.Status("d1"); status != StatusViolating {
			t.Fatalf("iteration %d: status = %v after swap, want violating", i, status)
		}
	}
}

func TestStatusTransitionTimestamp(t *testing.T) {
	def := &Definition{Polygons: []Polygon{squareAround("ops", Inclusion, 51, 5, 0.01)}}
	e := NewEngine(def, 5)

	t0 := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	e.Evaluate("d1", pos(51, 5), t0)

	t1 := t0.Add(30 * time.Second)
	e.Evaluate("d1", pos(52, 5), t1)

	_, changedAt, ok := e.Status("d1")
	if !ok {
		t.Fatal("vehicle unknown to engine")
	}
	if !changedAt.Equal(t1) {
		t.Errorf("changedAt = %v, want %v", changedAt, t1)
	}

	// Another evaluation at the same status must not touch the timestamp.
	e.Evaluate("d1", pos(52, 5), t1.Add(time.Minute))
	_, changedAt, _ = e.Status("d1")
	if !changedAt.Equal(t1) {
		t.Errorf("steady state moved changedAt to %v", changedAt)
	}
}
