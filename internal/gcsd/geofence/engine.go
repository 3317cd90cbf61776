package geofence

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

// Status is a vehicle's standing relative to the active fence definition.
type Status string

const (
	// StatusInside means the vehicle complies with every fence and is
	// enclosed by an inclusion fence.
	StatusInside Status = "inside"

	// StatusOutside means the vehicle violates nothing but no inclusion
	// fence encloses it, including the case of an empty definition.
	StatusOutside Status = "outside"

	// StatusViolating means at least one fence is breached.
	StatusViolating Status = "violating"
)

// Transition records one vehicle's status change.
type Transition struct {
	VehicleID telemetry.VehicleID
	Old       Status
	New       Status
	At        time.Time
}

// Engine evaluates vehicle positions against the active Definition and
// tracks per-vehicle status so callers learn about transitions, not about
// every evaluation. The geometric test itself is pure; the engine only
// guards the small status map.
type Engine struct {
	// def is swapped wholesale; evaluations either see the old or the new
	// definition, never a mix.
	def atomic.Pointer[Definition]

	// epsilonM widens the boundary: positions within this band count as
	// compliant for the fence under test, so GPS jitter on the line
	// cannot flap the status.
	epsilonM float64

	mu       sync.Mutex
	statuses map[telemetry.VehicleID]statusEntry
}

type statusEntry struct {
	status    Status
	changedAt time.Time
}

// NewEngine creates an Engine with the given initial definition. The
// definition must already be validated.
func NewEngine(def *Definition, epsilonM float64) *Engine {
	e := &Engine{
		epsilonM: epsilonM,
		statuses: make(map[telemetry.VehicleID]statusEntry),
	}
	e.def.Store(def)
	return e
}

// classify computes the status of a position under def. Pure. A nil
// definition means no fence is configured; every position reads Outside.
func (e *Engine) classify(def *Definition, pos telemetry.Position) Status {
	if def == nil {
		return StatusOutside
	}
	compliant := true
	for i := range def.Polygons {
		p := &def.Polygons[i]
		in := p.contains(pos)
		onBand := p.boundaryDistanceM(pos) <= e.epsilonM

		switch p.Kind {
		case Inclusion:
			if !in && !onBand {
				compliant = false
			}
		case Exclusion:
			if in && !onBand {
				compliant = false
			}
		}
	}

	if !compliant {
		return StatusViolating
	}
	if !def.hasInclusion() {
		return StatusOutside
	}
	return StatusInside
}

// Evaluate classifies the position and records the result. It returns the
// new status and whether this evaluation changed it; callers publish an
// event only on a change.
func (e *Engine) Evaluate(id telemetry.VehicleID, pos telemetry.Position, now time.Time) (Status, bool) {
	def := e.def.Load()
	status := e.classify(def, pos)

	e.mu.Lock()
	defer e.mu.Unlock()

	// A Swap may have landed between the load and the lock. Its freshly
	// recorded statuses must not be overwritten by a classification made
	// under the replaced definition, so re-classify if the pointer moved.
	if cur := e.def.Load(); cur != def {
		status = e.classify(cur, pos)
	}

	prev, known := e.statuses[id]
	if known && prev.status == status {
		return status, false
	}
	e.statuses[id] = statusEntry{status: status, changedAt: now}
	// The very first evaluation establishes a baseline; it is a
	// transition only if the vehicle starts out violating.
	if !known {
		return status, status == StatusViolating
	}
	return status, true
}

// Status returns the recorded status of a vehicle and when it last changed.
func (e *Engine) Status(id telemetry.VehicleID) (Status, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.statuses[id]
	return entry.status, entry.changedAt, ok
}

// Forget drops the recorded status for a vehicle.
func (e *Engine) Forget(id telemetry.VehicleID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.statuses, id)
}

// Swap replaces the active definition and immediately re-evaluates every
// known vehicle at its given position. It returns exactly the transitions
// whose status actually changed.
func (e *Engine) Swap(def *Definition, positions map[telemetry.VehicleID]telemetry.Position, now time.Time) []Transition {
	e.def.Store(def)

	e.mu.Lock()
	defer e.mu.Unlock()

	var transitions []Transition
	for id, pos := range positions {
		status := e.classify(def, pos)
		prev, known := e.statuses[id]
		if known && prev.status == status {
			continue
		}
		e.statuses[id] = statusEntry{status: status, changedAt: now}
		transitions = append(transitions, Transition{
			VehicleID: id,
			Old:       prev.status,
			New:       status,
			At:        now,
		})
	}
	return transitions
}

// Definition returns the currently active definition.
func (e *Engine) Definition() *Definition {
	return e.def.Load()
}
