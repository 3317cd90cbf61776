package state

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/geofence"
	"github.com/groundlink-io/groundlink/internal/gcsd/health"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

// ErrUnknownVehicle is returned by Apply when auto-registration is off and
// the sample names a vehicle that was never registered.
var ErrUnknownVehicle = errors.New("vehicle not registered")

const shardCount = 16

// Store tracks the authoritative state of every vehicle in the mission.
// It is sharded by vehicle ID so that telemetry for different vehicles
// never contends on a common lock, and each vehicle entry carries its own
// mutex so updates to one vehicle serialize without blocking reads of
// another.
type Store struct {
	cfg    Config
	shards [shardCount]shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[telemetry.VehicleID]*entry
}

type entry struct {
	mu sync.Mutex

	last     *telemetry.Sample
	history  []*telemetry.Sample
	lastWall time.Time

	health     health.Summary
	geofence   geofence.Status
	geofenceAt time.Time

	registeredAt time.Time
}

func NewStore(cfg Config) *Store {
	s := &Store{cfg: cfg.withDefaults()}
	for i := range s.shards {
		s.shards[i].entries = make(map[telemetry.VehicleID]*entry)
	}
	return s
}

func (s *Store) shardFor(id telemetry.VehicleID) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

// Register creates the vehicle if it does not exist. It reports whether
// this call created it.
func (s *Store) Register(id telemetry.VehicleID, now time.Time) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.entries[id]; ok {
		return false
	}
	sh.entries[id] = &entry{registeredAt: now}
	return true
}

func (s *Store) lookup(id telemetry.VehicleID) (*entry, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	return e, ok
}

// Apply folds a decoded sample into the vehicle's state and reports what
// changed. now is the wall-clock receipt time.
//
// Ordering rules: the sample with the greatest mission timestamp seen so
// far is the displayed state. An older sample still enters the history at
// its sorted position but never becomes the displayed state. Re-delivery
// of the exact displayed sample is a no-op.
func (s *Store) Apply(sample *telemetry.Sample, now time.Time) (Delta, error) {
	id := sample.VehicleID

	e, ok := s.lookup(id)
	registered := false
	if !ok {
		if !s.cfg.AutoRegister {
			return Delta{}, fmt.Errorf("vehicle %q: %w", id, ErrUnknownVehicle)
		}
		sh := s.shardFor(id)
		sh.mu.Lock()
		if e, ok = sh.entries[id]; !ok {
			e = &entry{registeredAt: now}
			sh.entries[id] = e
			registered = true
		}
		sh.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	d := Delta{
		VehicleID:  id,
		Registered: registered,
		Sample:     sample,
	}

	before := connectivityAt(e.lastWall, now, s.cfg)
	if e.lastWall.IsZero() {
		before = ConnectivityLost
	}

	if e.last == sample {
		// Idempotent re-delivery leaves displayed state and history
		// untouched, but the packet still counts as reception.
		e.lastWall = now
		d.Duplicate = true
		d.HistoryLen = len(e.history)
		d.Connectivity = connectivityAt(e.lastWall, now, s.cfg)
		d.ConnectivityChanged = d.Connectivity != before
		return d, nil
	}

	switch {
	case e.last == nil || sample.Timestamp > e.last.Timestamp:
		e.last = sample
		d.LastSampleChanged = true
	case sample.Timestamp == e.last.Timestamp:
		d.Duplicate = true
	default:
		d.OutOfOrder = true
	}
	// Connectivity tracks how recently telemetry arrived, not how it was
	// ordered: out-of-order and duplicate packets refresh the receipt
	// time all the same.
	e.lastWall = now

	d.Evicted = e.insertHistory(sample, s.cfg.HistoryCapacity)
	d.HistoryLen = len(e.history)

	d.Connectivity = connectivityAt(e.lastWall, now, s.cfg)
	d.ConnectivityChanged = d.Connectivity != before
	return d, nil
}

// insertHistory keeps the history sorted by mission timestamp ascending
// and bounded at cap, evicting the oldest. Reports whether it evicted.
func (e *entry) insertHistory(sample *telemetry.Sample, capacity int) bool {
	i := sort.Search(len(e.history), func(i int) bool {
		return e.history[i].Timestamp > sample.Timestamp
	})
	e.history = append(e.history, nil)
	copy(e.history[i+1:], e.history[i:])
	e.history[i] = sample

	if len(e.history) > capacity {
		copy(e.history, e.history[1:])
		e.history[len(e.history)-1] = nil
		e.history = e.history[:len(e.history)-1]
		return true
	}
	return false
}

func connectivityAt(lastWall, now time.Time, cfg Config) Connectivity {
	if lastWall.IsZero() {
		return ConnectivityLost
	}
	elapsed := now.Sub(lastWall)
	switch {
	case elapsed < cfg.StaleAfter:
		return ConnectivityLive
	case elapsed < cfg.LostAfter:
		return ConnectivityStale
	default:
		return ConnectivityLost
	}
}

// SetHealth caches the latest health summary for the vehicle.
func (s *Store) SetHealth(id telemetry.VehicleID, sum health.Summary) {
	if e, ok := s.lookup(id); ok {
		e.mu.Lock()
		e.health = sum
		e.mu.Unlock()
	}
}

// SetGeofence caches the latest geofence status for the vehicle.
func (s *Store) SetGeofence(id telemetry.VehicleID, st geofence.Status, at time.Time) {
	if e, ok := s.lookup(id); ok {
		e.mu.Lock()
		e.geofence = st
		e.geofenceAt = at
		e.mu.Unlock()
	}
}

// Get returns a point-in-time view of one vehicle.
func (s *Store) Get(id telemetry.VehicleID, now time.Time) (VehicleView, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return VehicleView{}, false
	}
	return e.view(id, now, s.cfg), true
}

// History returns the vehicle's sample history, oldest first.
func (s *Store) History(id telemetry.VehicleID) []*telemetry.Sample {
	e, ok := s.lookup(id)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*telemetry.Sample, len(e.history))
	copy(out, e.history)
	return out
}

// Snapshot returns a view of every vehicle. Each vehicle's view is
// internally consistent; the snapshot as a whole is not a global
// freeze, vehicles are copied one at a time.
func (s *Store) Snapshot(now time.Time) map[telemetry.VehicleID]VehicleView {
	out := make(map[telemetry.VehicleID]VehicleView, s.Len())
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		ids := make([]telemetry.VehicleID, 0, len(sh.entries))
		entries := make([]*entry, 0, len(sh.entries))
		for id, e := range sh.entries {
			ids = append(ids, id)
			entries = append(entries, e)
		}
		sh.mu.RUnlock()
		for j, e := range entries {
			out[ids[j]] = e.view(ids[j], now, s.cfg)
		}
	}
	return out
}

// Positions returns the last known position of every vehicle that has
// reported at least once. Used to re-evaluate geofences after a swap.
func (s *Store) Positions() map[telemetry.VehicleID]telemetry.Position {
	out := make(map[telemetry.VehicleID]telemetry.Position)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for id, e := range sh.entries {
			e.mu.Lock()
			if e.last != nil {
				out[id] = e.last.Position
			}
			e.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	return out
}

// IDs returns the registered vehicle IDs in no particular order.
func (s *Store) IDs() []telemetry.VehicleID {
	var out []telemetry.VehicleID
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for id := range sh.entries {
			out = append(out, id)
		}
		sh.mu.RUnlock()
	}
	return out
}

func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

func (e *entry) view(id telemetry.VehicleID, now time.Time, cfg Config) VehicleView {
	e.mu.Lock()
	defer e.mu.Unlock()
	hist := make([]*telemetry.Sample, len(e.history))
	copy(hist, e.history)
	return VehicleView{
		VehicleID:         id,
		LastSample:        e.last,
		History:           hist,
		LastUpdate:        e.lastWall,
		Connectivity:      connectivityAt(e.lastWall, now, cfg),
		Health:            e.health,
		Geofence:          e.geofence,
		GeofenceChangedAt: e.geofenceAt,
		RegisteredAt:      e.registeredAt,
	}
}
