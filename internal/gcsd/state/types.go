package state

import (
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/geofence"
	"github.com/groundlink-io/groundlink/internal/gcsd/health"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

// Connectivity reflects how recently a vehicle's telemetry was received.
// It is derived purely from stored timestamps; the store runs no timers.
type Connectivity string

const (
	ConnectivityLive  Connectivity = "live"
	ConnectivityStale Connectivity = "stale"
	ConnectivityLost  Connectivity = "lost"
)

// Config holds the store parameters. Zero values take the defaults.
type Config struct {
	// HistoryCapacity bounds the per-vehicle sample history. Default 200.
	HistoryCapacity int

	// StaleAfter is the silence after which a vehicle reads Stale. Default 3s.
	StaleAfter time.Duration

	// LostAfter is the silence after which a vehicle reads Lost. Default 12s.
	LostAfter time.Duration

	// AutoRegister creates unknown vehicles on first contact instead of
	// rejecting their samples.
	AutoRegister bool
}

func (c Config) withDefaults() Config {
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = 200
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = 3 * time.Second
	}
	if c.LostAfter == 0 {
		c.LostAfter = 12 * time.Second
	}
	return c
}

// Delta describes what one Apply changed, so downstream consumers diff
// cheaply instead of comparing whole snapshots.
type Delta struct {
	VehicleID telemetry.VehicleID `json:"vehicleID"`

	// Registered is set when this apply created the vehicle.
	Registered bool `json:"registered,omitempty"`

	// LastSampleChanged is set when the displayed state advanced.
	LastSampleChanged bool `json:"lastSampleChanged"`

	// OutOfOrder is set when the sample was older than the displayed state
	// and went to history only.
	OutOfOrder bool `json:"outOfOrder,omitempty"`

	// Duplicate is set on idempotent re-delivery of the displayed sample.
	Duplicate bool `json:"duplicate,omitempty"`

	// Evicted is set when the history dropped its oldest sample.
	Evicted bool `json:"evicted,omitempty"`

	HistoryLen int `json:"historyLen"`

	Connectivity        Connectivity `json:"connectivity"`
	ConnectivityChanged bool         `json:"connectivityChanged,omitempty"`

	// Sample is the applied sample.
	Sample *telemetry.Sample `json:"sample"`
}

// VehicleView is a point-in-time read-only copy of one vehicle's state.
// Samples are immutable, so views share sample pointers but never the
// slices or scalar state behind them.
type VehicleView struct {
	VehicleID telemetry.VehicleID `json:"vehicleID"`

	LastSample *telemetry.Sample   `json:"lastSample,omitempty"`
	History    []*telemetry.Sample `json:"-"`

	// LastUpdate is the wall-clock time the vehicle last delivered any
	// accepted sample, ordered or not.
	LastUpdate time.Time `json:"lastUpdate"`

	Connectivity Connectivity `json:"connectivity"`

	Health health.Summary `json:"health"`

	Geofence          geofence.Status `json:"geofence,omitempty"`
	GeofenceChangedAt time.Time       `json:"geofenceChangedAt,omitempty"`

	RegisteredAt time.Time `json:"registeredAt"`
}
