package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/geofence"
	"github.com/groundlink-io/groundlink/internal/gcsd/health"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

// Config describes one mission session. A Config is validated when the
// session starts; an invalid Config keeps the session out of the Active
// state.
type Config struct {
	// Vehicles are pre-registered at session start.
	Vehicles []telemetry.VehicleID `json:"vehicles" mapstructure:"vehicles"`

	// AutoRegister admits vehicles on first telemetry contact. When off,
	// samples from unlisted vehicles are rejected and alerted.
	AutoRegister bool `json:"autoRegister" mapstructure:"auto-register"`

	// StaleAfter and LostAfter are the connectivity thresholds.
	StaleAfter time.Duration `json:"staleAfter" mapstructure:"stale-after"`
	LostAfter  time.Duration `json:"lostAfter" mapstructure:"lost-after"`

	// HistoryCapacity bounds the per-vehicle sample history.
	HistoryCapacity int `json:"historyCapacity" mapstructure:"history-capacity"`

	// GeofenceEpsilonM is the boundary hysteresis band in metres.
	GeofenceEpsilonM float64 `json:"geofenceEpsilonM" mapstructure:"geofence-epsilon-m"`

	// Geofence is the initial fence definition. Optional; it can also be
	// swapped in while the session is active.
	Geofence *geofence.Definition `json:"geofence,omitempty" mapstructure:"geofence"`

	// Health configures the threshold monitor.
	Health health.Config `json:"health" mapstructure:"health"`

	// MissionEpoch is the minimum mission time a sample may carry.
	// Packets timestamped before it are rejected as pre-mission noise.
	MissionEpoch time.Duration `json:"missionEpoch" mapstructure:"mission-epoch"`
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		AutoRegister:     true,
		StaleAfter:       3 * time.Second,
		LostAfter:        12 * time.Second,
		HistoryCapacity:  200,
		GeofenceEpsilonM: 5,
	}
}

// Validate collects every problem with the Config instead of stopping at
// the first one.
func (c Config) Validate() []error {
	var errs []error

	if c.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("stale-after must be positive, got %s", c.StaleAfter))
	}
	if c.LostAfter <= 0 {
		errs = append(errs, fmt.Errorf("lost-after must be positive, got %s", c.LostAfter))
	}
	if c.StaleAfter > 0 && c.LostAfter > 0 && c.StaleAfter >= c.LostAfter {
		errs = append(errs, fmt.Errorf("stale-after (%s) must be shorter than lost-after (%s)", c.StaleAfter, c.LostAfter))
	}
	if c.HistoryCapacity <= 0 {
		errs = append(errs, fmt.Errorf("history-capacity must be positive, got %d", c.HistoryCapacity))
	}
	if c.GeofenceEpsilonM < 0 {
		errs = append(errs, fmt.Errorf("geofence-epsilon-m must not be negative, got %v", c.GeofenceEpsilonM))
	}
	if c.MissionEpoch < 0 {
		errs = append(errs, fmt.Errorf("mission-epoch must not be negative, got %s", c.MissionEpoch))
	}

	seen := make(map[telemetry.VehicleID]struct{}, len(c.Vehicles))
	for _, id := range c.Vehicles {
		if id == "" {
			errs = append(errs, fmt.Errorf("vehicle IDs must not be empty"))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("duplicate vehicle ID %q", id))
		}
		seen[id] = struct{}{}
	}

	if c.Geofence != nil {
		if err := c.Geofence.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("geofence: %w", err))
		}
	}

	return errs
}

// ConfigurationError aggregates every validation failure of a Config.
type ConfigurationError struct {
	Errors []error
}

func (e *ConfigurationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "invalid session configuration: " + strings.Join(msgs, "; ")
}
