// Package health derives aggregate per-vehicle health from recent telemetry
// and raises threshold-crossing alerts with cooldown and recovery handling.
package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/alert"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

// Level is the aggregate health grade of a vehicle.
type Level string

const (
	LevelNominal  Level = "nominal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Summary is the cached aggregate health of one vehicle.
type Summary struct {
	Level Level `json:"level"`

	BatteryPercent float64 `json:"batteryPercent"`

	// BatteryRate is the battery trend in percent per minute, negative
	// while discharging. Zero until at least two samples exist.
	BatteryRate float64 `json:"batteryRate"`

	// LinkAverage is the moving average link quality over the trend
	// window, or -1 while the link is reported lost.
	LinkAverage float64 `json:"linkAverage"`

	Autonomy telemetry.AutonomyState `json:"autonomy"`
	Payload  string                  `json:"payload"`
}

// Config holds the monitor thresholds. Zero values take the defaults.
type Config struct {
	// BatteryCriticalPct raises a critical alert below this level. Default 10.
	BatteryCriticalPct float64

	// BatteryLowPct raises a warning below this level. Default 25.
	BatteryLowPct float64

	// AlertCooldown is the minimum interval between repeated alerts for
	// the same unrecovered condition. Default 30s.
	AlertCooldown time.Duration

	// TrendWindow bounds how many trailing samples feed the battery rate
	// and link average. Default 10.
	TrendWindow int
}

func (c Config) withDefaults() Config {
	if c.BatteryCriticalPct == 0 {
		c.BatteryCriticalPct = 10
	}
	if c.BatteryLowPct == 0 {
		c.BatteryLowPct = 25
	}
	if c.AlertCooldown == 0 {
		c.AlertCooldown = 30 * time.Second
	}
	if c.TrendWindow == 0 {
		c.TrendWindow = 10
	}
	return c
}

// condition identifies one latched alert condition per vehicle.
type condition string

const (
	condBatteryCritical condition = "battery_critical"
	condBatteryLow      condition = "battery_low"
	condLinkLost        condition = "link_lost"
	condFailsafe        condition = "failsafe"
)

type conditionState struct {
	active      bool
	lastAlertAt time.Time
}

// Monitor evaluates vehicle health. The evaluation itself is a pure
// function of the samples; the monitor only remembers which conditions are
// latched so that steady-state threshold violations do not storm the bus.
type Monitor struct {
	cfg Config

	mu         sync.Mutex
	conditions map[telemetry.VehicleID]map[condition]*conditionState
}

// NewMonitor creates a Monitor with the given thresholds.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{
		cfg:        cfg.withDefaults(),
		conditions: make(map[telemetry.VehicleID]map[condition]*conditionState),
	}
}

// Evaluate derives the health summary for a vehicle from its latest sample
// and trailing history, and returns any alerts this evaluation raises.
// History is ordered oldest first; last is the newest sample.
func (m *Monitor) Evaluate(last *telemetry.Sample, history []*telemetry.Sample, now time.Time) (Summary, []alert.Alert) {
	s := Summary{
		Level:          LevelNominal,
		BatteryPercent: last.BatteryPercent,
		BatteryRate:    batteryRate(last, history, m.cfg.TrendWindow),
		LinkAverage:    linkAverage(last, history, m.cfg.TrendWindow),
		Autonomy:       last.Autonomy,
		Payload:        last.Payload.Status,
	}

	var alerts []alert.Alert

	raise := func(cond condition, k alert.Kind, sev alert.Severity, detail string) {
		if m.crossed(last.VehicleID, cond, now) {
			alerts = append(alerts, alert.New(k, last.VehicleID, sev, now, detail))
		}
	}
	clear := func(cond condition) {
		m.recover(last.VehicleID, cond)
	}

	switch {
	case last.BatteryPercent < m.cfg.BatteryCriticalPct:
		s.Level = LevelCritical
		raise(condBatteryCritical, alert.KindBatteryCritical, alert.SeverityCritical,
			fmt.Sprintf("battery at %.0f%% (critical threshold %.0f%%)", last.BatteryPercent, m.cfg.BatteryCriticalPct))
	case last.BatteryPercent < m.cfg.BatteryLowPct:
		s.Level = LevelWarning
		clear(condBatteryCritical)
		raise(condBatteryLow, alert.KindBatteryLow, alert.SeverityWarning,
			fmt.Sprintf("battery at %.0f%% (low threshold %.0f%%)", last.BatteryPercent, m.cfg.BatteryLowPct))
	default:
		clear(condBatteryCritical)
		clear(condBatteryLow)
	}

	if last.Link.IsLost() {
		s.Level = LevelCritical
		raise(condLinkLost, alert.KindLinkLost, alert.SeverityCritical, "radio link reported lost")
	} else {
		clear(condLinkLost)
	}

	if last.Autonomy == telemetry.AutonomyFailsafe {
		s.Level = LevelCritical
		raise(condFailsafe, alert.KindFailsafe, alert.SeverityCritical, "vehicle entered failsafe mode")
	} else {
		clear(condFailsafe)
	}

	return s, alerts
}

// Forget drops all latched conditions for a vehicle.
func (m *Monitor) Forget(id telemetry.VehicleID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conditions, id)
}

// crossed records a threshold crossing and reports whether it should alert:
// either the condition is newly active, or the cooldown has elapsed without
// recovery.
func (m *Monitor) crossed(id telemetry.VehicleID, cond condition, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCond, ok := m.conditions[id]
	if !ok {
		byCond = make(map[condition]*conditionState)
		m.conditions[id] = byCond
	}
	cs, ok := byCond[cond]
	if !ok {
		cs = &conditionState{}
		byCond[cond] = cs
	}

	if cs.active && now.Sub(cs.lastAlertAt) < m.cfg.AlertCooldown {
		return false
	}
	cs.active = true
	cs.lastAlertAt = now
	return true
}

// recover clears the latch so the next crossing alerts immediately.
func (m *Monitor) recover(id telemetry.VehicleID, cond condition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if byCond, ok := m.conditions[id]; ok {
		if cs, ok := byCond[cond]; ok {
			cs.active = false
		}
	}
}

// batteryRate computes percent per minute over the trend window using the
// oldest and newest sample timestamps (mission time).
func batteryRate(last *telemetry.Sample, history []*telemetry.Sample, window int) float64 {
	oldest := trendStart(last, history, window)
	if oldest == nil || oldest.Timestamp >= last.Timestamp {
		return 0
	}
	elapsedMin := (last.Timestamp - oldest.Timestamp).Minutes()
	return (last.BatteryPercent - oldest.BatteryPercent) / elapsedMin
}

// linkAverage computes a plain moving average over the window; a lost link
// anywhere in the window pins the result to -1.
func linkAverage(last *telemetry.Sample, history []*telemetry.Sample, window int) float64 {
	if last.Link.IsLost() {
		return -1
	}

	sum := float64(last.Link)
	count := 1
	for i := len(history) - 1; i >= 0 && count < window; i-- {
		if history[i] == last {
			continue
		}
		if history[i].Link.IsLost() {
			return -1
		}
		sum += float64(history[i].Link)
		count++
	}
	return sum / float64(count)
}

// trendStart returns the sample that anchors the trend window.
func trendStart(last *telemetry.Sample, history []*telemetry.Sample, window int) *telemetry.Sample {
	var oldest *telemetry.Sample
	count := 1
	for i := len(history) - 1; i >= 0 && count < window; i-- {
		if history[i] == last {
			continue
		}
		oldest = history[i]
		count++
	}
	return oldest
}
