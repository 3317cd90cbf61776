package health

import (
	"testing"
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/alert"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

func sample(battery float64, link telemetry.LinkQuality, ts time.Duration) *telemetry.Sample {
	return &telemetry.Sample{
		VehicleID:      "scout-1",
		Timestamp:      ts,
		BatteryPercent: battery,
		Link:           link,
		Autonomy:       telemetry.AutonomyAutoNav,
		Payload:        telemetry.Payload{Status: "READY"},
	}
}

func kinds(alerts []alert.Alert) []alert.Kind {
	out := make([]alert.Kind, len(alerts))
	for i, a := range alerts {
		out[i] = a.Kind
	}
	return out
}

func TestBatteryCriticalAlertOnceWithinCooldown(t *testing.T) {
	m := NewMonitor(Config{BatteryCriticalPct: 10, AlertCooldown: 30 * time.Second})
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	// 25% sits on the default low threshold, so nothing fires yet.
	_, alerts := m.Evaluate(sample(25, 90, 0), nil, now)
	for _, a := range alerts {
		if a.Kind == alert.KindBatteryCritical {
			t.Fatalf("critical alert at 25%%: %+v", a)
		}
	}

	// Drop to 4%: exactly one critical alert.
	s, alerts := m.Evaluate(sample(4, 90, time.Second), nil, now.Add(time.Second))
	if s.Level != LevelCritical {
		t.Errorf("Level = %v, want critical", s.Level)
	}
	critical := 0
	for _, a := range alerts {
		if a.Kind == alert.KindBatteryCritical {
			critical++
			if a.Severity != alert.SeverityCritical {
				t.Errorf("severity = %v", a.Severity)
			}
		}
	}
	if critical != 1 {
		t.Fatalf("got %d critical alerts, want 1 (%v)", critical, kinds(alerts))
	}

	// Further drop to 3% within the cooldown: no new alert.
	_, alerts = m.Evaluate(sample(3, 90, 2*time.Second), nil, now.Add(2*time.Second))
	for _, a := range alerts {
		if a.Kind == alert.KindBatteryCritical {
			t.Errorf("re-alert within cooldown: %+v", a)
		}
	}
}

func TestBatteryRecoveryRearmsAlert(t *testing.T) {
	m := NewMonitor(Config{BatteryCriticalPct: 10, AlertCooldown: 30 * time.Second})
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	_, alerts := m.Evaluate(sample(4, 90, 0), nil, now)
	if len(kinds(alerts)) == 0 {
		t.Fatal("no alert on initial crossing")
	}

	// Recovery clears the latch.
	_, alerts = m.Evaluate(sample(50, 90, time.Second), nil, now.Add(time.Second))
	if len(alerts) != 0 {
		t.Errorf("alerts on recovery: %v", kinds(alerts))
	}

	// A later drop to 9% alerts again, still inside the original cooldown
	// window, because the condition recovered in between.
	_, alerts = m.Evaluate(sample(9, 90, 2*time.Second), nil, now.Add(2*time.Second))
	critical := 0
	for _, a := range alerts {
		if a.Kind == alert.KindBatteryCritical {
			critical++
		}
	}
	if critical != 1 {
		t.Errorf("got %d critical alerts after recovery, want 1", critical)
	}
}

func TestCooldownExpiryReAlerts(t *testing.T) {
	m := NewMonitor(Config{BatteryCriticalPct: 10, AlertCooldown: 30 * time.Second})
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	m.Evaluate(sample(4, 90, 0), nil, now)

	// Still critical after the cooldown: one reminder alert.
	_, alerts := m.Evaluate(sample(4, 90, time.Minute), nil, now.Add(31*time.Second))
	critical := 0
	for _, a := range alerts {
		if a.Kind == alert.KindBatteryCritical {
			critical++
		}
	}
	if critical != 1 {
		t.Errorf("got %d alerts after cooldown expiry, want 1", critical)
	}
}

func TestLinkLostAndFailsafe(t *testing.T) {
	m := NewMonitor(Config{})
	now := time.Now()

	s, alerts := m.Evaluate(sample(80, telemetry.LinkLost, 0), nil, now)
	if s.Level != LevelCritical || s.LinkAverage != -1 {
		t.Errorf("Summary = %+v", s)
	}
	found := false
	for _, a := range alerts {
		if a.Kind == alert.KindLinkLost {
			found = true
		}
	}
	if !found {
		t.Errorf("no link lost alert: %v", kinds(alerts))
	}

	fs := sample(80, 90, time.Second)
	fs.Autonomy = telemetry.AutonomyFailsafe
	s, alerts = m.Evaluate(fs, nil, now.Add(time.Second))
	if s.Level != LevelCritical {
		t.Errorf("Level = %v", s.Level)
	}
	found = false
	for _, a := range alerts {
		if a.Kind == alert.KindFailsafe {
			found = true
		}
	}
	if !found {
		t.Errorf("no failsafe alert: %v", kinds(alerts))
	}
}

func TestBatteryLowWarning(t *testing.T) {
	m := NewMonitor(Config{})
	now := time.Now()

	s, alerts := m.Evaluate(sample(20, 90, 0), nil, now)
	if s.Level != LevelWarning {
		t.Errorf("Level = %v, want warning", s.Level)
	}
	low := 0
	for _, a := range alerts {
		if a.Kind == alert.KindBatteryLow {
			low++
			if a.Severity != alert.SeverityWarning {
				t.Errorf("severity = %v", a.Severity)
			}
		}
	}
	if low != 1 {
		t.Errorf("got %d low-battery alerts, want 1", low)
	}
}

func TestBatteryRateTrend(t *testing.T) {
	m := NewMonitor(Config{})
	now := time.Now()

	history := []*telemetry.Sample{
		sample(90, 95, 0),
		sample(88, 95, 30*time.Second),
	}
	last := sample(86, 95, time.Minute)

	s, _ := m.Evaluate(last, append(history, last), now)
	// 90% -> 86% over one minute of mission time.
	if s.BatteryRate > -3.9 || s.BatteryRate < -4.1 {
		t.Errorf("BatteryRate = %v, want about -4/min", s.BatteryRate)
	}
}

func TestLinkAverageWindow(t *testing.T) {
	m := NewMonitor(Config{TrendWindow: 3})
	now := time.Now()

	history := []*telemetry.Sample{
		sample(80, 10, 0), // outside window of 3
		sample(80, 60, time.Second),
		sample(80, 70, 2*time.Second),
	}
	last := sample(80, 80, 3*time.Second)

	s, _ := m.Evaluate(last, append(history, last), now)
	if s.LinkAverage != 70 {
		t.Errorf("LinkAverage = %v, want 70", s.LinkAverage)
	}
}

func TestForgetClearsLatches(t *testing.T) {
	m := NewMonitor(Config{AlertCooldown: time.Hour})
	now := time.Now()

	m.Evaluate(sample(4, 90, 0), nil, now)
	m.Forget("scout-1")

	// After Forget, the same crossing alerts again despite the cooldown.
	_, alerts := m.Evaluate(sample(4, 90, time.Second), nil, now.Add(time.Second))
	if len(alerts) == 0 {
		t.Error("no alert after Forget")
	}
}
