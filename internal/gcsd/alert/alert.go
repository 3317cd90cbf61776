// Package alert defines the immutable alert values produced by the health
// monitor, the session and the event bus. Alerts are generated, published
// and never mutated.
package alert

import (
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

// Kind names the condition an alert reports.
type Kind string

const (
	KindBatteryCritical Kind = "battery_critical"
	KindBatteryLow      Kind = "battery_low"
	KindLinkLost        Kind = "link_lost"
	KindFailsafe        Kind = "failsafe_engaged"
	KindUnknownVehicle  Kind = "unknown_vehicle"
	KindSubscriberFault Kind = "subscriber_fault"
	KindQueueOverflow   Kind = "queue_overflow"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert describes one threshold crossing or fault.
type Alert struct {
	Kind      Kind                `json:"kind"`
	VehicleID telemetry.VehicleID `json:"vehicleID,omitempty"`
	Severity  Severity            `json:"severity"`
	Timestamp time.Time           `json:"timestamp"`

	// Detail is a short human-readable description for the mission log.
	Detail string `json:"detail"`
}

// New builds an Alert.
func New(kind Kind, id telemetry.VehicleID, severity Severity, at time.Time, detail string) Alert {
	return Alert{
		Kind:      kind,
		VehicleID: id,
		Severity:  severity,
		Timestamp: at,
		Detail:    detail,
	}
}
