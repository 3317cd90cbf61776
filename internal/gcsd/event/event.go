// Package event defines the mission event envelope published on the
// session bus. Every observable change in the mission core surfaces as
// exactly one Event so that consumers (MQTT notifier, websocket feed,
// mission log recorder) share a single vocabulary.
package event

import (
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/alert"
	"github.com/groundlink-io/groundlink/internal/gcsd/geofence"
	"github.com/groundlink-io/groundlink/internal/gcsd/state"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

// Kind discriminates the event payload.
type Kind string

const (
	KindVehicleRegistered   Kind = "vehicle_registered"
	KindStateChanged        Kind = "state_changed"
	KindGeofenceTransition  Kind = "geofence_transition"
	KindAlert               Kind = "alert"
	KindDetection           Kind = "detection"
	KindSessionStateChanged Kind = "session_state_changed"
)

// Event is the envelope carried on the bus. Exactly one payload field is
// non-nil, matching Kind. Events are immutable once published.
type Event struct {
	Kind Kind `json:"kind"`

	// VehicleID is set for all vehicle-scoped events and empty for
	// session-scoped ones.
	VehicleID telemetry.VehicleID `json:"vehicleID,omitempty"`

	// At is the wall-clock time the core observed the change.
	At time.Time `json:"at"`

	Registered *VehicleRegistered   `json:"registered,omitempty"`
	State      *state.Delta         `json:"state,omitempty"`
	Transition *geofence.Transition `json:"transition,omitempty"`
	Alert      *alert.Alert         `json:"alert,omitempty"`
	Detection  *Detection           `json:"detection,omitempty"`
	Session    *SessionStateChanged `json:"session,omitempty"`
}

// VehicleRegistered announces a vehicle joining the session, whether by
// explicit registration or by first contact under auto-registration.
type VehicleRegistered struct {
	VehicleID telemetry.VehicleID `json:"vehicleID"`
	Auto      bool                `json:"auto"`
}

// Detection carries an onboard detection together with the vehicle's
// position at the time it was reported.
type Detection struct {
	VehicleID telemetry.VehicleID `json:"vehicleID"`
	Detection telemetry.Detection `json:"detection"`
	Position  telemetry.Position  `json:"position"`
	Timestamp time.Duration       `json:"timestamp"`
}

// SessionStateChanged announces a mission session lifecycle transition.
type SessionStateChanged struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// NewVehicleRegistered wraps a registration into an envelope.
func NewVehicleRegistered(id telemetry.VehicleID, auto bool, at time.Time) Event {
	return Event{
		Kind:       KindVehicleRegistered,
		VehicleID:  id,
		At:         at,
		Registered: &VehicleRegistered{VehicleID: id, Auto: auto},
	}
}

// NewStateChanged wraps a store delta into an envelope.
func NewStateChanged(d state.Delta, at time.Time) Event {
	return Event{Kind: KindStateChanged, VehicleID: d.VehicleID, At: at, State: &d}
}

// NewGeofenceTransition wraps a geofence status change into an envelope.
func NewGeofenceTransition(tr geofence.Transition, at time.Time) Event {
	return Event{Kind: KindGeofenceTransition, VehicleID: tr.VehicleID, At: at, Transition: &tr}
}

// NewAlert wraps an alert into an envelope.
func NewAlert(a alert.Alert, at time.Time) Event {
	return Event{Kind: KindAlert, VehicleID: a.VehicleID, At: at, Alert: &a}
}

// NewDetection wraps an onboard detection into an envelope.
func NewDetection(id telemetry.VehicleID, det telemetry.Detection, pos telemetry.Position, ts time.Duration, at time.Time) Event {
	return Event{
		Kind:      KindDetection,
		VehicleID: id,
		At:        at,
		Detection: &Detection{VehicleID: id, Detection: det, Position: pos, Timestamp: ts},
	}
}

// NewSessionStateChanged wraps a session lifecycle transition into an
// envelope.
func NewSessionStateChanged(old, new string, at time.Time) Event {
	return Event{Kind: KindSessionStateChanged, At: at, Session: &SessionStateChanged{Old: old, New: new}}
}
