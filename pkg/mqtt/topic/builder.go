package topic

import (
	"fmt"
)

// Constants defining the standard topic segments. These are the wire
// contract between the ground station and the radio/serial bridges that
// forward vehicle downlink packets; changing them breaks deployed bridges.
const (
	// SuffixTelemetry carries raw downlink packets (bridge -> GCS).
	// Structure: {root}/telemetry/{vehicleID}
	SuffixTelemetry = "telemetry"

	// SuffixEvents carries published mission events (GCS -> consumers).
	// Structure: {root}/events/{kind}/{vehicleID}
	SuffixEvents = "events"
)

// Builder encapsulates the construction of Groundlink MQTT topic strings
// under a configurable root namespace (e.g. "gcs/v1").
type Builder struct {
	root string
}

// NewBuilder creates a Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Telemetry returns the downlink topic for a specific vehicle.
func (b *Builder) Telemetry(vehicleID string) string {
	return b.build(SuffixTelemetry, vehicleID)
}

// TelemetryWildcard returns the filter the GCS subscribes to for all
// vehicle downlink streams: {root}/telemetry/+
func (b *Builder) TelemetryWildcard() string {
	return b.build(SuffixTelemetry, "+")
}

// Event returns the outbound topic for a published event kind and vehicle.
// Events not tied to a vehicle use the session identifier instead.
func (b *Builder) Event(kind, vehicleID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", b.root, SuffixEvents, kind, vehicleID)
}

func (b *Builder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
