package telemetry

import (
	"time"
)

// VehicleID identifies one physical vehicle within a mission session.
// IDs are assigned at registration and never reused while the session lives.
type VehicleID string

// AutonomyState reports which control authority is flying the vehicle.
type AutonomyState string

const (
	AutonomyManual   AutonomyState = "MANUAL"
	AutonomyAutoNav  AutonomyState = "AUTONAV"
	AutonomyHold     AutonomyState = "HOLD"
	AutonomyFailsafe AutonomyState = "FAILSAFE"
	AutonomyUnknown  AutonomyState = "UNKNOWN"
)

// ParseAutonomyState maps a wire value onto an AutonomyState. Unrecognized
// values decode as AutonomyUnknown rather than failing the packet; a vehicle
// in a weird mode is exactly the one we want to keep tracking.
func ParseAutonomyState(s string) AutonomyState {
	switch AutonomyState(s) {
	case AutonomyManual, AutonomyAutoNav, AutonomyHold, AutonomyFailsafe:
		return AutonomyState(s)
	case "AUTO": // legacy bridge firmware sends AUTO for AUTONAV
		return AutonomyAutoNav
	default:
		return AutonomyUnknown
	}
}

// LinkQuality is the radio link quality in percent. A negative value means
// the link is reported lost.
type LinkQuality int

// LinkLost is the sentinel for a reported link loss.
const LinkLost LinkQuality = -1

// IsLost reports whether the link is lost.
func (l LinkQuality) IsLost() bool { return l < 0 }

// Position is a validated geographic position.
type Position struct {
	// Latitude in degrees, [-90, 90].
	Latitude float64 `json:"latitude"`

	// Longitude in degrees, [-180, 180].
	Longitude float64 `json:"longitude"`

	// AltitudeM is the barometric altitude in metres.
	AltitudeM float64 `json:"altitudeM"`

	// GPSAltitudeM is the GNSS altitude in metres.
	GPSAltitudeM float64 `json:"gpsAltitudeM"`
}

// Velocity is an optional velocity estimate in metres per second.
type Velocity struct {
	North float64 `json:"north"`
	East  float64 `json:"east"`
	Down  float64 `json:"down"`
}

// Axes groups one roll/pitch/yaw triple from the IMU.
type Axes struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Sensors carries the environmental block of the downlink packet.
type Sensors struct {
	TemperatureC float64 `json:"temperatureC"`
	PressureHPa  float64 `json:"pressureHPa"`
	VoltageV     float64 `json:"voltageV"`
}

// Payload is the free-form payload status block.
type Payload struct {
	// Status is the payload status word reported by the vehicle
	// (e.g. NONE, READY, SPRAYING, DROPPED).
	Status string `json:"status"`

	// CommandEcho is the last ground command the vehicle acknowledged.
	CommandEcho string `json:"commandEcho,omitempty"`
}

// DetectionType classifies an onboard AI detection.
type DetectionType string

const (
	DetectionHuman DetectionType = "HUMAN"
	DetectionCrop  DetectionType = "CROP"
)

// Detection is an onboard detection event piggybacked on a telemetry packet.
type Detection struct {
	Type       DetectionType `json:"type"`
	Confidence float64       `json:"confidence"` // 0.0 - 1.0
	Latitude   float64       `json:"latitude"`
	Longitude  float64       `json:"longitude"`
}

// Sample is one validated, immutable telemetry snapshot of a vehicle.
// Samples are produced only by the Decoder and never mutated afterwards.
type Sample struct {
	VehicleID VehicleID `json:"vehicleID"`
	TeamID    string    `json:"teamID,omitempty"`

	// Timestamp is mission time: the duration since the mission epoch on
	// the vehicle's own clock. Ordering decisions use this, never wall
	// clock, so receiver clock skew cannot reorder a stream.
	Timestamp time.Duration `json:"timestamp"`

	// PacketCount is the vehicle's own downlink sequence counter.
	PacketCount uint64 `json:"packetCount"`

	Position Position  `json:"position"`
	Velocity *Velocity `json:"velocity,omitempty"`

	Gyro  Axes `json:"gyro"`
	Accel Axes `json:"accel"`
	Mag   Axes `json:"mag"`

	Sensors    Sensors `json:"sensors"`
	Satellites int     `json:"satellites"`

	BatteryPercent float64       `json:"batteryPercent"` // 0 - 100
	Link           LinkQuality   `json:"link"`
	Autonomy       AutonomyState `json:"autonomy"`

	// ReportedBreach is the vehicle's own geofence breach estimate. The
	// ground-side geofence engine is authoritative; this flag is kept for
	// the mission log.
	ReportedBreach bool `json:"reportedBreach,omitempty"`

	Payload   Payload    `json:"payload"`
	Detection *Detection `json:"detection,omitempty"`
}
