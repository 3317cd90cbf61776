package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Downlink packets arrive as one CSV line of exactly 35 fields. The layout
// is fixed bridge firmware contract; field order must not change.
const (
	fieldDroneID = iota
	fieldTeamID
	fieldMissionTime
	fieldPacketCount
	fieldMode
	fieldState
	fieldAltitude
	fieldTemp
	fieldPressure
	fieldVoltage
	fieldGyroR
	fieldGyroP
	fieldGyroY
	fieldAccelR
	fieldAccelP
	fieldAccelY
	fieldMagR
	fieldMagP
	fieldMagY
	fieldGPSTime
	fieldGPSAlt
	fieldLat
	fieldLon
	fieldSats
	fieldBattery
	fieldLinkStatus
	fieldAutonomyMode
	fieldGeofenceBreach
	fieldPayloadStatus
	fieldDetectionFlag
	fieldDetectionType
	fieldDetectionConf
	fieldDetectionLat
	fieldDetectionLon
	fieldCmdEcho

	fieldCount
)

// Decoder turns raw downlink records into validated Samples. It holds no
// shared state and is safe for concurrent use.
type Decoder struct {
	// minMissionTime rejects packets stamped before the mission epoch,
	// which usually indicates a vehicle that rebooted mid-mission.
	minMissionTime time.Duration
}

// NewDecoder creates a Decoder. minMissionTime is the earliest acceptable
// mission time; zero accepts everything from the epoch onward.
func NewDecoder(minMissionTime time.Duration) *Decoder {
	return &Decoder{minMissionTime: minMissionTime}
}

// Decode parses and validates one raw CSV record. Failures are always a
// *DecodeError; the decoder never panics on hostile input.
func (d *Decoder) Decode(raw []byte) (*Sample, error) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return nil, errMalformed("empty record")
	}

	fields := strings.Split(line, ",")
	if len(fields) != fieldCount {
		return nil, errMalformed("expected %d fields, got %d", fieldCount, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	id := fields[fieldDroneID]
	if id == "" {
		return nil, errMalformed("missing vehicle id")
	}

	missionTime, err := parseMissionTime(fields[fieldMissionTime])
	if err != nil {
		return nil, errMalformed("bad mission time %q: %v", fields[fieldMissionTime], err)
	}
	if missionTime < d.minMissionTime {
		return nil, errOutOfRange("MISSION_TIME", "%v is before mission epoch %v", missionTime, d.minMissionTime)
	}

	packetCount, err := strconv.ParseUint(fields[fieldPacketCount], 10, 64)
	if err != nil {
		return nil, errMalformed("bad packet count %q", fields[fieldPacketCount])
	}

	s := &Sample{
		VehicleID:   VehicleID(id),
		TeamID:      fields[fieldTeamID],
		Timestamp:   missionTime,
		PacketCount: packetCount,
		Autonomy:    ParseAutonomyState(fields[fieldAutonomyMode]),
		Payload: Payload{
			Status:      fields[fieldPayloadStatus],
			CommandEcho: fields[fieldCmdEcho],
		},
	}

	if s.Position.Latitude, err = parseRange(fields, fieldLat, "LAT", -90, 90); err != nil {
		return nil, err
	}
	if s.Position.Longitude, err = parseRange(fields, fieldLon, "LON", -180, 180); err != nil {
		return nil, err
	}
	if s.Position.AltitudeM, err = parseFinite(fields, fieldAltitude, "ALTITUDE"); err != nil {
		return nil, err
	}
	if s.Position.GPSAltitudeM, err = parseFinite(fields, fieldGPSAlt, "GPS_ALT"); err != nil {
		return nil, err
	}

	if s.BatteryPercent, err = parseRange(fields, fieldBattery, "BATTERY", 0, 100); err != nil {
		return nil, err
	}

	if s.Link, err = parseLink(fields[fieldLinkStatus]); err != nil {
		return nil, err
	}

	if s.Satellites, err = strconv.Atoi(fields[fieldSats]); err != nil {
		return nil, errMalformed("bad satellite count %q", fields[fieldSats])
	}

	if s.Sensors.TemperatureC, err = parseFinite(fields, fieldTemp, "TEMP"); err != nil {
		return nil, err
	}
	if s.Sensors.PressureHPa, err = parseFinite(fields, fieldPressure, "PRESSURE"); err != nil {
		return nil, err
	}
	if s.Sensors.VoltageV, err = parseFinite(fields, fieldVoltage, "VOLTAGE"); err != nil {
		return nil, err
	}

	if s.Gyro, err = parseAxes(fields, fieldGyroR, "GYRO"); err != nil {
		return nil, err
	}
	if s.Accel, err = parseAxes(fields, fieldAccelR, "ACCEL"); err != nil {
		return nil, err
	}
	if s.Mag, err = parseAxes(fields, fieldMagR, "MAG"); err != nil {
		return nil, err
	}

	switch fields[fieldGeofenceBreach] {
	case "0", "":
	case "1":
		s.ReportedBreach = true
	default:
		return nil, errMalformed("bad geofence breach flag %q", fields[fieldGeofenceBreach])
	}

	det, err := parseDetection(fields)
	if err != nil {
		return nil, err
	}
	s.Detection = det

	return s, nil
}

// parseMissionTime accepts the bridge HH:MM:SS format or a plain number of
// seconds since the mission epoch.
func parseMissionTime(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, fmt.Errorf("negative or non-finite seconds")
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("not HH:MM:SS")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("bad hours")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minutes")
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("bad seconds")
	}

	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)), nil
}

func parseLink(v string) (LinkQuality, error) {
	switch strings.ToUpper(v) {
	case "LOST":
		return LinkLost, nil
	case "GOOD":
		return 100, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errMalformed("bad link status %q", v)
	}
	if n < 0 || n > 100 {
		return 0, errOutOfRange("LINK_STATUS", "%d not in [0,100]", n)
	}
	return LinkQuality(n), nil
}

func parseDetection(fields []string) (*Detection, error) {
	switch fields[fieldDetectionFlag] {
	case "0", "":
		return nil, nil
	case "1":
	default:
		return nil, errMalformed("bad detection flag %q", fields[fieldDetectionFlag])
	}

	det := &Detection{}
	switch DetectionType(strings.ToUpper(fields[fieldDetectionType])) {
	case DetectionHuman:
		det.Type = DetectionHuman
	case DetectionCrop:
		det.Type = DetectionCrop
	default:
		return nil, errMalformed("bad detection type %q", fields[fieldDetectionType])
	}

	var err error
	if det.Confidence, err = parseRange(fields, fieldDetectionConf, "DETECTION_CONF", 0, 1); err != nil {
		return nil, err
	}
	if det.Latitude, err = parseRange(fields, fieldDetectionLat, "DETECTION_LAT", -90, 90); err != nil {
		return nil, err
	}
	if det.Longitude, err = parseRange(fields, fieldDetectionLon, "DETECTION_LON", -180, 180); err != nil {
		return nil, err
	}
	return det, nil
}

func parseFinite(fields []string, idx int, name string) (float64, error) {
	f, err := strconv.ParseFloat(fields[idx], 64)
	if err != nil {
		return 0, errMalformed("bad %s value %q", name, fields[idx])
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errOutOfRange(name, "non-finite value")
	}
	return f, nil
}

func parseRange(fields []string, idx int, name string, lo, hi float64) (float64, error) {
	f, err := parseFinite(fields, idx, name)
	if err != nil {
		return 0, err
	}
	if f < lo || f > hi {
		return 0, errOutOfRange(name, "%v not in [%v,%v]", f, lo, hi)
	}
	return f, nil
}

func parseAxes(fields []string, first int, name string) (Axes, error) {
	var a Axes
	var err error
	if a.Roll, err = parseFinite(fields, first, name+"_R"); err != nil {
		return a, err
	}
	if a.Pitch, err = parseFinite(fields, first+1, name+"_P"); err != nil {
		return a, err
	}
	if a.Yaw, err = parseFinite(fields, first+2, name+"_Y"); err != nil {
		return a, err
	}
	return a, nil
}
