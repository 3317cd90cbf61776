package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/groundlink-io/groundlink/internal/gcsd"
	"github.com/groundlink-io/groundlink/internal/gcsd/geofence"
	"github.com/groundlink-io/groundlink/internal/gcsd/health"
	"github.com/groundlink-io/groundlink/internal/gcsd/server"
	"github.com/groundlink-io/groundlink/internal/gcsd/session"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
	"github.com/groundlink-io/groundlink/pkg/options"
)

var _ options.IOptions = (*GcsdOptions)(nil)

// GcsdOptions holds all configurable state of the ground station daemon.
type GcsdOptions struct {
	HttpOptions *options.HttpOptions `json:"http" mapstructure:"http"`
	MqttOptions *options.MqttOptions `json:"mqtt" mapstructure:"mqtt"`

	Session *SessionOptions `json:"session" mapstructure:"session"`
}

// SessionOptions configures the mission session the daemon hosts.
type SessionOptions struct {
	// Vehicles to pre-register at session start.
	Vehicles []string `json:"vehicles" mapstructure:"vehicles"`

	AutoRegister bool `json:"auto-register" mapstructure:"auto-register"`

	// AutoStart activates the session at daemon boot instead of waiting
	// for a start request over the API.
	AutoStart bool `json:"auto-start" mapstructure:"auto-start"`

	StaleAfter      time.Duration `json:"stale-after" mapstructure:"stale-after"`
	LostAfter       time.Duration `json:"lost-after" mapstructure:"lost-after"`
	HistoryCapacity int           `json:"history-capacity" mapstructure:"history-capacity"`
	MissionEpoch    time.Duration `json:"mission-epoch" mapstructure:"mission-epoch"`

	// GeofenceFile is a yaml or json file holding the fence definition.
	GeofenceFile     string  `json:"geofence-file" mapstructure:"geofence-file"`
	GeofenceEpsilonM float64 `json:"geofence-epsilon-m" mapstructure:"geofence-epsilon-m"`

	BatteryCriticalPct float64       `json:"battery-critical-pct" mapstructure:"battery-critical-pct"`
	BatteryLowPct      float64       `json:"battery-low-pct" mapstructure:"battery-low-pct"`
	AlertCooldown      time.Duration `json:"alert-cooldown" mapstructure:"alert-cooldown"`

	// RecordDir is where mission event logs are written. Empty disables
	// recording.
	RecordDir string `json:"record-dir" mapstructure:"record-dir"`
}

func NewGcsdOptions() *GcsdOptions {
	sess := session.DefaultConfig()
	return &GcsdOptions{
		HttpOptions: options.NewHttpOptions(),
		MqttOptions: options.NewMqttOptions(),
		Session: &SessionOptions{
			AutoRegister:       sess.AutoRegister,
			AutoStart:          true,
			StaleAfter:         sess.StaleAfter,
			LostAfter:          sess.LostAfter,
			HistoryCapacity:    sess.HistoryCapacity,
			GeofenceEpsilonM:   sess.GeofenceEpsilonM,
			BatteryCriticalPct: 10,
			BatteryLowPct:      25,
			AlertCooldown:      30 * time.Second,
			RecordDir:          "",
		},
	}
}

// AddFlags adds all daemon flags to the given FlagSet.
func (o *GcsdOptions) AddFlags(fs *pflag.FlagSet, _ ...string) {
	o.HttpOptions.AddFlags(fs)
	o.MqttOptions.AddFlags(fs)

	s := o.Session
	fs.StringSliceVar(&s.Vehicles, "session.vehicles", s.Vehicles, "Vehicle IDs to pre-register at session start.")
	fs.BoolVar(&s.AutoRegister, "session.auto-register", s.AutoRegister, "Admit unknown vehicles on first telemetry contact.")
	fs.BoolVar(&s.AutoStart, "session.auto-start", s.AutoStart, "Activate the mission session at daemon startup.")
	fs.DurationVar(&s.StaleAfter, "session.stale-after", s.StaleAfter, "Telemetry silence after which a vehicle is considered stale.")
	fs.DurationVar(&s.LostAfter, "session.lost-after", s.LostAfter, "Telemetry silence after which a vehicle is considered lost.")
	fs.IntVar(&s.HistoryCapacity, "session.history-capacity", s.HistoryCapacity, "Samples retained per vehicle.")
	fs.DurationVar(&s.MissionEpoch, "session.mission-epoch", s.MissionEpoch, "Minimum accepted mission time on incoming packets.")
	fs.StringVar(&s.GeofenceFile, "session.geofence-file", s.GeofenceFile, "Path to the geofence definition file (yaml or json).")
	fs.Float64Var(&s.GeofenceEpsilonM, "session.geofence-epsilon-m", s.GeofenceEpsilonM, "Geofence boundary hysteresis band in metres.")
	fs.Float64Var(&s.BatteryCriticalPct, "session.battery-critical-pct", s.BatteryCriticalPct, "Battery percentage below which a critical alert is raised.")
	fs.Float64Var(&s.BatteryLowPct, "session.battery-low-pct", s.BatteryLowPct, "Battery percentage below which a low-battery warning is raised.")
	fs.DurationVar(&s.AlertCooldown, "session.alert-cooldown", s.AlertCooldown, "Minimum interval between repeated alerts for the same condition.")
	fs.StringVar(&s.RecordDir, "session.record-dir", s.RecordDir, "Directory for mission event logs. Empty disables recording.")
}

// Validate aggregates validation errors across all option groups.
func (o *GcsdOptions) Validate() []error {
	var errs []error
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.sessionConfig(nil).Validate()...)
	return errs
}

// Config assembles the daemon configuration, loading the geofence file if
// one is set.
func (o *GcsdOptions) Config() (*gcsd.Config, error) {
	var fence *geofence.Definition
	if o.Session.GeofenceFile != "" {
		var err error
		fence, err = loadGeofence(o.Session.GeofenceFile)
		if err != nil {
			return nil, err
		}
	}

	return &gcsd.Config{
		Server: &server.Config{
			HttpOptions: o.HttpOptions,
			MqttOptions: o.MqttOptions,
			RecordDir:   o.Session.RecordDir,
		},
		Session:   o.sessionConfig(fence),
		AutoStart: o.Session.AutoStart,
	}, nil
}

func (o *GcsdOptions) sessionConfig(fence *geofence.Definition) session.Config {
	s := o.Session
	vehicles := make([]telemetry.VehicleID, len(s.Vehicles))
	for i, id := range s.Vehicles {
		vehicles[i] = telemetry.VehicleID(id)
	}
	return session.Config{
		Vehicles:         vehicles,
		AutoRegister:     s.AutoRegister,
		StaleAfter:       s.StaleAfter,
		LostAfter:        s.LostAfter,
		HistoryCapacity:  s.HistoryCapacity,
		GeofenceEpsilonM: s.GeofenceEpsilonM,
		Geofence:         fence,
		MissionEpoch:     s.MissionEpoch,
		Health: health.Config{
			BatteryCriticalPct: s.BatteryCriticalPct,
			BatteryLowPct:      s.BatteryLowPct,
			AlertCooldown:      s.AlertCooldown,
		},
	}
}

func loadGeofence(path string) (*geofence.Definition, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read geofence file %s: %w", path, err)
	}
	var def geofence.Definition
	if err := v.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("failed to parse geofence file %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid geofence in %s: %w", path, err)
	}
	return &def, nil
}
