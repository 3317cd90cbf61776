package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SamplesIngestedTotal counts telemetry samples accepted into the store.
	SamplesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundlink_samples_ingested_total",
			Help: "Total number of telemetry samples accepted by the mission core.",
		},
		[]string{"vehicle"},
	)

	// DecodeFailuresTotal counts rejected telemetry packets by rejection kind.
	DecodeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundlink_decode_failures_total",
			Help: "Total number of telemetry packets rejected by the decoder.",
		},
		[]string{"kind"}, // malformed / out_of_range / unknown_vehicle
	)

	// AlertsTotal counts alerts raised by the health monitor and the core.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundlink_alerts_total",
			Help: "Total number of alerts raised, by alert kind.",
		},
		[]string{"kind"},
	)

	// GeofenceTransitionsTotal counts geofence status changes.
	GeofenceTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundlink_geofence_transitions_total",
			Help: "Total number of geofence status transitions, by new status.",
		},
		[]string{"status"},
	)

	// BusDroppedTotal counts events shed from subscriber queues.
	BusDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundlink_bus_dropped_events_total",
			Help: "Total number of bus events dropped due to subscriber queue overflow.",
		},
		[]string{"subscriber"},
	)

	// VehiclesTracked reports how many vehicles the session currently tracks.
	VehiclesTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundlink_vehicles_tracked",
			Help: "Number of vehicles currently tracked by the mission session.",
		},
	)

	// SessionActive reports whether a mission session is in the Active state.
	SessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundlink_session_active",
			Help: "Whether the mission session is active (1) or not (0).",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SamplesIngestedTotal,
		DecodeFailuresTotal,
		AlertsTotal,
		GeofenceTransitionsTotal,
		BusDroppedTotal,
		VehiclesTracked,
		SessionActive,
	)
}
