// Package session ties the mission core together: it owns the vehicle
// state store, the geofence engine, the health monitor and the event bus,
// and drives them from decoded telemetry. A session moves through a
// strict lifecycle (initializing, active, ended) and only ingests while
// active.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/groundlink-io/groundlink/internal/gcsd/alert"
	"github.com/groundlink-io/groundlink/internal/gcsd/bus"
	"github.com/groundlink-io/groundlink/internal/gcsd/event"
	"github.com/groundlink-io/groundlink/internal/gcsd/geofence"
	"github.com/groundlink-io/groundlink/internal/gcsd/health"
	"github.com/groundlink-io/groundlink/internal/gcsd/state"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
	"github.com/groundlink-io/groundlink/internal/pkg/metrics"
	fsmutil "github.com/groundlink-io/groundlink/internal/pkg/util/fsm"
	"github.com/groundlink-io/groundlink/pkg/log"
)

// Lifecycle states.
const (
	StateInitializing = "initializing"
	StateActive       = "active"
	StateEnded        = "ended"
)

const (
	eventStart = "start"
	eventStop  = "stop"
)

// ErrSessionNotActive is returned by operations that require an active
// session.
var ErrSessionNotActive = errors.New("session is not active")

// Session is the mission core. All methods are safe for concurrent use.
type Session struct {
	cfg Config

	// mu fences the lifecycle: Ingest and SwapGeofence hold the read
	// lock, Start and Stop hold the write lock. Once Stop returns no
	// in-flight ingest can still be mutating state.
	mu  sync.RWMutex
	fsm *fsm.FSM

	clock func() time.Time

	decoder *telemetry.Decoder
	store   *state.Store
	engine  *geofence.Engine
	monitor *health.Monitor
	bus     *bus.Bus

	overflowMu    sync.Mutex
	overflowAlert map[string]time.Time
}

// overflowCooldown throttles queue-overflow alerts per subscriber, so a
// stalled subscriber produces one alert per interval rather than one per
// dropped event.
const overflowCooldown = 30 * time.Second

// Option customizes a Session.
type Option func(*Session)

// WithClock overrides the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// New builds a session in the Initializing state. The configuration is
// not validated here; Start does that, so a bad config surfaces as a
// failed start rather than a half-built session.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:   cfg,
		clock: time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	s.bus = bus.New(
		bus.WithFaultHandler(s.onSubscriberFault),
		bus.WithDropHandler(s.onQueueOverflow),
	)

	s.fsm = fsm.NewFSM(
		StateInitializing,
		fsm.Events{
			{Name: eventStart, Src: []string{StateInitializing}, Dst: StateActive},
			{Name: eventStop, Src: []string{StateActive}, Dst: StateEnded},
		},
		fsm.Callbacks{
			"before_" + eventStart: fsmutil.WrapGuard(s.guardConfig),
			"enter_" + StateActive: fsmutil.WrapEvent(s.enterActive),
			"enter_" + StateEnded:  fsmutil.WrapEvent(s.enterEnded),
		},
	)
	return s
}

// guardConfig blocks the start transition on an invalid configuration.
func (s *Session) guardConfig(_ context.Context, _ *fsm.Event) error {
	if errs := s.cfg.Validate(); len(errs) > 0 {
		return &ConfigurationError{Errors: errs}
	}
	return nil
}

func (s *Session) enterActive(_ context.Context, _ *fsm.Event) error {
	now := s.clock()

	s.decoder = telemetry.NewDecoder(s.cfg.MissionEpoch)
	s.store = state.NewStore(state.Config{
		HistoryCapacity: s.cfg.HistoryCapacity,
		StaleAfter:      s.cfg.StaleAfter,
		LostAfter:       s.cfg.LostAfter,
		AutoRegister:    s.cfg.AutoRegister,
	})
	s.engine = geofence.NewEngine(s.cfg.Geofence, s.cfg.GeofenceEpsilonM)
	s.monitor = health.NewMonitor(s.cfg.Health)

	for _, id := range s.cfg.Vehicles {
		if s.store.Register(id, now) {
			s.bus.Publish(event.NewVehicleRegistered(id, false, now))
		}
	}
	metrics.VehiclesTracked.Set(float64(s.store.Len()))
	metrics.SessionActive.Set(1)

	log.Info("Mission session started", "vehicles", len(s.cfg.Vehicles), "autoRegister", s.cfg.AutoRegister)
	return nil
}

func (s *Session) enterEnded(_ context.Context, _ *fsm.Event) error {
	metrics.SessionActive.Set(0)
	log.Info("Mission session ended", "vehicles", s.store.Len())
	return nil
}

// Start validates the configuration and activates the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fsm.Event(ctx, eventStart); err != nil {
		return err
	}
	s.bus.Publish(event.NewSessionStateChanged(StateInitializing, StateActive, s.clock()))
	return nil
}

// Stop ends the session. It waits for in-flight ingests to finish, then
// flushes and closes the event bus, so every event produced before Stop
// returns has been delivered.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if err := s.fsm.Event(ctx, eventStop); err != nil {
		s.mu.Unlock()
		return err
	}
	s.bus.Publish(event.NewSessionStateChanged(StateActive, StateEnded, s.clock()))
	s.mu.Unlock()

	s.bus.Close()
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fsm.Current()
}

// Subscribe attaches a consumer to the session's event bus.
func (s *Session) Subscribe(name string, buffer int, filter bus.FilterFunc, handler bus.HandlerFunc) error {
	return s.bus.Subscribe(name, buffer, filter, handler)
}

// Unsubscribe detaches a consumer, delivering its queued events first.
func (s *Session) Unsubscribe(name string) {
	s.bus.Unsubscribe(name)
}

// Ingest decodes one raw downlink packet and folds it into the mission
// state, publishing every resulting event. It returns the store delta for
// the accepted sample.
func (s *Session) Ingest(raw []byte) (state.Delta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fsm.Current() != StateActive {
		return state.Delta{}, ErrSessionNotActive
	}
	now := s.clock()

	sample, err := s.decoder.Decode(raw)
	if err != nil {
		if de, ok := telemetry.AsDecodeError(err); ok {
			metrics.DecodeFailuresTotal.WithLabelValues(de.Kind.String()).Inc()
		}
		return state.Delta{}, err
	}

	delta, err := s.store.Apply(sample, now)
	if err != nil {
		if errors.Is(err, state.ErrUnknownVehicle) {
			metrics.DecodeFailuresTotal.WithLabelValues(telemetry.KindUnknownVehicle.String()).Inc()
			a := alert.New(alert.KindUnknownVehicle, sample.VehicleID, alert.SeverityWarning, now,
				"telemetry from unregistered vehicle rejected")
			s.publishAlert(a)
		}
		return state.Delta{}, err
	}

	metrics.SamplesIngestedTotal.WithLabelValues(string(sample.VehicleID)).Inc()
	if delta.Registered {
		metrics.VehiclesTracked.Set(float64(s.store.Len()))
		s.bus.Publish(event.NewVehicleRegistered(sample.VehicleID, true, now))
	}
	s.bus.Publish(event.NewStateChanged(delta, now))

	// Out-of-order and duplicate samples never advance the displayed
	// state, so they drive no geofence or health re-evaluation.
	if delta.LastSampleChanged {
		s.evaluateGeofence(sample.VehicleID, sample.Position, now)
		s.evaluateHealth(sample, now)
		if sample.Detection != nil {
			s.bus.Publish(event.NewDetection(sample.VehicleID, *sample.Detection, sample.Position, sample.Timestamp, now))
		}
	}

	return delta, nil
}

func (s *Session) evaluateGeofence(id telemetry.VehicleID, pos telemetry.Position, now time.Time) {
	prev, _, known := s.engine.Status(id)
	status, changed := s.engine.Evaluate(id, pos, now)
	s.store.SetGeofence(id, status, now)
	if !changed {
		return
	}
	if !known {
		prev = ""
	}
	tr := geofence.Transition{VehicleID: id, Old: prev, New: status, At: now}
	metrics.GeofenceTransitionsTotal.WithLabelValues(string(status)).Inc()
	s.bus.Publish(event.NewGeofenceTransition(tr, now))
	if status == geofence.StatusViolating {
		log.Warn("Geofence violation", "vehicle", id, "lat", pos.Latitude, "lon", pos.Longitude)
	}
}

func (s *Session) evaluateHealth(sample *telemetry.Sample, now time.Time) {
	summary, alerts := s.monitor.Evaluate(sample, s.store.History(sample.VehicleID), now)
	s.store.SetHealth(sample.VehicleID, summary)
	for _, a := range alerts {
		s.publishAlert(a)
	}
}

func (s *Session) publishAlert(a alert.Alert) {
	metrics.AlertsTotal.WithLabelValues(string(a.Kind)).Inc()
	s.bus.Publish(event.NewAlert(a, a.Timestamp))
}

// RegisterVehicle adds a vehicle to the active session.
func (s *Session) RegisterVehicle(id telemetry.VehicleID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fsm.Current() != StateActive {
		return ErrSessionNotActive
	}
	if id == "" {
		return errors.New("vehicle ID must not be empty")
	}
	now := s.clock()
	if s.store.Register(id, now) {
		metrics.VehiclesTracked.Set(float64(s.store.Len()))
		s.bus.Publish(event.NewVehicleRegistered(id, false, now))
	}
	return nil
}

// SwapGeofence atomically replaces the fence definition and re-evaluates
// every tracked vehicle against it, publishing a transition for each
// vehicle whose status changed.
func (s *Session) SwapGeofence(def *geofence.Definition) ([]geofence.Transition, error) {
	if def != nil {
		if err := def.Validate(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fsm.Current() != StateActive {
		return nil, ErrSessionNotActive
	}
	now := s.clock()

	transitions := s.engine.Swap(def, s.store.Positions(), now)
	for _, tr := range transitions {
		s.store.SetGeofence(tr.VehicleID, tr.New, now)
		metrics.GeofenceTransitionsTotal.WithLabelValues(string(tr.New)).Inc()
		s.bus.Publish(event.NewGeofenceTransition(tr, now))
	}
	log.Info("Geofence definition swapped", "transitions", len(transitions))
	return transitions, nil
}

// Geofence returns the active fence definition, which may be nil.
func (s *Session) Geofence() *geofence.Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return s.cfg.Geofence
	}
	return s.engine.Definition()
}

// Snapshot returns a point-in-time view of every vehicle. It works in any
// lifecycle state so late readers can inspect an ended mission.
func (s *Session) Snapshot() map[telemetry.VehicleID]state.VehicleView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return map[telemetry.VehicleID]state.VehicleView{}
	}
	return s.store.Snapshot(s.clock())
}

// Vehicle returns a point-in-time view of one vehicle.
func (s *Session) Vehicle(id telemetry.VehicleID) (state.VehicleView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return state.VehicleView{}, false
	}
	return s.store.Get(id, s.clock())
}

// History returns one vehicle's retained sample history, oldest first.
func (s *Session) History(id telemetry.VehicleID) []*telemetry.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return nil
	}
	return s.store.History(id)
}

func (s *Session) onSubscriberFault(name string, reason error) {
	s.publishAlert(alert.New(alert.KindSubscriberFault, "", alert.SeverityWarning, s.clock(),
		"subscriber "+name+" failed: "+reason.Error()))
}

func (s *Session) onQueueOverflow(name string, _ event.Event) {
	metrics.BusDroppedTotal.WithLabelValues(name).Inc()

	now := s.clock()
	s.overflowMu.Lock()
	if s.overflowAlert == nil {
		s.overflowAlert = make(map[string]time.Time)
	}
	last, seen := s.overflowAlert[name]
	if seen && now.Sub(last) < overflowCooldown {
		s.overflowMu.Unlock()
		return
	}
	s.overflowAlert[name] = now
	s.overflowMu.Unlock()

	// The drop callback fires inside Publish, so the alert has to be
	// published from another goroutine to avoid re-entering the bus.
	go s.publishAlert(alert.New(alert.KindQueueOverflow, "", alert.SeverityWarning, now,
		"subscriber "+name+" queue overflowed, oldest events dropped"))
}
