package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/session"
	"github.com/groundlink-io/groundlink/internal/gcsd/state"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
	"github.com/groundlink-io/groundlink/pkg/log"
	pkgmqtt "github.com/groundlink-io/groundlink/pkg/mqtt"
	"github.com/groundlink-io/groundlink/pkg/mqtt/topic"
)

// Server is the telemetry ingress: it subscribes to the downlink topic
// tree and feeds every packet into the mission session.
type Server struct {
	client pkgmqtt.Client
	topics *topic.Builder
	sess   *session.Session
}

func NewServer(client pkgmqtt.Client, builder *topic.Builder, sess *session.Session) *Server {
	return &Server{
		client: client,
		topics: builder,
		sess:   sess,
	}
}

// Start connects to the broker, subscribes to the downlink wildcard and
// blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		log.Info("Disconnecting MQTT ingress client...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
	}()

	log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		return err
	}
	log.Info("MQTT Connected")

	filter := s.topics.TelemetryWildcard()
	if err := s.client.Subscribe(ctx, filter, 1, s.handleDownlink); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
	}
	log.Info("Telemetry ingress subscribed", "filter", filter)

	<-ctx.Done()
	return nil
}

// handleDownlink ingests one raw packet. Rejections are routine during a
// mission (truncated frames, pre-registration contacts) and must never
// take the subscription down, so they are logged and counted, not
// returned.
func (s *Server) handleDownlink(_ context.Context, t string, payload []byte) {
	_, err := s.sess.Ingest(payload)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, session.ErrSessionNotActive):
		log.Debug("Dropping downlink packet, session not active", "topic", t)
	case errors.Is(err, state.ErrUnknownVehicle):
		log.Warn("Rejected downlink from unregistered vehicle", "topic", t)
	default:
		if de, ok := telemetry.AsDecodeError(err); ok {
			log.Warn("Rejected downlink packet", "topic", t, "kind", de.Kind.String(), "field", de.Field)
			return
		}
		log.Error(err, "Failed to ingest downlink packet", "topic", t)
	}
}
