package server

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/groundlink-io/groundlink/internal/gcsd/notifier"
	"github.com/groundlink-io/groundlink/internal/gcsd/recorder"
	"github.com/groundlink-io/groundlink/internal/gcsd/server/http"
	"github.com/groundlink-io/groundlink/internal/gcsd/server/mqtt"
	"github.com/groundlink-io/groundlink/internal/gcsd/session"
	"github.com/groundlink-io/groundlink/pkg/log"
	pkgmqtt "github.com/groundlink-io/groundlink/pkg/mqtt"
	"github.com/groundlink-io/groundlink/pkg/mqtt/topic"
)

// Server is the common interface of all sub-servers (mqtt ingress, http,
// notifier, recorder).
type Server interface {
	Start(ctx context.Context) error
}

// Manager owns the lifecycle of every protocol server around one mission
// session.
type Manager struct {
	servers []Server
}

// NewManager wires the sub-servers to the session. Ingress and egress get
// separate broker connections so outbound event traffic cannot back up
// the telemetry stream.
func NewManager(cfg *Config, sess *session.Session) (*Manager, error) {
	var servers []Server

	topics := topic.NewBuilder(cfg.MqttOptions.TopicRoot)

	ingressCfg := cfg.MqttOptions.ToClientConfig()
	ingressCfg.ClientID += "-ingress"
	ingressClient, err := pkgmqtt.NewClient(ingressCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt ingress client: %w", err)
	}
	servers = append(servers, mqtt.NewServer(ingressClient, topics, sess))

	egressCfg := cfg.MqttOptions.ToClientConfig()
	egressCfg.ClientID += "-notifier"
	egressClient, err := pkgmqtt.NewClient(egressCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt egress client: %w", err)
	}
	servers = append(servers, notifier.NewMQTTNotifier(egressClient, topics, sess))

	servers = append(servers, http.NewServer(cfg.HttpOptions, sess))

	if cfg.RecordDir != "" {
		servers = append(servers, recorder.New(cfg.RecordDir, sess))
	}

	return &Manager{servers: servers}, nil
}

// Start launches all servers in parallel and waits for termination. The
// first failing server cancels the rest.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range m.servers {
		srv := s
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...")
	return g.Wait()
}
