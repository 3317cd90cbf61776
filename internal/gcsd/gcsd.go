// Package gcsd assembles the ground control station daemon: one mission
// session plus the protocol servers around it.
package gcsd

import (
	"context"

	"github.com/groundlink-io/groundlink/internal/gcsd/server"
	"github.com/groundlink-io/groundlink/internal/gcsd/session"
	"github.com/groundlink-io/groundlink/pkg/log"
)

type Config struct {
	Server  *server.Config
	Session session.Config

	// AutoStart activates the session at boot. When false the daemon
	// waits for a start request on the HTTP API.
	AutoStart bool
}

// GCSD is the assembled daemon.
type GCSD struct {
	cfg  *Config
	sess *session.Session
	mgr  *server.Manager
}

// New builds the daemon from its configuration.
func (c *Config) New() (*GCSD, error) {
	sess := session.New(c.Session)

	mgr, err := server.NewManager(c.Server, sess)
	if err != nil {
		return nil, err
	}

	return &GCSD{cfg: c, sess: sess, mgr: mgr}, nil
}

// Run starts the session (when configured to) and serves until ctx is
// cancelled. The session is always ended before Run returns so the event
// bus flushes and the mission log is complete.
func (g *GCSD) Run(ctx context.Context) error {
	if g.cfg.AutoStart {
		if err := g.sess.Start(ctx); err != nil {
			return err
		}
	}

	err := g.mgr.Start(ctx)

	if g.sess.State() == session.StateActive {
		if stopErr := g.sess.Stop(context.Background()); stopErr != nil {
			log.Error(stopErr, "Failed to end mission session")
		}
	}
	return err
}

// Session exposes the mission session, for tests and tooling.
func (g *GCSD) Session() *session.Session {
	return g.sess
}
