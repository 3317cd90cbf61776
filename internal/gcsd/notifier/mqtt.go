// Package notifier republishes mission events onto the MQTT event topic
// tree so external consumers (dashboards, loggers, downstream automation)
// can follow the mission without touching the HTTP API.
package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/event"
	"github.com/groundlink-io/groundlink/internal/gcsd/session"
	"github.com/groundlink-io/groundlink/pkg/log"
	pkgmqtt "github.com/groundlink-io/groundlink/pkg/mqtt"
	"github.com/groundlink-io/groundlink/pkg/mqtt/topic"
)

const subscriberName = "mqtt-notifier"

// sessionSegment stands in for the vehicle ID on session-scoped events.
const sessionSegment = "session"

// MQTTNotifier bridges the session event bus to the broker. It uses a
// dedicated egress client so a slow broker connection never backs up the
// telemetry ingress connection.
type MQTTNotifier struct {
	client pkgmqtt.Client
	topics *topic.Builder
	sess   *session.Session
}

func NewMQTTNotifier(client pkgmqtt.Client, builder *topic.Builder, sess *session.Session) *MQTTNotifier {
	return &MQTTNotifier{
		client: client,
		topics: builder,
		sess:   sess,
	}
}

// Start connects the egress client, attaches to the session bus and
// blocks until ctx is cancelled.
func (n *MQTTNotifier) Start(ctx context.Context) error {
	if err := n.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.client.Disconnect(shutdownCtx)
	}()

	if err := n.client.AwaitConnection(ctx); err != nil {
		return err
	}

	if err := n.sess.Subscribe(subscriberName, 512, nil, func(ev event.Event) {
		n.publish(ctx, ev)
	}); err != nil {
		return err
	}
	defer n.sess.Unsubscribe(subscriberName)

	log.Info("MQTT event notifier attached")
	<-ctx.Done()
	return nil
}

func (n *MQTTNotifier) publish(ctx context.Context, ev event.Event) {
	segment := sessionSegment
	if ev.VehicleID != "" {
		segment = string(ev.VehicleID)
	}
	t := n.topics.Event(string(ev.Kind), segment)

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error(err, "Failed to marshal event", "kind", ev.Kind)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := n.client.Publish(pubCtx, t, 1, false, payload); err != nil {
		log.Error(err, "Failed to publish event", "topic", t)
	}
}
