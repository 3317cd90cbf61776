package app

import (
	"fmt"

	"github.com/groundlink-io/groundlink/cmd/glink-gcsd/app/options"
	"github.com/groundlink-io/groundlink/pkg/app"
)

const (
	commandName = "glink-gcsd"
	commandDesc = `The Groundlink GCS daemon ingests multi-vehicle telemetry over MQTT,
tracks per-vehicle state and health, evaluates the mission geofence and
publishes mission events to MQTT, websocket and the on-disk mission log.`
)

func NewApp() *app.App {
	opts := options.NewGcsdOptions()
	application := app.NewApp(
		commandName,
		"Launch the Groundlink ground control station daemon",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.GcsdOptions) app.RunFunc {
	return func() error {
		ctx := app.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		daemon, err := cfg.New()
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		return daemon.Run(ctx)
	}
}
