package server

import "github.com/groundlink-io/groundlink/pkg/options"

type Config struct {
	HttpOptions *options.HttpOptions
	MqttOptions *options.MqttOptions

	// RecordDir is where mission event logs are written. Empty disables
	// the recorder.
	RecordDir string
}
