package log

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Options contains configuration settings for the logger.
type Options struct {
	// Name is an optional logger name, added as a field to each entry.
	Name string `json:"name,omitempty" mapstructure:"name"`

	// Level is the minimum log level: 'debug', 'info', 'warn' or 'error'.
	Level string `json:"level,omitempty" mapstructure:"level"`

	// Format is the output format: 'json' or 'console'.
	Format string `json:"format,omitempty" mapstructure:"format"`

	// EnableColor enables colorized output for console format.
	EnableColor bool `json:"enable-color,omitempty" mapstructure:"enable-color"`

	// DisableCaller stops annotating entries with the calling function's
	// file name and line number.
	DisableCaller bool `json:"disable-caller,omitempty" mapstructure:"disable-caller"`

	// CallerSkip adjusts the number of callers skipped by caller annotation.
	CallerSkip int `json:"caller-skip,omitempty" mapstructure:"caller-skip"`

	// OutputPaths is a list of URLs or file paths to write output to.
	OutputPaths []string `json:"output-paths,omitempty" mapstructure:"output-paths"`
}

// NewOptions creates an Options object with default parameters.
func NewOptions() *Options {
	return &Options{
		Level:       "info",
		Format:      "console",
		EnableColor: false,
		CallerSkip:  1,
		OutputPaths: []string{"stdout"},
	}
}

// Validate verifies flags passed to Options.
func (o *Options) Validate() []error {
	errs := []error{}

	switch o.Level {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", o.Level))
	}

	switch o.Format {
	case "json", "console", "":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", o.Format))
	}

	return errs
}

// AddFlags adds flags for log to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum log output level: debug, info, warn or error.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log output format: console or json.")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Enable colorized console output.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Disable caller annotation on log entries.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Log output paths.")
}
