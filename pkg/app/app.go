// Package app builds the command-line skeleton shared by all Groundlink
// binaries: cobra command wiring, viper configuration loading, flag and
// config validation, and logger initialization.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/groundlink-io/groundlink/pkg/log"
	"github.com/groundlink-io/groundlink/pkg/options"
)

// RunFunc is the application entrypoint, invoked after flags and config
// are loaded and validated.
type RunFunc func() error

// App is one runnable command-line application.
type App struct {
	name        string
	shortDesc   string
	description string

	options  options.IOptions
	logOpts  *log.Options
	runFunc  RunFunc
	noConfig bool
	cmdArgs  cobra.PositionalArgs

	cmd *cobra.Command
}

// Option configures an App while it is being built.
type Option func(*App)

// WithOptions attaches the application's option set. Its flags are added
// to the command and its Validate is run before the run function.
func WithOptions(opts options.IOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the application entrypoint.
func WithRunFunc(fn RunFunc) Option {
	return func(a *App) { a.runFunc = fn }
}

// WithDescription sets the long help text.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithDefaultValidArgs rejects any positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) { a.cmdArgs = cobra.NoArgs }
}

// WithNoConfig disables the --config flag and config file loading.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// NewApp builds an application with the given name and one-line summary.
func NewApp(name, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		logOpts:   log.NewOptions(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.cmdArgs,
		RunE:          a.runCommand,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	fs := cmd.Flags()
	if a.options != nil {
		a.options.AddFlags(fs)
	}
	a.logOpts.AddFlags(fs)
	if !a.noConfig {
		addConfigFlag(fs)
	}

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if !a.noConfig {
		if err := loadConfig(a.name, cmd.Flags()); err != nil {
			return err
		}
	}

	log.Init(a.logOpts)
	defer log.Sync()

	if errs := a.validate(); len(errs) > 0 {
		for _, err := range errs {
			log.Error(err, "Invalid configuration")
		}
		return fmt.Errorf("%d configuration error(s)", len(errs))
	}

	log.Info("Starting application", "name", a.name)
	if a.runFunc != nil {
		return a.runFunc()
	}
	return nil
}

func (a *App) validate() []error {
	var errs []error
	if a.options != nil {
		errs = append(errs, a.options.Validate()...)
	}
	errs = append(errs, a.logOpts.Validate()...)
	return errs
}

// Command exposes the underlying cobra command, for adding subcommands.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application and exits the process on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
