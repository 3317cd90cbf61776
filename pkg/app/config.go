package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/groundlink-io/groundlink/pkg/log"
)

const configFlagName = "config"

// envPrefix is the environment variable prefix, e.g. GLINK_LOG_LEVEL
// overrides --log.level.
const envPrefix = "GLINK"

func addConfigFlag(fs *pflag.FlagSet) {
	fs.StringP(configFlagName, "c", "", "Path to the configuration file (yaml or json).")
}

// loadConfig merges configuration sources into the flag set. Precedence,
// highest first: explicit flags, environment variables, the config file,
// flag defaults. After loading, changes to the config file's log.level
// take effect at runtime.
func loadConfig(name string, fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfgFile, err := fs.GetString(configFlagName)
	if err != nil {
		return err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName(name)
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/groundlink")
		if err := v.ReadInConfig(); err != nil {
			// A missing default config is fine; a broken one is not.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == configFlagName {
			return
		}
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("failed to apply config value for --%s: %w", f.Name, err)
			}
		}
	})
	if bindErr != nil {
		return bindErr
	}

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(fsnotify.Event) {
			if level := v.GetString("log.level"); level != "" {
				log.SetLevel(level)
				log.Info("Log level reloaded from config", "level", level)
			}
		})
		v.WatchConfig()
	}

	return nil
}
