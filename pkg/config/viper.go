package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const ConfigFileName = "config.yaml"

// Dir returns ~/.<appName>.
func Dir(appName string) (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, "."+appName), nil
}

// ExpandPath expands a leading ~ in p.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	out, err := homedir.Expand(p)
	if err != nil {
		return "", errors.Wrapf(err, "expand path %q", p)
	}
	return out, nil
}

// AddFlags registers the persistent flags every houser command accepts.
func AddFlags(fs *pflag.FlagSet) {
	d := DefaultSettings()
	fs.String("config", "", "Path to the config file (default ~/.houser/config.yaml)")
	fs.String("base-url", d.BaseURL, "Base URL of the real-estate search backend")
	fs.Duration("request-timeout", d.RequestTimeout, "Timeout for non-streaming requests")
	fs.Int("open-retries", d.OpenRetries, "How often opening a request is retried")
	fs.Int("history-turns", d.HistoryTurns, "Maximum number of history turns sent with a message")
	fs.Int("history-token-budget", d.HistoryTokenBudget, "Maximum number of cl100k tokens of history sent (0 disables)")
	fs.String("journal", d.JournalPath, "Record snapshots into this sqlite file")
	fs.String("log-level", d.Log.Level, "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "Log format (text, json)")
	fs.Bool("with-caller", d.Log.WithCaller, "Log caller information")
	fs.String("log-file", d.Log.File, "Write logs to this file (rotated)")
}

// InitViper wires the global viper instance to the persistent flags of
// rootCmd, HOUSER_* env vars and the config file.
func InitViper(appName string, rootCmd *cobra.Command) error {
	AddFlags(rootCmd.PersistentFlags())
	RegisterDefaults(viper.GetViper())

	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	return viper.BindPFlags(rootCmd.PersistentFlags())
}

// ReadConfig loads the config file named by --config, or ~/.<appName>/config.yaml
// when it exists. A missing default file is not an error.
func ReadConfig(appName string, v *viper.Viper) error {
	explicit := v.GetString("config")
	if explicit != "" {
		p, err := ExpandPath(explicit)
		if err != nil {
			return err
		}
		v.SetConfigFile(p)
	} else {
		dir, err := Dir(appName)
		if err != nil {
			return err
		}
		p := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(p); err != nil {
			log.Debug().Str("path", p).Msg("no config file")
			return nil
		}
		v.SetConfigFile(p)
	}

	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", v.ConfigFileUsed())
	}
	log.Debug().Str("path", v.ConfigFileUsed()).Msg("loaded config file")
	return nil
}

// ConfigPath is the file `config set` writes to.
func ConfigPath(appName string, v *viper.Viper) (string, error) {
	if used := v.ConfigFileUsed(); used != "" {
		return used, nil
	}
	if explicit := v.GetString("config"); explicit != "" {
		return ExpandPath(explicit)
	}
	dir, err := Dir(appName)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}
