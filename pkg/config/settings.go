package config

import (
	"time"

	"github.com/go-go-golems/houser/pkg/client"
	"github.com/go-go-golems/houser/pkg/frame"
	"github.com/go-go-golems/houser/pkg/logging"
	"github.com/go-go-golems/houser/pkg/redisstream"
	"github.com/go-go-golems/houser/pkg/session"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Settings is the resolved configuration of one houser invocation, merged
// from defaults, the config file, HOUSER_* env vars and flags.
type Settings struct {
	BaseURL            string        `mapstructure:"base-url" yaml:"base-url"`
	RequestTimeout     time.Duration `mapstructure:"request-timeout" yaml:"request-timeout"`
	OpenRetries        int           `mapstructure:"open-retries" yaml:"open-retries"`
	OpenMaxElapsed     time.Duration `mapstructure:"open-max-elapsed" yaml:"open-max-elapsed"`
	SearchCacheTTL     time.Duration `mapstructure:"cache-ttl" yaml:"cache-ttl"`
	HistoryTurns       int           `mapstructure:"history-turns" yaml:"history-turns"`
	HistoryTokenBudget int           `mapstructure:"history-token-budget" yaml:"history-token-budget"`
	MaxLineBytes       int           `mapstructure:"max-line-bytes" yaml:"max-line-bytes"`
	JournalPath        string        `mapstructure:"journal" yaml:"journal,omitempty"`

	Redis redisstream.Settings `mapstructure:"redis" yaml:"redis"`

	Log logging.Settings `mapstructure:",squash" yaml:",inline"`
}

func DefaultSettings() Settings {
	return Settings{
		BaseURL:        client.DefaultBaseURL,
		RequestTimeout: client.DefaultRequestTimeout,
		OpenRetries:    client.DefaultOpenRetries,
		OpenMaxElapsed: 20 * time.Second,
		SearchCacheTTL: client.DefaultCacheTTL,
		HistoryTurns:   session.DefaultWindow.MaxTurns,
		MaxLineBytes:   frame.DefaultMaxLineBytes,
		Redis:          redisstream.Settings{}.WithDefaults(),
		Log:            logging.DefaultSettings(),
	}
}

// RegisterDefaults seeds v with every known key so that env vars bind to
// them during Unmarshal.
func RegisterDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("base-url", d.BaseURL)
	v.SetDefault("request-timeout", d.RequestTimeout)
	v.SetDefault("open-retries", d.OpenRetries)
	v.SetDefault("open-max-elapsed", d.OpenMaxElapsed)
	v.SetDefault("cache-ttl", d.SearchCacheTTL)
	v.SetDefault("history-turns", d.HistoryTurns)
	v.SetDefault("history-token-budget", d.HistoryTokenBudget)
	v.SetDefault("max-line-bytes", d.MaxLineBytes)
	v.SetDefault("journal", d.JournalPath)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.topic", d.Redis.Topic)
	v.SetDefault("redis.group", d.Redis.Group)
	v.SetDefault("redis.consumer", d.Redis.Consumer)

	v.SetDefault("log-level", d.Log.Level)
	v.SetDefault("log-format", d.Log.Format)
	v.SetDefault("with-caller", d.Log.WithCaller)
	v.SetDefault("log-file", d.Log.File)
	v.SetDefault("log-max-size-mb", d.Log.MaxSizeMB)
	v.SetDefault("log-max-backups", d.Log.MaxBackups)
	v.SetDefault("log-max-age-days", d.Log.MaxAgeDays)
}

// Load unmarshals v into Settings and validates the result.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decode settings")
	}
	s.Redis = s.Redis.WithDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.RequestTimeout < 0 {
		return errors.New("request-timeout must not be negative")
	}
	if s.OpenRetries < 0 {
		return errors.New("open-retries must not be negative")
	}
	if s.HistoryTurns < 0 {
		return errors.New("history-turns must not be negative")
	}
	if s.HistoryTokenBudget < 0 {
		return errors.New("history-token-budget must not be negative")
	}
	if s.MaxLineBytes < 0 {
		return errors.New("max-line-bytes must not be negative")
	}
	return nil
}

// ClientOptions maps the transport settings onto client options.
func (s Settings) ClientOptions() []client.Option {
	opts := []client.Option{
		client.WithOpenRetries(s.OpenRetries, s.OpenMaxElapsed),
		client.WithCacheTTL(s.SearchCacheTTL),
	}
	if s.RequestTimeout > 0 {
		opts = append(opts, client.WithRequestTimeout(s.RequestTimeout))
	}
	return opts
}

// DecoderOptions maps the frame settings onto decoder options.
func (s Settings) DecoderOptions() []frame.Option {
	if s.MaxLineBytes <= 0 {
		return nil
	}
	return []frame.Option{frame.WithMaxLineBytes(s.MaxLineBytes)}
}

// Window builds the history window. A token budget loads the cl100k
// encoding.
func (s Settings) Window() (session.Window, error) {
	w := session.Window{MaxTurns: s.HistoryTurns, TokenBudget: s.HistoryTokenBudget}
	if s.HistoryTokenBudget > 0 {
		counter, err := session.NewTiktokenCounter()
		if err != nil {
			return session.Window{}, err
		}
		w.Counter = counter
	}
	return w, nil
}
