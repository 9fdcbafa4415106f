package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Settings controls the global zerolog logger.
type Settings struct {
	Level      string `mapstructure:"log-level" yaml:"log-level"`
	Format     string `mapstructure:"log-format" yaml:"log-format"`
	WithCaller bool   `mapstructure:"with-caller" yaml:"with-caller"`
	File       string `mapstructure:"log-file" yaml:"log-file,omitempty"`

	// rotation, only used with File
	MaxSizeMB  int `mapstructure:"log-max-size-mb" yaml:"log-max-size-mb,omitempty"`
	MaxBackups int `mapstructure:"log-max-backups" yaml:"log-max-backups,omitempty"`
	MaxAgeDays int `mapstructure:"log-max-age-days" yaml:"log-max-age-days,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		Level:      "warn",
		Format:     FormatText,
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// NewWriter returns the output writer for s. Console text goes to stderr so
// that stdout stays free for answers.
func NewWriter(s Settings) (io.Writer, error) {
	format := strings.ToLower(strings.TrimSpace(s.Format))
	if format == "" {
		format = FormatText
	}
	if format != FormatText && format != FormatJSON {
		return nil, errors.Errorf("unknown log format %q", s.Format)
	}

	if s.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    s.MaxSizeMB,
			MaxBackups: s.MaxBackups,
			MaxAge:     s.MaxAgeDays,
			Compress:   true,
		}
		if format == FormatText {
			return zerolog.ConsoleWriter{Out: rotator, NoColor: true}, nil
		}
		return rotator, nil
	}

	if format == FormatText {
		return zerolog.ConsoleWriter{Out: os.Stderr}, nil
	}
	return os.Stderr, nil
}

// InitLogger replaces the global logger. It is called again from the root
// command once flags are parsed.
func InitLogger(s Settings) error {
	level := strings.TrimSpace(s.Level)
	if level == "" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", s.Level)
	}

	w, err := NewWriter(s)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(lvl)
	ctx := zerolog.New(w).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return nil
}
