package redisstream

// Settings holds the snapshot fan-out transport configuration. When Enabled
// is false snapshots go through an in-process channel.
type Settings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	Group    string `mapstructure:"group" yaml:"group"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
}

const (
	DefaultAddr     = "localhost:6379"
	DefaultTopic    = "houser.snapshots"
	DefaultGroup    = "houser-watch"
	DefaultConsumer = "watch-1"
)

// WithDefaults fills empty fields.
func (s Settings) WithDefaults() Settings {
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	if s.Topic == "" {
		s.Topic = DefaultTopic
	}
	if s.Group == "" {
		s.Group = DefaultGroup
	}
	if s.Consumer == "" {
		s.Consumer = DefaultConsumer
	}
	return s
}
