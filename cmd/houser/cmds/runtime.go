package cmds

import (
	"github.com/go-go-golems/houser/pkg/client"
	"github.com/go-go-golems/houser/pkg/config"
	"github.com/go-go-golems/houser/pkg/conversation"
	"github.com/go-go-golems/houser/pkg/persistence/journal"
	"github.com/go-go-golems/houser/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const AppName = "houser"

// LoadSettings resolves the settings of the current invocation.
func LoadSettings() (config.Settings, error) {
	return config.Load(viper.GetViper())
}

func NewClient(s config.Settings) (*client.Client, error) {
	return client.New(s.BaseURL, s.ClientOptions()...)
}

// OpenJournal opens the sqlite journal at path.
func OpenJournal(path string) (*journal.SQLiteStore, error) {
	p, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	dsn, err := journal.SQLiteDSNForFile(p)
	if err != nil {
		return nil, err
	}
	return journal.NewSQLiteStore(dsn)
}

// Runtime is what a conversational command runs on: the client, the
// conversation and the snapshot sinks configured for it.
type Runtime struct {
	Settings     config.Settings
	Client       *client.Client
	Conversation *conversation.Conversation

	closers []func() error
}

func NewRuntime(s config.Settings) (*Runtime, error) {
	c, err := NewClient(s)
	if err != nil {
		return nil, err
	}
	window, err := s.Window()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Settings: s, Client: c}
	opts := []conversation.Option{
		conversation.WithWindow(window),
		conversation.WithDecoderOptions(s.DecoderOptions()...),
	}

	if s.JournalPath != "" {
		store, err := OpenJournal(s.JournalPath)
		if err != nil {
			return nil, errors.Wrap(err, "open journal")
		}
		rt.closers = append(rt.closers, store.Close)
		opts = append(opts, conversation.WithSink(journal.NewRecorder(store, false)))
		log.Debug().Str("path", s.JournalPath).Msg("recording snapshots to journal")
	}

	if s.Redis.Enabled {
		bus, err := redisstream.BuildBus(s.Redis)
		if err != nil {
			_ = rt.Close()
			return nil, errors.Wrap(err, "connect snapshot bus")
		}
		rt.closers = append(rt.closers, bus.Close)
		opts = append(opts, conversation.WithSink(redisstream.NewSnapshotPublisher(bus.Publisher, bus.Topic)))
		log.Debug().Str("addr", s.Redis.Addr).Str("topic", bus.Topic).Msg("publishing snapshots to redis")
	}

	rt.Conversation = conversation.New(c, opts...)
	return rt, nil
}

// Close releases the sinks in reverse order of creation.
func (r *Runtime) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}
