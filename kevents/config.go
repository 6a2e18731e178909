package kevents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Backend names accepted by Config.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendPebble = "pebble"
	BackendKafka  = "kafka"
)

// Config selects and configures an event log backend from a config file.
type Config struct {
	Backend    string   `yaml:"backend"`
	Path       string   `yaml:"path"`
	SessionID  string   `yaml:"sessionID"`
	SyncWrites bool     `yaml:"syncWrites"`
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
}

// Open creates the configured logger. An empty session id is replaced with a
// random one.
func (c Config) Open(ctx context.Context, codec *Codec, log *slog.Logger) (Logger, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	session := c.SessionID
	if session == "" {
		session = uuid.NewString()
	}

	switch c.Backend {
	case "", BackendNone:
		return NoOp{}, nil
	case BackendMemory:
		return NewMemory(codec), nil
	case BackendFile:
		f, err := OpenFile(c.Path, codec, WithSyncWrites(c.SyncWrites), WithFileLogger(log))
		if err != nil {
			return nil, err
		}
		return f, nil
	case BackendBadger:
		j, err := OpenBadger(BadgerConfig{
			Path:       c.Path,
			SessionID:  session,
			SyncWrites: c.SyncWrites,
			Logger:     log,
		}, codec)
		if err != nil {
			return nil, err
		}
		return j, nil
	case BackendPebble:
		p, err := OpenPebble(c.Path, codec, nil)
		if err != nil {
			return nil, err
		}
		return p.WithLogger(log), nil
	case BackendKafka:
		k, err := NewKafka(ctx, KafkaConfig{
			Brokers:   c.Brokers,
			Topic:     c.Topic,
			SessionID: session,
			Logger:    log,
		}, codec)
		if err != nil {
			return nil, err
		}
		return k, nil
	default:
		return nil, fmt.Errorf("unknown event log backend %q", c.Backend)
	}
}
