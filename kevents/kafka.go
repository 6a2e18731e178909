package kevents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/birdayz/kfrp/kserde"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures a Kafka backed event log.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// SessionID is the record key. Events are read back per session.
	SessionID string

	// Partitions and ReplicationFactor are used when the topic is created.
	// The session key keeps one session on one partition.
	Partitions        int32
	ReplicationFactor int16

	Logger *slog.Logger
}

func (c *KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("topic must not be empty")
	}
	if c.SessionID == "" {
		return errors.New("session_id must not be empty")
	}
	return nil
}

// Kafka produces one record per event to a topic.
type Kafka struct {
	client *kgo.Client
	admin  *kadm.Client
	codec  *Codec
	config KafkaConfig
	log    *slog.Logger
	key    []byte
}

// NewKafka connects to the brokers and creates the topic if it is missing.
func NewKafka(ctx context.Context, config KafkaConfig, codec *Codec) (*Kafka, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Partitions <= 0 {
		config.Partitions = 1
	}
	if config.ReplicationFactor <= 0 {
		config.ReplicationFactor = 1
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(config.Brokers...),
		kgo.DefaultProduceTopic(config.Topic),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	key, _ := kserde.String.Serializer(config.SessionID)
	k := &Kafka{
		client: client,
		admin:  kadm.NewClient(client),
		codec:  codec,
		config: config,
		log:    config.Logger.With("topic", config.Topic, "session_id", config.SessionID),
		key:    key,
	}

	if err := k.ensureTopic(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return k, nil
}

func (k *Kafka) ensureTopic(ctx context.Context) error {
	resp, err := k.admin.CreateTopics(ctx, k.config.Partitions, k.config.ReplicationFactor, nil, k.config.Topic)
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (k *Kafka) Log(ctx context.Context, event ExternalEvent) error {
	line, err := k.codec.Encode(event)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Key:   k.key,
		Value: line,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action.Type)},
		},
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

// Events consumes the topic from the beginning up to the current end
// offsets and returns the events of this session.
func (k *Kafka) Events(ctx context.Context) ([]ExternalEvent, error) {
	ends, err := k.admin.ListEndOffsets(ctx, k.config.Topic)
	if err != nil {
		return nil, fmt.Errorf("list end offsets: %w", err)
	}

	remaining := make(map[int32]int64)
	var listErr error
	ends.Each(func(o kadm.ListedOffset) {
		if o.Err != nil {
			listErr = o.Err
			return
		}
		if o.Offset > 0 {
			remaining[o.Partition] = o.Offset
		}
	})
	if listErr != nil {
		return nil, fmt.Errorf("list end offsets: %w", listErr)
	}
	if len(remaining) == 0 {
		return nil, nil
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(k.config.Brokers...),
		kgo.ConsumeTopics(k.config.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	defer consumer.Close()

	var events []ExternalEvent
	var decodeErr error
	for len(remaining) > 0 {
		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil, ErrClosed
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return nil, fmt.Errorf("fetch %s/%d: %w", errs[0].Topic, errs[0].Partition, errs[0].Err)
		}

		fetches.EachRecord(func(r *kgo.Record) {
			end, ok := remaining[r.Partition]
			if !ok || decodeErr != nil {
				return
			}
			if r.Offset+1 >= end {
				delete(remaining, r.Partition)
			}
			if r.Offset >= end || string(r.Key) != string(k.key) {
				return
			}
			event, err := k.codec.Decode(r.Value)
			if err != nil {
				decodeErr = fmt.Errorf("offset %d: %w", r.Offset, err)
				return
			}
			events = append(events, event)
		})
		if decodeErr != nil {
			return nil, decodeErr
		}
	}

	k.log.Debug("events consumed", "count", len(events))
	return events, nil
}

func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}

var (
	_ Logger = (*Kafka)(nil)
	_ Source = (*Kafka)(nil)
)
