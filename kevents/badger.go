package kevents

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BadgerConfig configures a BadgerDB event journal.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Required unless InMemory.
	Path string

	// SessionID scopes the journal. Several sessions may share one database.
	SessionID string

	// SyncWrites enables synchronous writes.
	SyncWrites bool

	// InMemory uses an in-memory database (for tests).
	InMemory bool

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

func (c *BadgerConfig) Validate() error {
	if c.SessionID == "" {
		return errors.New("session_id must not be empty")
	}
	if !c.InMemory && c.Path == "" {
		return errors.New("path is required for persistent journal")
	}
	return nil
}

// Badger journals events in BadgerDB.
//
// Key format: "event:{session_id}:{seq_num:016d}"
// Value format: [4-byte CRC32][encoded event line]
type Badger struct {
	db     *badger.DB
	codec  *Codec
	config BadgerConfig
	logger *slog.Logger
	tracer trace.Tracer

	seqNum atomic.Uint64
	closed atomic.Bool
}

// OpenBadger opens (or creates) a journal and resumes its sequence numbers.
func OpenBadger(config BadgerConfig, codec *Codec) (*Badger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	j := &Badger{
		codec:  codec,
		config: config,
		logger: config.Logger.With(slog.String("component", "journal"), slog.String("session_id", config.SessionID)),
		tracer: otel.Tracer("kevents"),
	}

	dir := config.Path
	if config.InMemory {
		dir = ""
	}
	opts := badger.DefaultOptions(dir).
		WithInMemory(config.InMemory).
		WithSyncWrites(config.SyncWrites).
		WithLogger(badgerLogger{j.logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	j.db = db

	if err := j.initSeqNum(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sequence number: %w", err)
	}

	j.logger.Info("journal opened",
		slog.String("path", config.Path),
		slog.Bool("sync_writes", config.SyncWrites),
		slog.Uint64("last_seq_num", j.seqNum.Load()))

	return j, nil
}

// initSeqNum scans for the highest existing sequence number.
func (j *Badger) initSeqNum() error {
	prefix := j.keyPrefix()
	var maxSeq uint64

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// '9' sorts after every decimal digit
		it.Seek(append([]byte(prefix), '9'+1))

		if it.ValidForPrefix([]byte(prefix)) {
			key := it.Item().Key()
			var seq uint64
			if _, err := fmt.Sscanf(string(key[len(prefix):]), "%016d", &seq); err == nil {
				maxSeq = seq
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.seqNum.Store(maxSeq)
	return nil
}

func (j *Badger) keyPrefix() string {
	return fmt.Sprintf("event:%s:", j.config.SessionID)
}

func (j *Badger) key(seqNum uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", j.keyPrefix(), seqNum))
}

func encodeEntry(line []byte) []byte {
	result := make([]byte, 4+len(line))
	binary.BigEndian.PutUint32(result[:4], crc32.ChecksumIEEE(line))
	copy(result[4:], line)
	return result
}

func decodeEntry(data []byte) ([]byte, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: entry too short", ErrCorrupted)
	}
	storedCRC := binary.BigEndian.Uint32(data[:4])
	line := data[4:]
	if computedCRC := crc32.ChecksumIEEE(line); storedCRC != computedCRC {
		return nil, fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorrupted, storedCRC, computedCRC)
	}
	return line, nil
}

func (j *Badger) Log(ctx context.Context, event ExternalEvent) error {
	if j.closed.Load() {
		return ErrClosed
	}

	_, span := j.tracer.Start(ctx, "journal.Log",
		trace.WithAttributes(
			attribute.String("session_id", j.config.SessionID),
			attribute.String("action", string(event.Action.Type)),
			attribute.Int64("node_id", int64(event.Action.ID)),
		),
	)
	defer span.End()

	line, err := j.codec.Encode(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return err
	}
	data := encodeEntry(line)

	seqNum := j.seqNum.Add(1)
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(j.key(seqNum), data)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("write entry: %w", err)
	}

	span.SetAttributes(attribute.Int64("seq_num", int64(seqNum)))
	j.logger.Debug("event appended", slog.Uint64("seq_num", seqNum), slog.Int("bytes", len(data)))
	return nil
}

// Events replays the journal of this session in sequence order.
func (j *Badger) Events(ctx context.Context) ([]ExternalEvent, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}

	_, span := j.tracer.Start(ctx, "journal.Events",
		trace.WithAttributes(attribute.String("session_id", j.config.SessionID)))
	defer span.End()

	prefix := []byte(j.keyPrefix())
	var events []ExternalEvent
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", item.Key(), err)
			}
			line, err := decodeEntry(data)
			if err != nil {
				return fmt.Errorf("entry %s: %w", item.Key(), err)
			}
			event, err := j.codec.Decode(line)
			if err != nil {
				return fmt.Errorf("entry %s: %w", item.Key(), err)
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replay failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("events", len(events)))
	return events, nil
}

func (j *Badger) Close() error {
	if j.closed.Swap(true) {
		return nil
	}
	return j.db.Close()
}

// badgerLogger routes badger's internal logging to slog.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

var (
	_ Logger = (*Badger)(nil)
	_ Source = (*Badger)(nil)
)
