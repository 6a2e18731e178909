package kevents

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

func logAll(t *testing.T, l Logger, events []ExternalEvent) {
	t.Helper()
	for _, e := range events {
		assert.NoError(t, l.Log(context.Background(), e))
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory(nil)
	logAll(t, m, testEvents())

	events, err := m.Events(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, testEvents(), events)

	m.Reset()
	events, _ = m.Events(context.Background())
	assert.Equal(t, 0, len(events))
}

func TestFile(t *testing.T) {
	codec := NewCodec(nil)
	path := filepath.Join(t.TempDir(), "traces", "run.jsonl")

	t.Run("append and read back", func(t *testing.T) {
		f, err := OpenFile(path, codec, WithSyncWrites(true))
		assert.NoError(t, err)
		logAll(t, f, testEvents()[:2])

		events, err := f.Events(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, testEvents()[:2], events)
		assert.NoError(t, f.Close())
		assert.True(t, errors.Is(f.Log(context.Background(), testEvents()[0]), ErrClosed))
	})

	t.Run("reopen appends", func(t *testing.T) {
		f, err := OpenFile(path, codec)
		assert.NoError(t, err)
		logAll(t, f, testEvents()[2:])
		assert.NoError(t, f.Close())

		events, err := ReadFile(path, codec)
		assert.NoError(t, err)
		assert.Equal(t, testEvents(), events)
	})

	t.Run("missing file is empty", func(t *testing.T) {
		events, err := ReadFile(filepath.Join(t.TempDir(), "nope"), codec)
		assert.NoError(t, err)
		assert.Equal(t, 0, len(events))
	})

	t.Run("empty line is corruption", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.jsonl")
		line, err := codec.Encode(testEvents()[0])
		assert.NoError(t, err)
		assert.NoError(t, os.WriteFile(bad, append(append(line, '\n', '\n'), line...), 0644))

		_, err = ReadFile(bad, codec)
		assert.True(t, errors.Is(err, ErrCorrupted))
		assert.Contains(t, err.Error(), "line 2")
	})

	t.Run("atomic write replaces", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "shrunk.jsonl")
		assert.NoError(t, WriteFile(out, testEvents(), codec))
		assert.NoError(t, WriteFile(out, testEvents()[:1], codec))

		events, err := ReadFile(out, codec)
		assert.NoError(t, err)
		assert.Equal(t, testEvents()[:1], events)

		_, err = os.Stat(out + ".tmp")
		assert.True(t, os.IsNotExist(err))
	})
}

func TestBadger(t *testing.T) {
	codec := NewCodec(nil)

	t.Run("config validation", func(t *testing.T) {
		_, err := OpenBadger(BadgerConfig{InMemory: true}, codec)
		assert.Error(t, err)
		_, err = OpenBadger(BadgerConfig{SessionID: "s"}, codec)
		assert.Error(t, err)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		dir := t.TempDir()
		a, err := OpenBadger(BadgerConfig{Path: dir, SessionID: "a", SyncWrites: true}, codec)
		assert.NoError(t, err)
		logAll(t, a, testEvents())
		assert.NoError(t, a.Close())

		b, err := OpenBadger(BadgerConfig{Path: dir, SessionID: "b"}, codec)
		assert.NoError(t, err)
		events, err := b.Events(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 0, len(events))
		assert.NoError(t, b.Close())

		a, err = OpenBadger(BadgerConfig{Path: dir, SessionID: "a"}, codec)
		assert.NoError(t, err)
		assert.Equal(t, uint64(len(testEvents())), a.seqNum.Load())
		logAll(t, a, testEvents()[:1])

		events, err = a.Events(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, append(testEvents(), testEvents()[0]), events)
		assert.NoError(t, a.Close())
	})

	t.Run("crc", func(t *testing.T) {
		entry := encodeEntry([]byte(`{"x":1}`))
		line, err := decodeEntry(entry)
		assert.NoError(t, err)
		assert.Equal(t, `{"x":1}`, string(line))

		entry[5] ^= 0xff
		_, err = decodeEntry(entry)
		assert.True(t, errors.Is(err, ErrCorrupted))
		_, err = decodeEntry([]byte{1, 2})
		assert.True(t, errors.Is(err, ErrCorrupted))
	})
}

func TestPebble(t *testing.T) {
	codec := NewCodec(nil)
	fs := vfs.NewMem()

	p, err := OpenPebble("events", codec, &pebble.Options{FS: fs})
	assert.NoError(t, err)
	logAll(t, p, testEvents()[:3])
	assert.NoError(t, p.Close())
	assert.True(t, errors.Is(p.Log(context.Background(), testEvents()[0]), ErrClosed))

	p, err = OpenPebble("events", codec, &pebble.Options{FS: fs})
	assert.NoError(t, err)
	defer p.Close()
	assert.Equal(t, int64(3), p.seq)
	logAll(t, p, testEvents()[3:])

	events, err := p.Events(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, testEvents(), events)
}

func TestBadgerInMemory(t *testing.T) {
	j, err := OpenBadger(BadgerConfig{SessionID: "mem", InMemory: true}, NewCodec(nil))
	assert.NoError(t, err)
	defer j.Close()

	logAll(t, j, testEvents())
	events, err := j.Events(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, testEvents(), events)
}

func TestConfigOpen(t *testing.T) {
	ctx := context.Background()
	codec := NewCodec(nil)

	l, err := Config{}.Open(ctx, codec, nil)
	assert.NoError(t, err)
	assert.Equal[Logger](t, NoOp{}, l)

	l, err = Config{Backend: BackendMemory}.Open(ctx, codec, nil)
	assert.NoError(t, err)
	_, ok := l.(*Memory)
	assert.True(t, ok)

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	l, err = Config{Backend: BackendFile, Path: path}.Open(ctx, codec, nil)
	assert.NoError(t, err)
	assert.NoError(t, l.Log(ctx, ExternalEvent{Action: ExternalAction{Type: FireEvent, ID: 1, Value: int64(2)}}))
	assert.NoError(t, l.Close())

	events, err := ReadFile(path, codec)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(events))

	_, err = Config{Backend: "carrier-pigeon"}.Open(ctx, codec, nil)
	assert.Error(t, err)
}
