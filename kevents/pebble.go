package kevents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/birdayz/kfrp/kserde"
	"github.com/cockroachdb/pebble"
)

var pebbleEventPrefix = []byte("events/")

// Pebble stores events in a Pebble database. Keys are the prefix followed by
// the order-preserving encoding of the sequence number.
type Pebble struct {
	db    *pebble.DB
	codec *Codec
	log   *slog.Logger

	mu     sync.Mutex
	seq    int64
	closed bool
}

// OpenPebble opens the database at dir. opts may be nil.
func OpenPebble(dir string, codec *Codec, opts *pebble.Options) (*Pebble, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	p := &Pebble{
		db:    db,
		codec: codec,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if err := p.initSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// WithLogger replaces the discarding logger.
func (p *Pebble) WithLogger(log *slog.Logger) *Pebble {
	p.log = log
	return p
}

func (p *Pebble) bounds() *pebble.IterOptions {
	upper := append([]byte{}, pebbleEventPrefix...)
	upper[len(upper)-1]++
	return &pebble.IterOptions{
		LowerBound: pebbleEventPrefix,
		UpperBound: upper,
	}
}

func (p *Pebble) initSeq() error {
	it := p.db.NewIter(p.bounds())
	defer it.Close()

	if it.Last() {
		seq, err := kserde.Int64.Deserializer(it.Key()[len(pebbleEventPrefix):])
		if err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrCorrupted, it.Key(), err)
		}
		p.seq = seq
	}
	return nil
}

func (p *Pebble) key(seq int64) ([]byte, error) {
	suffix, err := kserde.Int64.Serializer(seq)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, pebbleEventPrefix...), suffix...), nil
}

func (p *Pebble) Log(_ context.Context, event ExternalEvent) error {
	line, err := p.codec.Encode(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	key, err := p.key(p.seq + 1)
	if err != nil {
		return err
	}
	if err := p.db.Set(key, line, pebble.Sync); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	p.seq++
	p.log.Debug("event stored", "seq", p.seq)
	return nil
}

func (p *Pebble) Events(ctx context.Context) ([]ExternalEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	it := p.db.NewIter(p.bounds())
	defer it.Close()

	var events []ExternalEvent
	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		event, err := p.codec.Decode(it.Value())
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", it.Key(), err)
		}
		events = append(events, event)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return events, nil
}

func (p *Pebble) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.db.Flush(); err != nil {
		_ = p.db.Close()
		return err
	}
	return p.db.Close()
}

var (
	_ Logger = (*Pebble)(nil)
	_ Source = (*Pebble)(nil)
)
