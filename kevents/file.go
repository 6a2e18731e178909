package kevents

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// maxLineSize bounds a single encoded event when reading.
const maxLineSize = 16 << 20

// File appends one encoded event per line to a file.
//
// File format: newline separated JSON objects, see Codec. Empty lines are
// rejected on read.
type File struct {
	Path string

	codec      *Codec
	log        *slog.Logger
	syncWrites bool

	lock   sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

type FileOption func(*File)

// WithSyncWrites fsyncs after every event.
func WithSyncWrites(enabled bool) FileOption {
	return func(f *File) {
		f.syncWrites = enabled
	}
}

func WithFileLogger(log *slog.Logger) FileOption {
	return func(f *File) {
		f.log = log
	}
}

// OpenFile opens path for appending, creating it and its directory if needed.
func OpenFile(path string, codec *Codec, opts ...FileOption) (*File, error) {
	f := &File{
		Path:  path,
		codec: codec,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	f.file = file
	f.writer = bufio.NewWriter(file)

	f.log.Debug("event log opened", "path", path, "sync_writes", f.syncWrites)
	return f, nil
}

func (f *File) Log(_ context.Context, event ExternalEvent) error {
	line, err := f.codec.Encode(event)
	if err != nil {
		return err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if f.file == nil {
		return ErrClosed
	}
	if _, err := f.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	if f.syncWrites {
		if err := f.file.Sync(); err != nil {
			return fmt.Errorf("sync event log: %w", err)
		}
	}
	return nil
}

// Events reads back everything written so far.
func (f *File) Events(context.Context) ([]ExternalEvent, error) {
	f.lock.Lock()
	if f.writer != nil {
		if err := f.writer.Flush(); err != nil {
			f.lock.Unlock()
			return nil, fmt.Errorf("flush event: %w", err)
		}
	}
	f.lock.Unlock()
	return ReadFile(f.Path, f.codec)
}

func (f *File) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.file == nil {
		return nil
	}
	file := f.file
	f.file = nil

	if err := f.writer.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("flush event log: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync event log: %w", err)
	}
	return file.Close()
}

// ReadFile loads all events of an event log file.
// A missing file is an empty trace.
func ReadFile(path string, codec *Codec) ([]ExternalEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadLines(file, codec)
}

// ReadLines decodes newline separated events from r.
func ReadLines(r io.Reader, codec *Codec) ([]ExternalEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var events []ExternalEvent
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			return nil, fmt.Errorf("line %d: %w: unexpected empty line", lineNum, ErrCorrupted)
		}
		event, err := codec.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading event log: %w", err)
	}
	return events, nil
}

// WriteLines encodes events to w, one per line.
func WriteLines(w io.Writer, events []ExternalEvent, codec *Codec) error {
	writer := bufio.NewWriter(w)
	for i, event := range events {
		line, err := codec.Encode(event)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if _, err := writer.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write event %d: %w", i, err)
		}
	}
	return writer.Flush()
}

// WriteFile replaces path with events atomically: write to a temp file,
// fsync, rename, fsync the directory.
func WriteFile(path string, events []ExternalEvent, codec *Codec) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create event log directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp event log: %w", err)
	}

	if err := WriteLines(file, events, codec); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync event log: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp event log: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename event log: %w", err)
	}

	if runtime.GOOS != "windows" {
		dirFile, err := os.Open(dir)
		if err != nil {
			return fmt.Errorf("open directory for fsync: %w", err)
		}
		defer func() { _ = dirFile.Close() }()

		if err := dirFile.Sync(); err != nil {
			return fmt.Errorf("fsync directory: %w", err)
		}
	}
	return nil
}

var (
	_ Logger = (*File)(nil)
	_ Source = (*File)(nil)
)
