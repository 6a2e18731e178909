package kevents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
)

// ArchiveExt is the file extension of compressed traces.
const ArchiveExt = ".jsonl.zst"

// WriteArchive writes events as zstd compressed lines.
func WriteArchive(w io.Writer, events []ExternalEvent, codec *Codec) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := WriteLines(enc, events, codec); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadArchive(r io.Reader, codec *Codec) ([]ExternalEvent, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()
	return ReadLines(dec, codec)
}

// ArchiveStore keeps compressed traces in an S3 compatible bucket.
type ArchiveStore struct {
	client *minio.Client
	codec  *Codec

	bucket string
	prefix string
}

// NewArchiveStore creates the bucket if it does not exist yet.
func NewArchiveStore(ctx context.Context, client *minio.Client, bucket, prefix string, codec *Codec) (*ArchiveStore, error) {
	err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	if err != nil {
		exists, errBucketExists := client.BucketExists(ctx, bucket)
		if errBucketExists != nil || !exists {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &ArchiveStore{
		client: client,
		codec:  codec,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *ArchiveStore) objectName(name string) string {
	if !strings.HasSuffix(name, ArchiveExt) {
		name += ArchiveExt
	}
	return path.Join(s.prefix, name)
}

// Upload compresses events and stores them under name.
func (s *ArchiveStore) Upload(ctx context.Context, name string, events []ExternalEvent) error {
	var buf bytes.Buffer
	if err := WriteArchive(&buf, events, s.codec); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(name), &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/zstd",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (s *ArchiveStore) Download(ctx context.Context, name string) ([]ExternalEvent, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	defer func() { _ = obj.Close() }()

	events, err := ReadArchive(obj, s.codec)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	return events, nil
}

// List returns the names of all archives below the prefix.
func (s *ArchiveStore) List(ctx context.Context) ([]string, error) {
	var names []string
	prefix := s.prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(info.Key, prefix), ArchiveExt))
	}
	return names, nil
}
