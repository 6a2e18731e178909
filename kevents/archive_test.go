package kevents

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func TestArchiveRoundTrip(t *testing.T) {
	codec := NewCodec(nil)

	var buf bytes.Buffer
	assert.NoError(t, WriteArchive(&buf, testEvents(), codec))

	var plain bytes.Buffer
	assert.NoError(t, WriteLines(&plain, testEvents(), codec))
	assert.NotEqual(t, plain.Bytes(), buf.Bytes())

	events, err := ReadArchive(&buf, codec)
	assert.NoError(t, err)
	assert.Equal(t, testEvents(), events)

	_, err = ReadArchive(bytes.NewReader([]byte("not zstd")), codec)
	assert.Error(t, err)
}

func TestArchiveStore(t *testing.T) {
	skipShort(t)

	server := &MinioServer{}
	assert.NoError(t, server.Init())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := minio.New(server.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	assert.NoError(t, err)

	store, err := NewArchiveStore(ctx, client, "traces", "ci", NewCodec(nil))
	assert.NoError(t, err)

	// second call finds the existing bucket
	_, err = NewArchiveStore(ctx, client, "traces", "ci", NewCodec(nil))
	assert.NoError(t, err)

	assert.NoError(t, store.Upload(ctx, "run-1", testEvents()))

	events, err := store.Download(ctx, "run-1"+ArchiveExt)
	assert.NoError(t, err)
	assert.Equal(t, testEvents(), events)

	names, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, names)
}
