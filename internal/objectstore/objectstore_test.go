// Package objectstore_test tests the NATS object store implementation
// against an embedded server.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/speech-engine/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// startTestServer starts an in-memory NATS server with JetStream enabled.
func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err, "failed to connect to test NATS server")

	return natsServer, natsConnection
}

func TestStore_UploadDownloadDelete(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "speech-test-bucket")
	require.NoError(t, err)

	ctx := context.Background()
	key := "chunk-audio.wav"
	uploadData := []byte("RIFF pretend wav bytes")

	require.NoError(t, store.Upload(ctx, key, uploadData))

	downloaded, err := store.Download(ctx, key)
	require.NoError(t, err)
	require.Equal(t, uploadData, downloaded)

	require.NoError(t, store.Delete(ctx, key))

	_, err = store.Download(ctx, key)
	require.Error(t, err)
}

func TestStore_BindExistingBucket(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	first, err := objectstore.New(jetstreamContext, "speech-shared-bucket")
	require.NoError(t, err)
	require.NoError(t, first.Upload(context.Background(), "k", []byte("v")))

	// A second New against the same bucket binds instead of failing.
	second, err := objectstore.New(jetstreamContext, "speech-shared-bucket")
	require.NoError(t, err)

	data, err := second.Download(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), data)
}

func TestStore_DownloadMissingKey(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "speech-missing-bucket")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "no-such-key")
	require.Error(t, err)
}
