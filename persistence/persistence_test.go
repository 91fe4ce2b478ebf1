package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("gob bytes would go here, long enough to compress poorly")

	blob, err := Encode("random_forest", "classification", payload)
	require.NoError(t, err)

	header, got, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, header.Version)
	assert.Equal(t, "random_forest", header.Algorithm)
	assert.Equal(t, "classification", header.Task)
	assert.Equal(t, payload, got)
}

func TestDecodeHeaderOnly(t *testing.T) {
	blob, err := Encode("arima", "time_series", []byte{1, 2, 3})
	require.NoError(t, err)

	header, err := DecodeHeader(blob)
	require.NoError(t, err)
	assert.Equal(t, "arima", header.Algorithm)
	assert.Equal(t, "time_series", header.Task)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	blob, err := Encode("kmeans", "clustering", []byte{1})
	require.NoError(t, err)
	blob[0] = 'X'

	_, _, err = Decode(blob)
	assert.Equal(t, errors.KindIncompatibleFormat, errors.KindOf(err))
}

func TestDecodeRejectsCorruptedPayload(t *testing.T) {
	blob, err := Encode("kmeans", "clustering", []byte("some payload"))
	require.NoError(t, err)
	blob[len(blob)-8] ^= 0xFF // flip a payload byte, checksum now disagrees

	_, _, err = Decode(blob)
	assert.Equal(t, errors.KindIncompatibleFormat, errors.KindOf(err))
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	blob, err := Encode("kmeans", "clustering", []byte("payload"))
	require.NoError(t, err)

	// A tampered version byte fails either as a version mismatch or, at
	// worst, the checksum; both are the incompatible-format kind.
	blob[len(Magic)+1] = 99

	_, _, err = Decode(blob)
	assert.Equal(t, errors.KindIncompatibleFormat, errors.KindOf(err))
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	_, _, err := Decode([]byte("PS"))
	assert.Equal(t, errors.KindIncompatibleFormat, errors.KindOf(err))
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "a", []byte{1}))
	require.NoError(t, store.Put(ctx, "b", []byte{2}))

	blob, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, blob)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
	assert.Equal(t, errors.KindNotFound, errors.KindOf(store.Delete(ctx, "a")))

	assert.NoError(t, store.Health(ctx))
}

func TestMemoryStoreCopiesBlobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	original := []byte{1, 2, 3}
	require.NoError(t, store.Put(ctx, "k", original))
	original[0] = 9

	blob, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, byte(1), blob[0])
}

func TestLocalStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "model-1", []byte("first")))
	require.NoError(t, store.Put(ctx, "model-2", []byte("second")))

	blob, err := store.Get(ctx, "model-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), blob)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"model-1", "model-2"}, keys)

	// Overwrite in place.
	require.NoError(t, store.Put(ctx, "model-1", []byte("updated")))
	blob, err = store.Get(ctx, "model-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), blob)

	require.NoError(t, store.Delete(ctx, "model-1"))
	_, err = store.Get(ctx, "model-1")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	assert.NoError(t, store.Health(ctx))
}

func TestLocalStoreRejectsPathKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "a/b", `a\b`} {
		assert.Equal(t, errors.KindInvalidInput, errors.KindOf(store.Put(ctx, key, []byte{1})),
			"key %q accepted", key)
	}
}

func TestStoresHonorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mem := NewMemoryStore()
	assert.Equal(t, errors.KindCancelled, errors.KindOf(mem.Put(ctx, "k", nil)))

	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = local.Get(ctx, "k")
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
}
