package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPendingStoreRoundTrip(t *testing.T) {
	store := NewMemoryPendingStore(time.Minute)
	ctx := context.Background()

	got, err := store.Get(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Nil(t, got)

	pending := PendingRejection{VisitorID: 20250826101500, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Set(ctx, "+919876543210", pending))

	got, err = store.Get(ctx, "+919876543210")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(20250826101500), got.VisitorID)

	require.NoError(t, store.Delete(ctx, "+919876543210"))
	got, err = store.Get(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryPendingStoreExpiry(t *testing.T) {
	store := NewMemoryPendingStore(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "+919876543210", PendingRejection{VisitorID: 1}))
	time.Sleep(25 * time.Millisecond)

	got, err := store.Get(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPendingRejectionBinaryRoundTrip(t *testing.T) {
	in := PendingRejection{VisitorID: 20250826101500, CreatedAt: time.Date(2025, 8, 26, 10, 20, 0, 0, time.UTC)}
	data, err := in.MarshalBinary()
	require.NoError(t, err)

	var out PendingRejection
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in, out)
}
