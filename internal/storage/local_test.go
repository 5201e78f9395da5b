package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	obj, err := store.Put(ctx, []byte("%PDF-1.4 test"), "contract.pdf", "application/pdf", "contracts")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.Key, "contracts/"))
	assert.True(t, strings.HasSuffix(obj.Key, ".pdf"))

	exists, err := store.Exists(ctx, obj.Key)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.Get(ctx, obj.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 test"), data)

	require.NoError(t, store.Delete(ctx, obj.Key))
	exists, err = store.Exists(ctx, obj.Key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStoreDeleteMissingKey(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, store.Delete(context.Background(), "contracts/nope.pdf"))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

func TestObjectKeyDefaults(t *testing.T) {
	key := ObjectKey("invoice.PDF", "")
	assert.True(t, strings.HasPrefix(key, "documents/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))

	// Keys are unique per call.
	assert.NotEqual(t, ObjectKey("a.pdf", "x"), ObjectKey("a.pdf", "x"))
}
