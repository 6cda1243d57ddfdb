package session_test

import (
	"context"
	"testing"

	"github.com/pharmacare/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	tokens := session.NewTokenStore(store)

	_, ok, err := tokens.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tokens.Set(ctx, "abc"))
	token, ok, err := tokens.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	require.NoError(t, tokens.Set(ctx, ""))
	_, ok, err = tokens.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestTokenStoreEmptyValueIsAbsent(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(ctx, session.KeyToken, ""))

	_, ok, err := session.NewTokenStore(store).Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenStoreWrapsStorageErrors(t *testing.T) {
	store := &failingStore{MemoryStore: session.NewMemoryStore(), failSet: map[string]bool{session.KeyToken: true}}
	err := session.NewTokenStore(store).Set(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, session.HasTextCode(err, session.TextCodeStorageFailure))
}

func TestUserCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := session.NewUserCache(session.NewMemoryStore())

	exists, err := cache.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	staff := staffResult(3).User
	require.NoError(t, cache.Save(ctx, staff))

	loaded, ok, err := cache.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, staff, loaded)

	shape, ok, err := cache.LoadShape(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pharmacy", shape["userType"])

	require.NoError(t, cache.Save(ctx, nil))
	exists, err = cache.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserCacheCorrupted(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(ctx, session.KeyUserData, "{broken"))
	cache := session.NewUserCache(store)

	exists, err := cache.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	_, ok, err := cache.Load(ctx)
	assert.False(t, ok)
	assert.True(t, session.IsCorruptedCache(err))
}

func TestNamespaced(t *testing.T) {
	ctx := context.Background()
	shared := session.NewMemoryStore()
	a := session.Namespaced(shared, "a")
	b := session.Namespaced(shared, "b")

	require.NoError(t, a.Set(ctx, session.KeyToken, "token-a"))
	require.NoError(t, b.Set(ctx, session.KeyToken, "token-b"))

	v, ok, err := shared.Get(ctx, "a:token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "token-a", v)

	require.NoError(t, a.Delete(ctx, session.KeyToken))
	_, ok, _ = a.Get(ctx, session.KeyToken)
	assert.False(t, ok)
	v, ok, _ = b.Get(ctx, session.KeyToken)
	assert.True(t, ok)
	assert.Equal(t, "token-b", v)

	assert.Same(t, shared, session.Namespaced(shared, ""))
}
