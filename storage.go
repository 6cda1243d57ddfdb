package session

import (
	"context"
	"sync"
)

// Persisted layout keys.
const (
	KeyToken       = "token"
	KeyUserData    = "userData"
	KeyUserProfile = "userProfile"
)

// MemoryStore is a process local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]string{}}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

type namespacedStore struct {
	prefix string
	next   Store
}

// Namespaced scopes every key of next under prefix, so one backend can hold
// the storage of many browser sessions.
func Namespaced(next Store, prefix string) Store {
	if prefix == "" {
		return next
	}
	return &namespacedStore{prefix: prefix + ":", next: next}
}

func (n *namespacedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return n.next.Get(ctx, n.prefix+key)
}

func (n *namespacedStore) Set(ctx context.Context, key, value string) error {
	return n.next.Set(ctx, n.prefix+key, value)
}

func (n *namespacedStore) Delete(ctx context.Context, key string) error {
	return n.next.Delete(ctx, n.prefix+key)
}

// TokenStore persists the bearer token.
type TokenStore struct {
	store Store
}

// NewTokenStore wraps store.
func NewTokenStore(store Store) *TokenStore {
	return &TokenStore{store: store}
}

// Get returns the persisted token. An empty value counts as absent.
func (t *TokenStore) Get(ctx context.Context) (string, bool, error) {
	v, ok, err := t.store.Get(ctx, KeyToken)
	if err != nil {
		return "", false, storageError("get", KeyToken, err)
	}
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (t *TokenStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return t.Clear(ctx)
	}
	if err := t.store.Set(ctx, KeyToken, token); err != nil {
		return storageError("set", KeyToken, err)
	}
	return nil
}

func (t *TokenStore) Clear(ctx context.Context) error {
	if err := t.store.Delete(ctx, KeyToken); err != nil {
		return storageError("delete", KeyToken, err)
	}
	return nil
}

// UserCache persists the last resolved user.
type UserCache struct {
	store Store
}

// NewUserCache wraps store.
func NewUserCache(store Store) *UserCache {
	return &UserCache{store: store}
}

// Exists reports whether any cache entry is present, parseable or not.
func (u *UserCache) Exists(ctx context.Context) (bool, error) {
	v, ok, err := u.store.Get(ctx, KeyUserData)
	if err != nil {
		return false, storageError("get", KeyUserData, err)
	}
	return ok && v != "", nil
}

// Load decodes the cached user. Undecodable data yields ErrCorruptedCache.
func (u *UserCache) Load(ctx context.Context) (CurrentUser, bool, error) {
	shape, ok, err := u.LoadShape(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	user, err := UserFromShape(shape, "")
	if err != nil {
		return nil, false, withDetails(ErrCorruptedCache, err, map[string]any{"key": KeyUserData})
	}
	return user, true, nil
}

// LoadShape returns the cached user as a raw object for classification.
func (u *UserCache) LoadShape(ctx context.Context) (map[string]any, bool, error) {
	v, ok, err := u.store.Get(ctx, KeyUserData)
	if err != nil {
		return nil, false, storageError("get", KeyUserData, err)
	}
	if !ok || v == "" {
		return nil, false, nil
	}
	shape, err := decodeShape([]byte(v))
	if err != nil {
		return nil, false, withDetails(ErrCorruptedCache, err, map[string]any{"key": KeyUserData})
	}
	return shape, true, nil
}

// Save writes user; a nil user clears the cache.
func (u *UserCache) Save(ctx context.Context, user CurrentUser) error {
	if isNilUser(user) {
		return u.Clear(ctx)
	}
	raw, err := EncodeUser(user)
	if err != nil {
		return withDetails(ErrUnparseableResponse, err, nil)
	}
	if err := u.store.Set(ctx, KeyUserData, string(raw)); err != nil {
		return storageError("set", KeyUserData, err)
	}
	return nil
}

func (u *UserCache) Clear(ctx context.Context) error {
	if err := u.store.Delete(ctx, KeyUserData); err != nil {
		return storageError("delete", KeyUserData, err)
	}
	return nil
}
