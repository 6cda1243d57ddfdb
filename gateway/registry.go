package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/pharmacare/go-session"
	"github.com/pharmacare/go-session/client"
)

// Entry is the session state of one browser.
type Entry struct {
	ID         string
	Manager    *session.Manager
	Notices    *session.NoticeQueue
	Reconciler *session.Reconciler
	Client     *client.Client

	detach   func()
	lastSeen time.Time
}

// RegistryConfig configures the Managers a Registry creates.
type RegistryConfig struct {
	// Store holds the key/value layout of every browser, namespaced by id.
	Store           session.Store
	Validator       session.Validator
	Logger          session.Logger
	ActivitySink    session.ActivitySink
	Client          client.Config
	ValidateTimeout time.Duration
	LoginPath       string
	Now             func() time.Time
}

// Registry owns one Manager per browser session id.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	cfg     RegistryConfig
}

// NewRegistry returns an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Store == nil {
		cfg.Store = session.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = session.NopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Client.Logger == nil {
		cfg.Client.Logger = cfg.Logger
	}
	return &Registry{
		entries: map[string]*Entry{},
		cfg:     cfg,
	}
}

// Get returns the entry for id, creating and starting its Manager the first
// time id is seen.
func (r *Registry) Get(ctx context.Context, id string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.lastSeen = r.cfg.Now()
		return e
	}

	notices := &session.NoticeQueue{}
	m := session.NewManager(session.Namespaced(r.cfg.Store, "sess:"+id), r.cfg.Validator).
		WithLogger(r.cfg.Logger).
		WithNotifier(notices).
		WithActivitySink(r.cfg.ActivitySink)
	if r.cfg.ValidateTimeout > 0 {
		m.WithValidateTimeout(r.cfg.ValidateTimeout)
	}
	if r.cfg.LoginPath != "" {
		m.WithLoginPath(r.cfg.LoginPath)
	}

	e := &Entry{
		ID:         id,
		Manager:    m,
		Notices:    notices,
		Reconciler: session.NewReconciler(m),
		Client:     client.New(m, r.cfg.Client),
		lastSeen:   r.cfg.Now(),
	}
	e.detach = e.Reconciler.Attach(context.WithoutCancel(ctx))
	r.entries[id] = e

	r.cfg.Logger.Debug("new browser session %s", id)
	m.Start(ctx)
	return e
}

// Drop forgets id. Its persisted keys are left to the store.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok && e.detach != nil {
		e.detach()
	}
}

// Sweep drops entries not seen for longer than idle and returns how many
// were dropped.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.cfg.Now().Add(-idle)

	r.mu.Lock()
	var stale []*Entry
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range stale {
		if e.detach != nil {
			e.detach()
		}
	}
	return len(stale)
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
