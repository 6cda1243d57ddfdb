package session

import (
	"context"
	"sync/atomic"
)

// Repair is the action a reconciliation pass took.
type Repair int

const (
	RepairNone Repair = iota
	// RepairAdoptedToken copied the persisted token into memory.
	RepairAdoptedToken
	// RepairPersistedToken wrote the in memory token to storage.
	RepairPersistedToken
	// RepairDroppedUserCache removed a cached user left without any token.
	RepairDroppedUserCache
)

func (r Repair) String() string {
	switch r {
	case RepairNone:
		return "none"
	case RepairAdoptedToken:
		return "adopted_token"
	case RepairPersistedToken:
		return "persisted_token"
	case RepairDroppedUserCache:
		return "dropped_user_cache"
	}
	return "unknown"
}

// Reconciler repairs drift between a Manager and its persisted storage.
// Running it twice with unchanged inputs performs no further work.
type Reconciler struct {
	manager *Manager
	running atomic.Bool
}

// NewReconciler returns a Reconciler for m.
func NewReconciler(m *Manager) *Reconciler {
	return &Reconciler{manager: m}
}

// Reconcile runs one pass. Cases are mutually exclusive and checked in order.
func (r *Reconciler) Reconcile(ctx context.Context) (Repair, error) {
	if !r.running.CompareAndSwap(false, true) {
		return RepairNone, nil
	}
	defer r.running.Store(false)

	m := r.manager
	m.mu.Lock()

	persisted, hasPersisted, err := m.tokens.Get(ctx)
	if err != nil {
		m.mu.Unlock()
		return RepairNone, err
	}

	switch {
	case hasPersisted && m.token == "":
		m.token = persisted
		m.generation++
		gen := m.generation
		m.mu.Unlock()

		m.logger.Debug("reconcile: adopted persisted token")
		r.repaired(ctx, RepairAdoptedToken, gen)
		m.publish()
		return RepairAdoptedToken, nil

	case !hasPersisted && m.token != "":
		if err := m.tokens.Set(ctx, m.token); err != nil {
			m.mu.Unlock()
			return RepairNone, err
		}
		gen := m.generation
		m.mu.Unlock()

		m.logger.Debug("reconcile: persisted in memory token")
		r.repaired(ctx, RepairPersistedToken, gen)
		return RepairPersistedToken, nil

	case !hasPersisted && m.token == "":
		exists, err := m.users.Exists(ctx)
		if err != nil {
			m.mu.Unlock()
			return RepairNone, err
		}
		if !exists {
			m.mu.Unlock()
			return RepairNone, nil
		}
		if err := m.users.Clear(ctx); err != nil {
			m.mu.Unlock()
			return RepairNone, err
		}
		hadUser := !isNilUser(m.user)
		m.user = nil
		gen := m.generation
		m.mu.Unlock()

		m.logger.Info("reconcile: dropped cached user without token")
		r.repaired(ctx, RepairDroppedUserCache, gen)
		if hadUser {
			m.notifier.Notify(ctx, Notice{Level: NoticeError, Message: MessageSessionExpired})
			m.publish()
		}
		return RepairDroppedUserCache, nil
	}

	m.mu.Unlock()
	return RepairNone, nil
}

// Attach runs a pass after every state change of the manager until the
// returned function is called.
func (r *Reconciler) Attach(ctx context.Context) func() {
	return r.manager.Subscribe(func(State) {
		if _, err := r.Reconcile(ctx); err != nil {
			r.manager.logger.Warn("reconcile: %v", err)
		}
	})
}

func (r *Reconciler) repaired(ctx context.Context, repair Repair, gen uint64) {
	r.manager.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventRepaired,
		Generation: gen,
		Metadata:   map[string]any{"repair": repair.String()},
	})
}
