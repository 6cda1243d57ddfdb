package session

import (
	"context"
	"sync"
)

// NoticeLevel is the severity of a user visible notice.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
	NoticeInfo    NoticeLevel = "info"
)

// User visible notice texts.
const (
	MessageSessionExpired     = "Your session has expired. Please log in again."
	MessageAuthFailed         = "User authentication failed. Please log in again."
	MessagePharmacyRequired   = "You need pharmacy staff access for this page"
	MessageSessionRestored    = "Restored pharmacy staff session"
	MessageBackendUnreachable = "Unable to reach the server. Please log in again."
	MessageLoginSuccess       = "Login successful! Welcome back!"
	MessageSessionCleared     = "Session data cleared. You can now log in again."
)

// Notice is a transient, non blocking message for the user.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(ctx context.Context, notice Notice)

// Notify satisfies the Notifier interface.
func (f NotifierFunc) Notify(ctx context.Context, notice Notice) {
	if f != nil {
		f(ctx, notice)
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notice) {}

// NoticeQueue buffers notices until a page drains them.
type NoticeQueue struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify appends notice to the queue, collapsing immediate repeats.
func (q *NoticeQueue) Notify(_ context.Context, notice Notice) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n := len(q.notices); n > 0 && q.notices[n-1] == notice {
		return
	}
	q.notices = append(q.notices, notice)
}

// Drain returns and removes all buffered notices.
func (q *NoticeQueue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.notices
	q.notices = nil
	return out
}

// Len returns the number of buffered notices.
func (q *NoticeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.notices)
}
