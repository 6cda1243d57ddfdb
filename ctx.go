package session

import (
	"context"
)

var managerCtxKey = &contextKey{"manager"}
var pagePathCtxKey = &contextKey{"page_path"}

type contextKey struct {
	name string
}

// WithManager sets the Manager in the given context
func WithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerCtxKey, m)
}

// ManagerFromContext finds the Manager from the context.
func ManagerFromContext(ctx context.Context) (*Manager, bool) {
	m, ok := ctx.Value(managerCtxKey).(*Manager)
	return m, ok && m != nil
}

// WithPagePath records the page the user is on, which decides the login
// entry point after a rejected request.
func WithPagePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pagePathCtxKey, path)
}

// PagePath returns the page recorded by WithPagePath, or "".
func PagePath(ctx context.Context) string {
	path, _ := ctx.Value(pagePathCtxKey).(string)
	return path
}

// CurrentUserFromContext returns the user of the Manager bound to ctx.
func CurrentUserFromContext(ctx context.Context) (CurrentUser, bool) {
	m, ok := ManagerFromContext(ctx)
	if !ok {
		return nil, false
	}
	user := m.State().User
	return user, !isNilUser(user)
}
