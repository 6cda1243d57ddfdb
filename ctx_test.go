package session_test

import (
	"context"
	"testing"

	"github.com/pharmacare/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerContext(t *testing.T) {
	ctx := context.Background()

	_, ok := session.ManagerFromContext(ctx)
	assert.False(t, ok)
	_, ok = session.CurrentUserFromContext(ctx)
	assert.False(t, ok)

	m, _ := newTestManager(session.NewMemoryStore(), &MockValidator{})
	ctx = session.WithManager(ctx, m)

	got, ok := session.ManagerFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, m, got)

	_, ok = session.CurrentUserFromContext(ctx)
	assert.False(t, ok)

	m.SetCurrentUser(patientResult(3).User)
	user, ok := session.CurrentUserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), user.GetID())
}

func TestPagePath(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, session.PagePath(ctx))
	assert.Equal(t, "/pharmacy/inventory", session.PagePath(session.WithPagePath(ctx, "/pharmacy/inventory")))
}
