package session_test

import (
	"context"
	"errors"
	"sync"

	"github.com/pharmacare/go-session"
	"github.com/stretchr/testify/mock"
)

// MockValidator implements session.Validator
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, token string) (*session.ValidationResult, error) {
	args := m.Called(ctx, token)
	res, _ := args.Get(0).(*session.ValidationResult)
	return res, args.Error(1)
}

// MockNavigator records navigation targets
type MockNavigator struct {
	mock.Mock
}

func (m *MockNavigator) Navigate(path string) {
	m.Called(path)
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []session.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event session.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) types() []session.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// failingStore fails every operation on the listed keys
type failingStore struct {
	*session.MemoryStore
	failSet map[string]bool
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.failSet[key] {
		return errDiskFull
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func patientResult(id int64) *session.ValidationResult {
	return &session.ValidationResult{
		User:  &session.Patient{ID: id, Email: "pat@example.com", FirstName: "Pat", LastName: "Doe", Roles: []string{"USER"}, UserType: session.KindPatient},
		Kind:  session.KindPatient,
		Shape: session.ShapeLegacy,
	}
}

func staffResult(id int64) *session.ValidationResult {
	return &session.ValidationResult{
		User: &session.PharmacyStaff{
			ID:         id,
			PharmacyID: 7,
			Role:       "CASHIER",
			Active:     true,
			FirstName:  "Sam",
			LastName:   "Till",
			Email:      "sam@pharmacy.example",
			UserType:   session.KindPharmacy,
		},
		Kind:  session.KindPharmacy,
		Shape: session.ShapeEnvelope,
	}
}

// cancellableStore fails every operation once its context is done
type cancellableStore struct {
	*session.MemoryStore
}

func (c *cancellableStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return c.MemoryStore.Get(ctx, key)
}

func (c *cancellableStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryStore.Set(ctx, key, value)
}

func (c *cancellableStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryStore.Delete(ctx, key)
}

// countingValidator records how often each token was validated
type countingValidator struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(token string) (*session.ValidationResult, error)
}

func (c *countingValidator) Validate(_ context.Context, token string) (*session.ValidationResult, error) {
	c.mu.Lock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[token]++
	c.mu.Unlock()
	return c.fn(token)
}

func (c *countingValidator) counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.calls))
	for k, v := range c.calls {
		out[k] = v
	}
	return out
}
