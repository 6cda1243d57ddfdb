package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultValidateTimeout = 15 * time.Second
	defaultLoginPath       = "/login"
)

// Phase is the validation lifecycle of a Manager.
type Phase int

const (
	PhaseUnchecked Phase = iota
	PhaseChecking
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseUnchecked:
		return "unchecked"
	case PhaseChecking:
		return "checking"
	case PhaseResolved:
		return "resolved"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Status is the coarse session status exposed to guards and pages.
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// State is an immutable snapshot of a Manager.
type State struct {
	Phase      Phase
	Token      string
	User       CurrentUser
	Generation uint64
}

// Status derives the coarse status from the snapshot.
func (s State) Status() Status {
	switch s.Phase {
	case PhaseUnchecked:
		return StatusUninitialized
	case PhaseChecking:
		return StatusLoading
	}
	if !isNilUser(s.User) {
		return StatusAuthenticated
	}
	return StatusUnauthenticated
}

// Loading is true until the first validation attempt has resolved.
func (s State) Loading() bool { return s.Phase != PhaseResolved }

// HasToken reports whether a token is held in memory.
func (s State) HasToken() bool { return s.Token != "" }

// Kind returns the kind of the current user, or "".
func (s State) Kind() Kind { return KindOf(s.User) }

// IsPharmacyStaff reports whether the current user is pharmacy staff.
func (s State) IsPharmacyStaff() bool { return IsPharmacyStaff(s.User) }

// Manager owns the in memory session: the token, the current user and the
// loading flag. Every token change bumps a generation counter; validation
// results computed for an older generation never overwrite state.
type Manager struct {
	mu         sync.Mutex
	phase      Phase
	token      string
	user       CurrentUser
	generation uint64
	// generation whose validation currently holds the checking phase
	checking uint64

	tokens    *TokenStore
	users     *UserCache
	profiles  *ProfileCache
	validator Validator

	logger          Logger
	notifier        Notifier
	navigator       Navigator
	activitySink    ActivitySink
	now             func() time.Time
	validateTimeout time.Duration
	expiryLeeway    time.Duration
	loginPath       string

	subMu       sync.Mutex
	subscribers map[int]func(State)
	nextSub     int
}

// NewManager returns a Manager persisting to store and validating with validator.
func NewManager(store Store, validator Validator) *Manager {
	return &Manager{
		tokens:          NewTokenStore(store),
		users:           NewUserCache(store),
		profiles:        NewProfileCache(store),
		validator:       validator,
		logger:          defLogger{},
		notifier:        noopNotifier{},
		navigator:       noopNavigator{},
		activitySink:    noopActivitySink{},
		now:             time.Now,
		validateTimeout: defaultValidateTimeout,
		loginPath:       defaultLoginPath,
		subscribers:     map[int]func(State){},
	}
}

func (m *Manager) WithLogger(logger Logger) *Manager {
	if logger == nil {
		logger = NopLogger{}
	}
	m.logger = logger
	return m
}

// WithNotifier sets where user visible notices are sent.
func (m *Manager) WithNotifier(notifier Notifier) *Manager {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	m.notifier = notifier
	return m
}

func (m *Manager) WithNavigator(navigator Navigator) *Manager {
	if navigator == nil {
		navigator = noopNavigator{}
	}
	m.navigator = navigator
	return m
}

// WithActivitySink configures an ActivitySink for session events.
func (m *Manager) WithActivitySink(sink ActivitySink) *Manager {
	m.activitySink = normalizeActivitySink(sink)
	return m
}

// WithClock overrides the time source used for the expiry pre-check.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// WithValidateTimeout bounds a single validation round trip.
func (m *Manager) WithValidateTimeout(d time.Duration) *Manager {
	if d > 0 {
		m.validateTimeout = d
	}
	return m
}

// WithExpiryLeeway tolerates clock skew when checking the exp claim locally.
func (m *Manager) WithExpiryLeeway(d time.Duration) *Manager {
	if d >= 0 {
		m.expiryLeeway = d
	}
	return m
}

// WithLoginPath sets where Logout navigates to.
func (m *Manager) WithLoginPath(path string) *Manager {
	if path != "" {
		m.loginPath = path
	}
	return m
}

func (m *Manager) Tokens() *TokenStore { return m.tokens }

func (m *Manager) Users() *UserCache { return m.users }

func (m *Manager) Profiles() *ProfileCache { return m.profiles }

// State returns a snapshot of the session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	return State{
		Phase:      m.phase,
		Token:      m.token,
		User:       m.user,
		Generation: m.generation,
	}
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes the subscription.
func (m *Manager) Subscribe(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subscribers, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) publish() {
	state := m.State()

	m.subMu.Lock()
	subs := make([]func(State), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// AwaitResolved blocks until loading has ended or ctx is done and returns
// the latest snapshot.
func (m *Manager) AwaitResolved(ctx context.Context) (State, error) {
	resolved := make(chan State, 1)
	unsubscribe := m.Subscribe(func(s State) {
		if s.Loading() {
			return
		}
		select {
		case resolved <- s:
		default:
		}
	})
	defer unsubscribe()

	if s := m.State(); !s.Loading() {
		return s, nil
	}

	select {
	case s := <-resolved:
		return s, nil
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

// Start hydrates the session from storage and begins validation. The cached
// user is trusted optimistically until the backend answers. The returned
// channel closes once loading has ended.
func (m *Manager) Start(ctx context.Context) <-chan struct{} {
	token, _, err := m.tokens.Get(ctx)
	if err != nil {
		m.logger.Warn("start: unable to read token: %v", err)
	}

	var cached CurrentUser
	if token != "" {
		user, ok, err := m.users.Load(ctx)
		switch {
		case err != nil:
			m.logger.Warn("start: ignoring cached user: %v", err)
		case ok:
			cached = user
		}
	}

	m.mu.Lock()
	if m.token != token {
		m.generation++
	}
	m.token = token
	m.user = cached
	m.mu.Unlock()

	return m.Revalidate(ctx)
}

// Revalidate validates the in memory token against the backend. Without a
// token loading ends immediately. The returned channel closes when the
// attempt has been applied or discarded.
func (m *Manager) Revalidate(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	m.mu.Lock()
	token := m.token
	gen := m.generation
	if token == "" {
		m.user = nil
		m.phase = PhaseResolved
		m.mu.Unlock()
		m.publish()
		close(done)
		return done
	}
	m.phase = PhaseChecking
	m.checking = gen
	m.mu.Unlock()
	m.publish()

	m.validate(context.WithoutCancel(ctx), token, gen, done)
	return done
}

// validate runs one check of token for gen and applies it on ctx, which
// must already be detached from the caller.
func (m *Manager) validate(ctx context.Context, token string, gen uint64, done chan struct{}) {
	go func() {
		defer close(done)
		result, err := m.runValidation(ctx, token)
		m.applyValidation(ctx, token, gen, result, err)
	}()
}

func (m *Manager) runValidation(ctx context.Context, token string) (result *ValidationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = withDetails(ErrUnparseableResponse, nil, map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	if TokenExpired(token, m.now(), m.expiryLeeway) {
		return nil, withDetails(ErrTokenExpired, nil, nil)
	}

	vctx, cancel := context.WithTimeout(ctx, m.validateTimeout)
	defer cancel()

	result, err = m.validator.Validate(vctx, token)
	if err != nil {
		return nil, err
	}
	if result == nil || isNilUser(result.User) {
		return nil, withDetails(ErrUnparseableResponse, nil, map[string]any{"reason": "empty validation result"})
	}
	return result, nil
}

func (m *Manager) applyValidation(ctx context.Context, token string, gen uint64, result *ValidationResult, verr error) {
	m.mu.Lock()

	if gen != m.generation {
		// A newer token that has no check of its own is validated next.
		recheck := false
		next := m.token
		current := m.generation
		if m.phase == PhaseChecking && m.checking == gen {
			if next != "" {
				recheck = true
				m.checking = current
			} else {
				m.phase = PhaseResolved
			}
		}
		m.mu.Unlock()

		m.logger.Debug("discarding validation result for generation %d, current is %d", gen, current)
		m.recordActivity(ctx, ActivityEvent{
			EventType:  ActivityEventStale,
			Generation: gen,
			Metadata:   map[string]any{"current_generation": current},
		})
		if recheck {
			m.validate(ctx, next, current, make(chan struct{}))
			return
		}
		m.publish()
		return
	}

	if verr == nil {
		m.user = result.User
		m.phase = PhaseResolved
		if err := m.users.Save(ctx, result.User); err != nil {
			m.logger.Warn("validate: unable to cache user: %v", err)
		}
		m.mu.Unlock()

		m.logger.Debug("session validated: kind=%s shape=%s", result.Kind, result.Shape)
		m.recordActivity(ctx, ActivityEvent{
			EventType:  ActivityEventValidated,
			UserID:     result.User.GetID(),
			Kind:       result.User.Kind(),
			Generation: gen,
			Metadata:   map[string]any{"shape": result.Shape},
		})
		m.publish()
		return
	}

	m.clearLocked(ctx)
	m.mu.Unlock()

	m.logger.Info("session invalidated: %v", verr)
	m.notifyFailure(ctx, verr)
	m.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventInvalidated,
		Generation: gen,
		Metadata:   map[string]any{"reason": ErrorMessage(verr)},
	})
	m.publish()
}

// clearLocked drops the session in memory and in storage. Callers hold m.mu.
func (m *Manager) clearLocked(ctx context.Context) {
	if err := m.tokens.Clear(ctx); err != nil {
		m.logger.Warn("clear: %v", err)
	}
	if err := m.users.Clear(ctx); err != nil {
		m.logger.Warn("clear: %v", err)
	}
	if m.token != "" {
		m.generation++
	}
	m.token = ""
	m.user = nil
	m.phase = PhaseResolved
}

func (m *Manager) notifyFailure(ctx context.Context, err error) {
	msg := MessageSessionExpired
	if IsBackendUnavailable(err) {
		msg = MessageBackendUnreachable
	}
	m.notifier.Notify(ctx, Notice{Level: NoticeError, Message: msg})
}

// SetToken persists token and then adopts it in memory. An empty token
// clears both. A changed token drops the in memory user and invalidates any
// validation in flight.
func (m *Manager) SetToken(ctx context.Context, token string) error {
	m.mu.Lock()
	if err := m.tokens.Set(ctx, token); err != nil {
		m.mu.Unlock()
		return err
	}
	changed := m.token != token
	if changed {
		m.token = token
		m.user = nil
		m.generation++
	}
	m.mu.Unlock()

	if changed {
		m.publish()
	}
	return nil
}

// SetCurrentUser replaces the in memory user. Storage is left untouched.
func (m *Manager) SetCurrentUser(user CurrentUser) {
	if isNilUser(user) {
		user = nil
	}
	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	m.publish()
}

// Login replaces any previous session with token and user, in storage first
// and then in memory.
func (m *Manager) Login(ctx context.Context, token string, user CurrentUser) error {
	if token == "" || isNilUser(user) {
		return withDetails(ErrInvalidLoginResponse, nil, map[string]any{
			"has_token": token != "",
			"has_user":  !isNilUser(user),
		})
	}

	m.mu.Lock()
	if err := m.users.Clear(ctx); err != nil {
		m.logger.Warn("login: unable to clear previous user: %v", err)
	}
	if err := m.tokens.Set(ctx, token); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.users.Save(ctx, user); err != nil {
		if cerr := m.tokens.Clear(ctx); cerr != nil {
			m.logger.Error("login: rollback token: %v", cerr)
		}
		m.mu.Unlock()
		return err
	}
	m.token = token
	m.user = user
	m.generation++
	m.phase = PhaseResolved
	gen := m.generation
	m.mu.Unlock()

	m.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventLogin,
		UserID:     user.GetID(),
		Kind:       user.Kind(),
		Generation: gen,
	})
	m.publish()
	return nil
}

// Logout clears the session, navigates to the login page and returns its path.
func (m *Manager) Logout(ctx context.Context) string {
	m.mu.Lock()
	var userID int64
	var kind Kind
	if !isNilUser(m.user) {
		userID = m.user.GetID()
		kind = m.user.Kind()
	}
	m.clearLocked(ctx)
	if err := m.profiles.Clear(ctx); err != nil {
		m.logger.Warn("logout: %v", err)
	}
	gen := m.generation
	m.mu.Unlock()

	m.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventLogout,
		UserID:     userID,
		Kind:       kind,
		Generation: gen,
	})
	m.publish()
	m.navigator.Navigate(m.loginPath)
	return m.loginPath
}

// Invalidate clears the session after the backend rejected the token outside
// of validation, ie a 401 on a data request.
func (m *Manager) Invalidate(ctx context.Context, reason error) {
	m.mu.Lock()
	m.clearLocked(ctx)
	gen := m.generation
	m.mu.Unlock()

	m.logger.Info("session invalidated: %v", reason)
	m.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventInvalidated,
		Generation: gen,
		Metadata:   map[string]any{"reason": ErrorMessage(reason)},
	})
	m.publish()
}

// BearerToken returns the in memory token, falling back to the persisted one.
func (m *Manager) BearerToken(ctx context.Context) string {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	if token != "" {
		return token
	}

	token, _, err := m.tokens.Get(ctx)
	if err != nil {
		m.logger.Warn("bearer: %v", err)
		return ""
	}
	return token
}

// RestorePharmacySession recovers a staff session that exists in storage but
// not in memory. The persisted token is adopted when memory has none, and the
// cached user is adopted only when it carries pharmacy indicators. It reports
// whether a user was restored.
func (m *Manager) RestorePharmacySession(ctx context.Context) bool {
	m.mu.Lock()

	if m.token == "" {
		token, ok, err := m.tokens.Get(ctx)
		if err != nil {
			m.logger.Warn("restore: %v", err)
		}
		if !ok {
			m.mu.Unlock()
			return false
		}
		m.token = token
		m.generation++
	}

	if !isNilUser(m.user) {
		m.mu.Unlock()
		m.publish()
		return false
	}

	shape, ok, err := m.users.LoadShape(ctx)
	if err != nil || !ok || !IsPharmacyShape(shape) {
		if err != nil {
			m.logger.Warn("restore: %v", err)
		}
		m.mu.Unlock()
		m.publish()
		return false
	}

	user, err := UserFromShape(shape, KindPharmacy)
	if err != nil {
		m.logger.Warn("restore: %v", err)
		m.mu.Unlock()
		m.publish()
		return false
	}
	m.user = user
	gen := m.generation
	m.mu.Unlock()

	m.notifier.Notify(ctx, Notice{Level: NoticeSuccess, Message: MessageSessionRestored})
	m.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventRestored,
		UserID:     user.GetID(),
		Kind:       user.Kind(),
		Generation: gen,
	})
	m.publish()
	return true
}

func (m *Manager) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now().UTC()
	}
	if err := m.activitySink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink error: %v", err)
	}
}
