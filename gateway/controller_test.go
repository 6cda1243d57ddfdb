package gateway_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pharmacare/go-session"
	"github.com/pharmacare/go-session/client"
	"github.com/pharmacare/go-session/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	app      *fiber.App
	store    *session.MemoryStore
	registry *gateway.Registry
}

func newHarness(t *testing.T, validator session.Validator, backend http.HandlerFunc) *harness {
	t.Helper()
	return newHarnessWithBackoff(t, validator, backend, session.Backoff{})
}

func newHarnessWithBackoff(t *testing.T, validator session.Validator, backend http.HandlerFunc, backoff session.Backoff) *harness {
	t.Helper()
	if backend == nil {
		backend = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}
	}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore()
	registry := gateway.NewRegistry(gateway.RegistryConfig{
		Store:     store,
		Validator: validator,
		Client:    client.Config{BaseURL: srv.URL + "/api", Backoff: backoff},
	})

	controller := gateway.NewController(registry)
	controller.WaitTimeout = 100 * time.Millisecond

	app, err := gateway.NewApp(controller)
	require.NoError(t, err)
	return &harness{app: app, store: store, registry: registry}
}

func (h *harness) do(t *testing.T, method, target string, form url.Values, cookie string) (*http.Response, string) {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return h.send(t, req, cookie)
}

func (h *harness) doJSON(t *testing.T, method, target, payload, cookie string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return h.send(t, req, cookie)
}

func (h *harness) send(t *testing.T, req *http.Request, cookie string) (*http.Response, string) {
	t.Helper()
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "pc_sid", Value: cookie})
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func sessionID(t *testing.T, resp *http.Response) string {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "pc_sid" {
			return c.Value
		}
	}
	t.Fatal("no session cookie issued")
	return ""
}

func rejectAll(context.Context, string) (*session.ValidationResult, error) {
	return nil, session.ErrSessionInvalid
}

func staffBackend(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/pharmacy/login":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"tok-staff","pharmacyId":7,"pharmacyStaff":{"id":3,"role":"CASHIER","firstName":"Ana","lastName":"Diaz","email":"ana@rx.example"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func login(t *testing.T, h *harness) string {
	t.Helper()
	resp, _ := h.do(t, http.MethodPost, "/pharmacy/login", url.Values{
		"email":    {" Ana@RX.example "},
		"password": {"secret"},
	}, "")
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/pharmacy/dashboard?justLoggedIn=true", resp.Header.Get("Location"))
	return sessionID(t, resp)
}

func TestRootSendsAnonymousToLogin(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), nil)

	resp, _ := h.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.NotEmpty(t, sessionID(t, resp))
	assert.Equal(t, 1, h.registry.Len())
}

func TestPharmacyGuardWithoutSession(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), nil)

	resp, _ := h.do(t, http.MethodGet, "/pharmacy/inventory", nil, "")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/pharmacy/login", resp.Header.Get("Location"))

	_, body := h.do(t, http.MethodGet, "/pharmacy/login", nil, sessionID(t, resp))
	assert.Contains(t, body, session.MessageSessionExpired)
	assert.NotContains(t, body, `id="corrupted"`)
}

func TestPatientGuardWithoutSession(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), nil)

	resp, _ := h.do(t, http.MethodGet, "/dashboard/prescriptions", nil, "")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestPharmacyDashboardBypass(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), nil)

	resp, _ := h.do(t, http.MethodGet, "/pharmacy/dashboard?justLoggedIn=true", nil, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/pharmacy/dashboard?justLoggedIn=false", nil, "")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
}

func TestPharmacyLoginFlow(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), staffBackend(t))
	id := login(t, h)

	resp, body := h.do(t, http.MethodGet, "/pharmacy/orders", nil, id)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, session.MessageLoginSuccess)
	assert.Contains(t, body, "Ana Diaz")
	assert.Contains(t, body, "Pharmacy staff")

	resp, _ = h.do(t, http.MethodGet, "/dashboard", nil, id)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/pharmacy/dashboard", resp.Header.Get("Location"))

	resp, _ = h.do(t, http.MethodGet, "/", nil, id)
	assert.Equal(t, "/pharmacy/dashboard", resp.Header.Get("Location"))

	resp, _ = h.do(t, http.MethodGet, "/pharmacy/login", nil, id)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/pharmacy/dashboard?justLoggedIn=true", resp.Header.Get("Location"))

	value, ok, err := h.store.Get(context.Background(), "sess:"+id+":"+session.KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-staff", value)
}

func TestPharmacyLoginRefused(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":401,"message":"Wrong password"}`))
	})

	resp, body := h.do(t, http.MethodPost, "/pharmacy/login", url.Values{
		"email":    {"ana@rx.example"},
		"password": {"nope"},
	}, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Wrong password")
	assert.Contains(t, body, `value="ana@rx.example"`)
}

func TestPharmacyLoginInvalidInput(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), nil)

	resp, body := h.do(t, http.MethodPost, "/pharmacy/login", url.Values{
		"email":    {""},
		"password": {"x"},
	}, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Please enter both email and password")
}

func TestLogout(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), staffBackend(t))
	id := login(t, h)

	resp, _ := h.do(t, http.MethodPost, "/logout", nil, id)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	_, body := h.do(t, http.MethodGet, "/api/session", nil, id)
	assert.Contains(t, body, `"status":"unauthenticated"`)
	assert.Zero(t, h.store.Len())
}

func TestSessionSnapshot(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), staffBackend(t))
	id := login(t, h)

	resp, body := h.do(t, http.MethodGet, "/api/session", nil, id)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"authenticated"`)
	assert.Contains(t, body, `"kind":"pharmacy"`)
	assert.Contains(t, body, `"loading":false`)
}

func TestRevalidatesPersistedSession(t *testing.T) {
	validator := session.ValidatorFunc(func(_ context.Context, token string) (*session.ValidationResult, error) {
		if token != "tok-kept" {
			return nil, session.ErrSessionInvalid
		}
		staff := &session.PharmacyStaff{ID: 3, PharmacyID: 7, Role: "CASHIER"}
		return &session.ValidationResult{User: staff, Kind: session.KindPharmacy}, nil
	})
	h := newHarness(t, validator, nil)

	id := uuid.NewString()
	require.NoError(t, h.store.Set(context.Background(), "sess:"+id+":"+session.KeyToken, "tok-kept"))

	resp, _ := h.do(t, http.MethodGet, "/pharmacy/orders", nil, id)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCorruptedSessionBanner(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	validator := session.ValidatorFunc(func(context.Context, string) (*session.ValidationResult, error) {
		<-release
		return nil, session.ErrSessionInvalid
	})
	h := newHarness(t, validator, nil)

	id := uuid.NewString()
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, "sess:"+id+":"+session.KeyToken, "tok"))
	require.NoError(t, h.store.Set(ctx, "sess:"+id+":"+session.KeyUserData, "{not json"))

	resp, body := h.do(t, http.MethodGet, "/pharmacy/login", nil, id)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="corrupted"`)

	resp, _ = h.do(t, http.MethodPost, "/session/clear", nil, id)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/pharmacy/login", resp.Header.Get("Location"))
	assert.Zero(t, h.store.Len())

	_, body = h.do(t, http.MethodGet, "/pharmacy/login", nil, id)
	assert.Contains(t, body, session.MessageSessionCleared)
	assert.NotContains(t, body, `id="corrupted"`)
}

func TestGuardRendersLoading(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	validator := session.ValidatorFunc(func(context.Context, string) (*session.ValidationResult, error) {
		<-release
		return nil, session.ErrSessionInvalid
	})
	h := newHarness(t, validator, nil)

	id := uuid.NewString()
	require.NoError(t, h.store.Set(context.Background(), "sess:"+id+":"+session.KeyToken, "tok"))

	resp, body := h.do(t, http.MethodGet, "/dashboard", nil, id)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(fiber.HeaderRetryAfter))
	assert.Contains(t, body, "Loading...")
}

func TestLoginThenDashboardWithoutBypass(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"abc","pharmacyStaff":{"id":1,"pharmacyId":9,"firstName":"A","lastName":"B","email":"a@b.com","role":"ADMIN","active":true}}`))
	})

	resp, _ := h.do(t, http.MethodPost, "/pharmacy/login", url.Values{
		"email":    {"a@b.com"},
		"password": {"pw"},
	}, "")
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	id := sessionID(t, resp)

	token, ok, err := h.store.Get(context.Background(), "sess:"+id+":"+session.KeyToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", token)

	raw, ok, err := h.store.Get(context.Background(), "sess:"+id+":"+session.KeyUserData)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"userType":"pharmacy"`)

	resp, _ = h.do(t, http.MethodGet, "/pharmacy/dashboard", nil, id)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRejectedTokenRedirects(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), nil)

	id := uuid.NewString()
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, "sess:"+id+":"+session.KeyToken, "tok-old"))
	require.NoError(t, h.store.Set(ctx, "sess:"+id+":"+session.KeyUserData, `{"id":3,"pharmacyId":7,"userType":"pharmacy"}`))

	resp, _ := h.do(t, http.MethodGet, "/pharmacy/orders", nil, id)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/pharmacy/login", resp.Header.Get("Location"))
	assert.Zero(t, h.store.Len())

	_, body := h.do(t, http.MethodGet, "/pharmacy/login", nil, id)
	assert.Contains(t, body, session.MessageSessionExpired)
}

func pharmaciesBackend(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/pharmacy/login":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"tok-staff","pharmacyId":7,"pharmacyStaff":{"id":3,"role":"CASHIER","firstName":"Ana","lastName":"Diaz","email":"ana@rx.example"}}`))
		case "/api/pharmacies/mine":
			if r.Header.Get("Authorization") != "Bearer tok-staff" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestPharmaciesListsStaffPharmacies(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), pharmaciesBackend(http.StatusOK,
		`[{"id":7,"name":"Central Rx","registrationNumber":"RX-7","address":"1 Main St","active":true}]`))
	id := login(t, h)

	resp, body := h.do(t, http.MethodGet, "/api/pharmacies", nil, id)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"name":"Central Rx"`)
	assert.Contains(t, body, `"registrationNumber":"RX-7"`)
}

func TestPharmaciesRequiresStaff(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), pharmaciesBackend(http.StatusOK, `[]`))

	resp, _ := h.do(t, http.MethodGet, "/api/pharmacies", nil, "")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/pharmacy/login", resp.Header.Get("Location"))
}

func TestPharmaciesUnauthorizedClearsSession(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), pharmaciesBackend(http.StatusUnauthorized, `{"status":401,"message":"expired"}`))
	id := login(t, h)

	resp, body := h.do(t, http.MethodGet, "/api/pharmacies", nil, id)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, `"redirectTo":"/pharmacy/login"`)
	assert.Zero(t, h.store.Len())

	_, body = h.do(t, http.MethodGet, "/api/session", nil, id)
	assert.Contains(t, body, `"status":"unauthenticated"`)
}

func TestPharmaciesBackendExhausted(t *testing.T) {
	backoff := session.Backoff{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
	h := newHarnessWithBackoff(t, session.ValidatorFunc(rejectAll), pharmaciesBackend(http.StatusServiceUnavailable, `{"message":"down"}`), backoff)
	id := login(t, h)

	resp, body := h.do(t, http.MethodGet, "/api/pharmacies", nil, id)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, `"attempts":3`)
	assert.Contains(t, body, `"exhausted":true`)
}

func TestProfileSeededFromCurrentUser(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), staffBackend(t))
	id := login(t, h)

	resp, body := h.do(t, http.MethodGet, "/api/profile", nil, id)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"firstName":"Ana"`)
	assert.Contains(t, body, `"email":"ana@rx.example"`)

	_, ok, err := h.store.Get(context.Background(), "sess:"+id+":"+session.KeyUserProfile)
	require.NoError(t, err)
	assert.False(t, ok, "reading a profile does not persist it")
}

func TestProfileUpdate(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), staffBackend(t))
	id := login(t, h)

	resp, body := h.doJSON(t, http.MethodPut, "/api/profile",
		`{"firstName":"Ana","lastName":"Diaz","email":"ana@rx.example","phone":"201 555 0123","allergies":["penicillin"]}`, id)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"phone":"+12015550123"`)

	raw, ok, err := h.store.Get(context.Background(), "sess:"+id+":"+session.KeyUserProfile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"allergies":["penicillin"]`)

	_, body = h.do(t, http.MethodGet, "/api/profile", nil, id)
	assert.Contains(t, body, `"phone":"+12015550123"`)
}

func TestProfileUpdateRejectsInvalidProfile(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), staffBackend(t))
	id := login(t, h)

	resp, _ := h.doJSON(t, http.MethodPut, "/api/profile", `{"firstName":"Ana","email":"not-an-email"}`, id)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	_, ok, err := h.store.Get(context.Background(), "sess:"+id+":"+session.KeyUserProfile)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProfileRequiresSession(t *testing.T) {
	h := newHarness(t, session.ValidatorFunc(rejectAll), nil)

	resp, _ := h.do(t, http.MethodGet, "/api/profile", nil, "")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}
