package guard

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pharmacare/go-session"
)

var ErrNoSession = errors.New("no session bound to request")

// Resolver returns the Manager that owns the session of a request.
type Resolver func(c *fiber.Ctx) (*session.Manager, error)

type Config struct {
	// Filter skips the guard when it returns true.
	Filter   func(*fiber.Ctx) bool
	Resolver Resolver
	Paths    Paths
	// Before runs ahead of every evaluation, ie a reconciliation pass.
	Before func(c *fiber.Ctx, m *session.Manager) error
	// WaitTimeout lets a request block for a loading session before falling
	// back to WaitHandler. Zero renders the placeholder right away.
	WaitTimeout     time.Duration
	WaitHandler     fiber.Handler
	RedirectHandler func(c *fiber.Ctx, d Decision) error
	ErrorHandler    fiber.ErrorHandler
	// Notify receives the notice attached to a redirect.
	Notify func(c *fiber.Ctx, notice session.Notice)
	// ContextKey is the Locals key the resolved State is stored under.
	ContextKey string
}

// GetDefaultConfig fills in the optional handlers of config.
func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Resolver == nil {
		panic("GUARD: middleware configuration: Resolver is required.")
	}

	cfg.Paths = cfg.Paths.withDefaults()

	if cfg.WaitHandler == nil {
		cfg.WaitHandler = func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(fiber.StatusAccepted).SendString("Loading...")
		}
	}

	if cfg.RedirectHandler == nil {
		cfg.RedirectHandler = func(c *fiber.Ctx, d Decision) error {
			return c.Redirect(d.To, fiber.StatusFound)
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			return c.Redirect(cfg.Paths.Login, fiber.StatusFound)
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "session"
	}

	return cfg
}

// New returns a fiber handler enforcing evaluate.
func New(evaluate Evaluator, config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		m, err := cfg.Resolver(c)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}
		if m == nil {
			return cfg.ErrorHandler(c, ErrNoSession)
		}

		if cfg.Before != nil {
			if err := cfg.Before(c, m); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		ctx := c.UserContext()
		if cfg.WaitTimeout > 0 {
			wctx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout)
			_, _ = m.AwaitResolved(wctx)
			cancel()
		}

		decision := evaluate(ctx, m, requestOf(c), cfg.Paths)
		switch decision.Action {
		case Wait:
			return cfg.WaitHandler(c)
		case Redirect:
			if decision.Notice != nil && cfg.Notify != nil {
				cfg.Notify(c, *decision.Notice)
			}
			return cfg.RedirectHandler(c, decision)
		}

		c.Locals(cfg.ContextKey, m.State())
		return c.Next()
	}
}

// RequireAuth guards routes for any authenticated user.
func RequireAuth(config ...Config) fiber.Handler {
	return New(GenericEvaluator, config...)
}

// RequirePatient guards patient routes.
func RequirePatient(config ...Config) fiber.Handler {
	return New(PatientEvaluator, config...)
}

// RequirePharmacy guards pharmacy staff routes.
func RequirePharmacy(config ...Config) fiber.Handler {
	return New(PharmacyEvaluator, config...)
}

// StateFromLocals returns the State a guard stored for this request.
func StateFromLocals(c *fiber.Ctx, key string) (session.State, bool) {
	if key == "" {
		key = "session"
	}
	state, ok := c.Locals(key).(session.State)
	return state, ok
}

func requestOf(c *fiber.Ctx) Request {
	query := url.Values{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		query.Add(string(k), string(v))
	})
	return Request{Path: c.Path(), Query: query}
}
