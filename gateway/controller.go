package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pharmacare/go-session"
	"github.com/pharmacare/go-session/client"
	"github.com/pharmacare/go-session/guard"
)

const entryLocalsKey = "browser_session"

type ControllerRoutes struct {
	Root           string
	Login          string
	Signup         string
	PharmacyLogin  string
	PharmacySignup string
	PharmacyHome   string
	PatientHome    string
	Pharmacy       string
	Logout         string
	ClearSession   string
	SessionAPI     string
	Pharmacies     string
	Profile        string
}

type ControllerViews struct {
	App           string
	Loading       string
	Login         string
	PharmacyLogin string
	Signup        string
}

// Controller serves the portal routes and applies the guards server side.
type Controller struct {
	Logger       session.Logger
	Registry     *Registry
	Routes       *ControllerRoutes
	Views        *ControllerViews
	CookieName   string
	CookieSecure bool
	// WaitTimeout is how long a guarded request may block on a loading
	// session before the loading view is rendered.
	WaitTimeout time.Duration
}

// NewController returns a Controller with the default route surface.
func NewController(registry *Registry) *Controller {
	return &Controller{
		Logger:   session.NopLogger{},
		Registry: registry,
		Routes: &ControllerRoutes{
			Root:           "/",
			Login:          "/login",
			Signup:         "/signup",
			PharmacyLogin:  "/pharmacy/login",
			PharmacySignup: "/pharmacy/signup",
			PharmacyHome:   "/pharmacy/dashboard",
			PatientHome:    "/dashboard",
			Pharmacy:       "/pharmacy",
			Logout:         "/logout",
			ClearSession:   "/session/clear",
			SessionAPI:     "/api/session",
			Pharmacies:     "/api/pharmacies",
			Profile:        "/api/profile",
		},
		Views: &ControllerViews{
			App:           "app",
			Loading:       "loading",
			Login:         "login",
			PharmacyLogin: "pharmacy_login",
			Signup:        "signup",
		},
		CookieName:  "pc_sid",
		WaitTimeout: 3 * time.Second,
	}
}

// Register mounts every portal route on app.
func (a *Controller) Register(app fiber.Router) {
	app.Use(a.Bind)

	guardCfg := a.guardConfig()

	app.Get(a.Routes.Root, a.Root)
	app.Get(a.Routes.Login, a.LoginShow)
	app.Get(a.Routes.Signup, a.SignupShow)
	app.Get(a.Routes.PharmacySignup, a.SignupShow)
	app.Get(a.Routes.PharmacyLogin, a.PharmacyLoginShow)
	app.Post(a.Routes.PharmacyLogin, a.PharmacyLoginPost)
	app.Post(a.Routes.ClearSession, a.ClearSession)
	app.Get(a.Routes.Logout, a.Logout)
	app.Post(a.Routes.Logout, a.Logout)
	app.Get(a.Routes.SessionAPI, a.SessionSnapshot)
	app.Get(a.Routes.Pharmacies, guard.RequirePharmacy(guardCfg), a.Pharmacies)
	app.Get(a.Routes.Profile, guard.RequireAuth(guardCfg), a.ProfileShow)
	app.Put(a.Routes.Profile, guard.RequireAuth(guardCfg), a.ProfileUpdate)

	app.Get(a.Routes.PatientHome, guard.RequirePatient(guardCfg), a.AppShell)
	app.Get(a.Routes.PatientHome+"/*", guard.RequirePatient(guardCfg), a.AppShell)
	app.Get(a.Routes.Pharmacy, guard.RequirePharmacy(guardCfg), a.AppShell)
	app.Get(a.Routes.Pharmacy+"/*", guard.RequirePharmacy(guardCfg), a.AppShell)
}

func (a *Controller) paths() guard.Paths {
	p := guard.DefaultPaths()
	p.Login = a.Routes.Login
	p.PharmacyLogin = a.Routes.PharmacyLogin
	p.PatientHome = a.Routes.PatientHome
	p.PharmacyHome = a.Routes.PharmacyHome
	return p
}

func (a *Controller) guardConfig() guard.Config {
	return guard.Config{
		Resolver: a.resolve,
		Paths:    a.paths(),
		Before: func(c *fiber.Ctx, m *session.Manager) error {
			_, err := entryOf(c).Reconciler.Reconcile(c.UserContext())
			return err
		},
		WaitTimeout: a.WaitTimeout,
		WaitHandler: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(fiber.StatusAccepted).Render(a.Views.Loading, fiber.Map{})
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			a.Logger.Error("guard: %v", err)
			return c.Redirect(a.Routes.Login, fiber.StatusFound)
		},
		Notify: func(c *fiber.Ctx, notice session.Notice) {
			entryOf(c).Notices.Notify(c.UserContext(), notice)
		},
	}
}

// Bind resolves the browser session of the request, issuing a new id cookie
// when the browser has none, and binds its Manager to the request context.
func (a *Controller) Bind(c *fiber.Ctx) error {
	id := c.Cookies(a.CookieName)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
		c.Cookie(&fiber.Cookie{
			Name:     a.CookieName,
			Value:    id,
			Path:     "/",
			HTTPOnly: true,
			Secure:   a.CookieSecure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}

	e := a.Registry.Get(c.UserContext(), id)
	c.Locals(entryLocalsKey, e)

	ctx := session.WithManager(c.UserContext(), e.Manager)
	ctx = session.WithPagePath(ctx, c.Path())
	c.SetUserContext(ctx)
	return c.Next()
}

func entryOf(c *fiber.Ctx) *Entry {
	e, _ := c.Locals(entryLocalsKey).(*Entry)
	return e
}

func (a *Controller) resolve(c *fiber.Ctx) (*session.Manager, error) {
	e := entryOf(c)
	if e == nil {
		return nil, guard.ErrNoSession
	}
	return e.Manager, nil
}

func (a *Controller) awaitState(c *fiber.Ctx, m *session.Manager) session.State {
	if a.WaitTimeout <= 0 {
		return m.State()
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), a.WaitTimeout)
	defer cancel()
	state, _ := m.AwaitResolved(ctx)
	return state
}

// Root sends the user to the home of their area.
func (a *Controller) Root(c *fiber.Ctx) error {
	state := a.awaitState(c, entryOf(c).Manager)
	switch {
	case state.Loading():
		return c.Status(fiber.StatusAccepted).Render(a.Views.Loading, fiber.Map{})
	case state.Status() != session.StatusAuthenticated:
		return c.Redirect(a.Routes.Login, fiber.StatusFound)
	case state.IsPharmacyStaff():
		return c.Redirect(a.Routes.PharmacyHome, fiber.StatusFound)
	}
	return c.Redirect(a.Routes.PatientHome, fiber.StatusFound)
}

func (a *Controller) LoginShow(c *fiber.Ctx) error {
	return c.Render(a.Views.Login, fiber.Map{
		"routes":  a.Routes,
		"notices": entryOf(c).Notices.Drain(),
	})
}

func (a *Controller) SignupShow(c *fiber.Ctx) error {
	area := "patient"
	if strings.HasPrefix(c.Path(), a.Routes.Pharmacy) {
		area = "pharmacy"
	}
	return c.Render(a.Views.Signup, fiber.Map{
		"routes": a.Routes,
		"area":   area,
	})
}

// PharmacyLoginShow renders the staff login page. Staff that already hold a
// session go straight to the dashboard.
func (a *Controller) PharmacyLoginShow(c *fiber.Ctx) error {
	e := entryOf(c)
	state := a.awaitState(c, e.Manager)
	if state.HasToken() && state.IsPharmacyStaff() {
		return c.Redirect(a.Routes.PharmacyHome+"?justLoggedIn=true", fiber.StatusFound)
	}

	return c.Render(a.Views.PharmacyLogin, fiber.Map{
		"routes":    a.Routes,
		"notices":   e.Notices.Drain(),
		"corrupted": a.corrupted(c.UserContext(), e.Manager),
		"record":    client.Credentials{},
	})
}

// PharmacyLoginPost logs staff in and sends them to the dashboard.
func (a *Controller) PharmacyLoginPost(c *fiber.Ctx) error {
	e := entryOf(c)
	payload := new(client.Credentials)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("pharmacy login parse payload: %v", err)
		return c.Status(fiber.StatusBadRequest).Render(a.Views.PharmacyLogin, fiber.Map{
			"routes":        a.Routes,
			"error_message": "Error parsing body",
			"record":        payload,
		})
	}

	res, err := e.Client.PharmacyLogin(c.UserContext(), *payload)
	if err != nil {
		a.Logger.Info("pharmacy login failed: %v", err)
		status := fiber.StatusUnauthorized
		if client.IsInvalidCredentials(err) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).Render(a.Views.PharmacyLogin, fiber.Map{
			"routes":        a.Routes,
			"error_message": session.ErrorMessage(err),
			"record":        payload.Normalize(),
			"corrupted":     a.corrupted(c.UserContext(), e.Manager),
		})
	}

	e.Notices.Notify(c.UserContext(), session.Notice{Level: session.NoticeSuccess, Message: session.MessageLoginSuccess})
	return c.Redirect(res.RedirectTo, fiber.StatusFound)
}

// ClearSession wipes every persisted session key of the browser.
func (a *Controller) ClearSession(c *fiber.Ctx) error {
	e := entryOf(c)
	e.Manager.Logout(c.UserContext())
	e.Notices.Notify(c.UserContext(), session.Notice{Level: session.NoticeSuccess, Message: session.MessageSessionCleared})
	return c.Redirect(a.Routes.PharmacyLogin, fiber.StatusFound)
}

func (a *Controller) Logout(c *fiber.Ctx) error {
	to := entryOf(c).Manager.Logout(c.UserContext())
	return c.Redirect(to, fiber.StatusFound)
}

// SessionSnapshot returns the session as seen by the gateway.
func (a *Controller) SessionSnapshot(c *fiber.Ctx) error {
	state := entryOf(c).Manager.State()
	return c.JSON(fiber.Map{
		"status":     state.Status(),
		"loading":    state.Loading(),
		"kind":       state.Kind(),
		"user":       state.User,
		"generation": state.Generation,
	})
}

// Pharmacies lists the pharmacies of the logged in staff member. A rejected
// token answers 401 with the login entry point to follow.
func (a *Controller) Pharmacies(c *fiber.Ctx) error {
	res := entryOf(c).Client.MyPharmacies(c.UserContext())
	if res.Err == nil {
		return c.JSON(res.Value)
	}

	a.Logger.Warn("pharmacies after %d attempts: %v", res.Attempts, res.Err)
	if client.IsUnauthorized(res.Err) {
		to, ok := client.LoginRedirect(res.Err)
		if !ok {
			to = a.Routes.PharmacyLogin
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":      session.ErrorMessage(res.Err),
			"redirectTo": to,
		})
	}
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error":     session.ErrorMessage(res.Err),
		"attempts":  res.Attempts,
		"exhausted": res.Exhausted,
	})
}

// ProfileShow returns the cached profile, seeded from the current user when
// none was saved yet.
func (a *Controller) ProfileShow(c *fiber.Ctx) error {
	state, _ := guard.StateFromLocals(c, "")
	profile, err := entryOf(c).Manager.Profiles().LoadOrSeed(c.UserContext(), state.User)
	if err != nil {
		a.Logger.Error("profile load: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": session.ErrorMessage(err)})
	}
	return c.JSON(profile)
}

// ProfileUpdate validates and stores the submitted profile.
func (a *Controller) ProfileUpdate(c *fiber.Ctx) error {
	payload := new(session.Profile)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("profile parse payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Error parsing body"})
	}

	if err := entryOf(c).Manager.Profiles().Save(c.UserContext(), payload); err != nil {
		if session.HasTextCode(err, session.TextCodeInvalidProfile) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": session.ErrorMessage(err)})
		}
		a.Logger.Error("profile save: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": session.ErrorMessage(err)})
	}
	return c.JSON(payload)
}

// AppShell renders the portal shell for a route a guard allowed.
func (a *Controller) AppShell(c *fiber.Ctx) error {
	state, _ := guard.StateFromLocals(c, "")
	area := "patient"
	if strings.HasPrefix(c.Path(), a.Routes.Pharmacy) {
		area = "pharmacy"
	}
	return c.Render(a.Views.App, fiber.Map{
		TemplateUserKey: state.User,
		"routes":        a.Routes,
		"notices":       entryOf(c).Notices.Drain(),
		"area":          area,
		"path":          c.Path(),
	})
}

// corrupted reports a half written session: a token without a usable cached
// user, or a cached user without a token.
func (a *Controller) corrupted(ctx context.Context, m *session.Manager) bool {
	_, hasToken, err := m.Tokens().Get(ctx)
	if err != nil {
		return true
	}
	_, hasUser, err := m.Users().Load(ctx)
	if err != nil {
		return true
	}
	return hasToken != hasUser
}
