package guard

import (
	"context"
	"net/url"
	"strings"

	"github.com/pharmacare/go-session"
)

// Action is what a guard tells the router to do.
type Action int

const (
	Allow Action = iota
	// Wait renders a placeholder; the session has not resolved yet.
	Wait
	Redirect
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case Wait:
		return "wait"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Decision is the outcome of evaluating a guard.
type Decision struct {
	Action Action
	To     string
	Notice *session.Notice
}

func allow() Decision { return Decision{Action: Allow} }

func wait() Decision { return Decision{Action: Wait} }

func redirect(to string, message string) Decision {
	d := Decision{Action: Redirect, To: to}
	if message != "" {
		d.Notice = &session.Notice{Level: session.NoticeError, Message: message}
	}
	return d
}

// Paths are the entry points guards redirect to.
type Paths struct {
	Login         string
	PharmacyLogin string
	PatientHome   string
	PharmacyHome  string
	// BypassParams let a navigation to PharmacyHome skip the pharmacy guard
	// when any of them equals "true".
	BypassParams []string
}

// DefaultPaths returns the portal route surface.
func DefaultPaths() Paths {
	return Paths{
		Login:         "/login",
		PharmacyLogin: "/pharmacy/login",
		PatientHome:   "/dashboard",
		PharmacyHome:  "/pharmacy/dashboard",
		BypassParams:  []string{"justLoggedIn", "bypass"},
	}
}

func (p Paths) withDefaults() Paths {
	def := DefaultPaths()
	if p.Login == "" {
		p.Login = def.Login
	}
	if p.PharmacyLogin == "" {
		p.PharmacyLogin = def.PharmacyLogin
	}
	if p.PatientHome == "" {
		p.PatientHome = def.PatientHome
	}
	if p.PharmacyHome == "" {
		p.PharmacyHome = def.PharmacyHome
	}
	if p.BypassParams == nil {
		p.BypassParams = def.BypassParams
	}
	return p
}

// Request is the navigation being guarded.
type Request struct {
	Path  string
	Query url.Values
}

// Generic allows any authenticated user.
func Generic(state session.State, paths Paths) Decision {
	paths = paths.withDefaults()
	if state.Loading() {
		return wait()
	}
	if state.Status() != session.StatusAuthenticated {
		return redirect(paths.Login, "")
	}
	return allow()
}

// Patient allows patients and sends pharmacy staff to their own dashboard.
func Patient(state session.State, paths Paths) Decision {
	paths = paths.withDefaults()
	if d := Generic(state, paths); d.Action != Allow {
		return d
	}
	if state.IsPharmacyStaff() {
		return Decision{Action: Redirect, To: paths.PharmacyHome}
	}
	return allow()
}

// Pharmacy allows pharmacy staff. Bypassed requests are allowed without
// looking at the session.
func Pharmacy(state session.State, req Request, paths Paths) Decision {
	paths = paths.withDefaults()
	if Bypassed(req, paths) {
		return allow()
	}
	if state.Loading() {
		return wait()
	}
	if !state.HasToken() {
		return redirect(paths.PharmacyLogin, session.MessageSessionExpired)
	}
	if state.Status() != session.StatusAuthenticated {
		return redirect(paths.PharmacyLogin, session.MessageAuthFailed)
	}
	if !state.IsPharmacyStaff() {
		return redirect(paths.PharmacyLogin, session.MessagePharmacyRequired)
	}
	return allow()
}

// Bypassed reports whether the pharmacy guard must not evaluate req: login
// and signup pages, and the pharmacy dashboard right after a login.
func Bypassed(req Request, paths Paths) bool {
	paths = paths.withDefaults()
	if strings.Contains(req.Path, "/login") || strings.Contains(req.Path, "/signup") {
		return true
	}
	if req.Path != paths.PharmacyHome {
		return false
	}
	for _, param := range paths.BypassParams {
		if req.Query.Get(param) == "true" {
			return true
		}
	}
	return false
}

// Evaluator decides a navigation against a live Manager.
type Evaluator func(ctx context.Context, m *session.Manager, req Request, paths Paths) Decision

// GenericEvaluator evaluates Generic on the current snapshot.
func GenericEvaluator(_ context.Context, m *session.Manager, _ Request, paths Paths) Decision {
	return Generic(m.State(), paths)
}

// PatientEvaluator evaluates Patient on the current snapshot.
func PatientEvaluator(_ context.Context, m *session.Manager, _ Request, paths Paths) Decision {
	return Patient(m.State(), paths)
}

// PharmacyEvaluator evaluates Pharmacy, first trying to restore a staff
// session from storage when the resolved session has no token or no user.
func PharmacyEvaluator(ctx context.Context, m *session.Manager, req Request, paths Paths) Decision {
	if Bypassed(req, paths) {
		return allow()
	}
	state := m.State()
	if !state.Loading() && (!state.HasToken() || state.Status() != session.StatusAuthenticated) {
		m.RestorePharmacySession(ctx)
		state = m.State()
	}
	return Pharmacy(state, req, paths)
}
