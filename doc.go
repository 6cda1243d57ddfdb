// Package session keeps the portal session of one browser consistent: the
// bearer token, the current user and whether the session is still loading.
//
// Session lifecycle:
//   - Manager.Start hydrates the token and the cached user from a Store and
//     validates the token against the backend. The cached user is trusted
//     until the backend answers; a rejected token clears both keys.
//   - Every token change bumps a generation counter. Validation results that
//     belong to an older generation are discarded.
//   - Login, Logout and Invalidate write storage before memory so a reader of
//     the Store never sees a user without its token.
//
// Users:
//   - A user is either a Patient or a PharmacyStaff. Classify decides from the
//     payload shape when no explicit userType marker is present.
//
// Repairs:
//   - Reconciler fixes drift between a Manager and its Store caused by other
//     writers, ie a second tab sharing the same backend.
//
// Activity sinks:
//   - ActivitySink receives login, logout, validation and repair events. Sinks
//     run best-effort (errors are logged).
package session
