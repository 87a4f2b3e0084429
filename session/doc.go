// Package session holds the storefront's authenticated identity and mediates
// every API call made through a shared api.Client.
//
// # Phases
//
//	Booting       -> initial; Boot consults the durable has-session marker
//	Anonymous     -> no token, no user
//	Authenticated -> token and user held together
//
// Only Boot, Login, Logout and automatic expiry handling change the phase.
//
// # Request mediation
//
// New installs a middleware on the client (exactly once per client). For
// each request it attaches the current access token as a bearer credential.
// When a request fails with 401 it marks that request as retried, calls
// /auth/refresh, re-attaches the new token and resends the request once;
// the resent request's result is returned as-is. A 401 from /auth/refresh or
// /auth/login is never retried and forces the Anonymous phase. A failed
// refresh also forces Anonymous and returns the original 401.
//
// The retry flag lives on the api.Request, not on the Manager, so each
// logical request is bounded to one refresh. Concurrent 401s are not
// coalesced: two requests failing together each trigger their own refresh.
//
// # Durable marker
//
// The marker (key MarkerKey, value "1") only records that a session existed.
// The access token itself is never persisted; restores rely on the refresh
// cookie held by the client's cookie jar.
package session
