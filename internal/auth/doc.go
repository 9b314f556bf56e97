// Package auth provides the authenticated HTTP client the engine uses for
// every REST call: it attaches the bearer credential and the locale header,
// and surfaces an expired session as a distinguishable error so the caller
// can redirect to re-authentication. The engine never attempts re-login
// itself.
package auth
