// Package auth issues and validates the bearer tokens of the control API.
//
// A client exchanges the configured API key for a short-lived HS256 JWT
// (POST /api/v1/auth/token) and presents it as "Authorization: Bearer" or,
// for the websocket, as the token query parameter. Tokens are validated by
// signature and expiry only; there is no user store.
package auth
