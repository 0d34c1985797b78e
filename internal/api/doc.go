// Package api implements the HTTP REST API and WebSocket server for acsauto.
//
// This package provides:
//   - REST endpoints for macro editing, run triggers, dataset navigation and settings
//   - WebSocket hub broadcasting the operator panel state
//   - JWT authentication, with tokens issued in exchange for the API key
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//
// # Architecture
//
// Handlers are thin: every operator command goes through the session
// controller, the same path the hotkeys and MQTT commands take. Runs
// proceed on the runner's worker goroutine; POST /runs answers 202 with the
// initial record and 409 while another run is alive.
//
// # Security
//
// POST /api/v1/auth/token exchanges the configured API key for a short-lived
// HS256 token. Protected routes take it as a Bearer header or, for the
// websocket upgrade, as the token query parameter. With no JWT secret
// configured the API is open, which suits a single operator workstation.
package api
