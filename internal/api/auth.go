package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nerrad567/acs-auto/internal/auth"
)

// tokenRequest is the body of POST /auth/token.
type tokenRequest struct {
	APIKey string `json:"api_key"`
	Client string `json:"client,omitempty"`
}

// handleToken exchanges the configured API key for a short-lived JWT.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := auth.CheckAPIKey(req.APIKey, s.secCfg.APIKey); err != nil {
		s.logger.Warn("token request rejected", "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid API key")
		return
	}

	subject := req.Client
	if subject == "" {
		subject = "api"
	}
	ttl := time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	token, err := auth.IssueToken(subject, s.station.ID, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("issuing token failed", "error", err)
		writeInternalError(w, "could not issue token")
		return
	}

	s.logger.Info("token issued", "subject", subject)
	writeJSON(w, http.StatusOK, token)
}

// claimsFrom returns the token claims of an authenticated request, or nil
// when auth is disabled.
func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(ctxKeyClaims).(*auth.Claims) //nolint:errcheck // nil when auth is disabled
	return claims
}
