package twitch

import (
	"encoding/json"
	"net/http"
	"time"
)

// AuthHealthResponse represents the JSON response for the auth health check endpoint
type AuthHealthResponse struct {
	State            State     `json:"state"`
	HasToken         bool      `json:"has_token"`
	LastRefreshTime  time.Time `json:"last_refresh_time"`
	ExpirationTime   time.Time `json:"expiration_time"`
	IsExpired        bool      `json:"is_expired"`
	HoursUntilExpiry float64   `json:"hours_until_expiry"`
}

// GetAuthHealth returns the current auth token health status
func (s *Session) GetAuthHealth() AuthHealthResponse {
	s.mu.RLock()
	tok := s.token
	refreshedAt := s.refreshedAt
	state := s.state
	s.mu.RUnlock()

	health := AuthHealthResponse{
		State:           state,
		HasToken:        tok != nil && tok.AccessToken != "",
		LastRefreshTime: refreshedAt,
	}
	if tok == nil {
		health.IsExpired = true
		return health
	}
	health.ExpirationTime = tok.Expiry
	if !tok.Expiry.IsZero() {
		health.HoursUntilExpiry = time.Until(tok.Expiry).Hours()
		health.IsExpired = time.Now().After(tok.Expiry)
	}
	return health
}

// AuthHealthHandler returns an HTTP handler for the auth health check endpoint
func (s *Session) AuthHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		health := s.GetAuthHealth()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(health); err != nil {
			s.logger.Error("failed to encode auth health response", "error", err.Error())
		}
	}
}
