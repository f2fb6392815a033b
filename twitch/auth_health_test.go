package twitch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Soypete/twitch-event-bot/logging"
	"golang.org/x/oauth2"
)

func sessionWithToken(tok *oauth2.Token, refreshedAt time.Time, state State) *Session {
	return &Session{
		token:       tok,
		refreshedAt: refreshedAt,
		state:       state,
		logger:      logging.Discard(),
	}
}

func TestGetAuthHealth(t *testing.T) {
	tests := []struct {
		name          string
		token         *oauth2.Token
		wantHasToken  bool
		wantIsExpired bool
	}{
		{
			name: "valid token not expired",
			token: &oauth2.Token{
				AccessToken: "test-token",
				Expiry:      time.Now().Add(3 * time.Hour),
			},
			wantHasToken:  true,
			wantIsExpired: false,
		},
		{
			name: "token expired",
			token: &oauth2.Token{
				AccessToken: "test-token",
				Expiry:      time.Now().Add(-time.Minute),
			},
			wantHasToken:  true,
			wantIsExpired: true,
		},
		{
			name:          "no token",
			token:         nil,
			wantHasToken:  false,
			wantIsExpired: true,
		},
		{
			name: "empty token",
			token: &oauth2.Token{
				AccessToken: "",
			},
			wantHasToken:  false,
			wantIsExpired: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessionWithToken(tt.token, time.Now(), StateListening)

			health := s.GetAuthHealth()

			if health.HasToken != tt.wantHasToken {
				t.Errorf("HasToken = %v, want %v", health.HasToken, tt.wantHasToken)
			}

			if health.IsExpired != tt.wantIsExpired {
				t.Errorf("IsExpired = %v, want %v", health.IsExpired, tt.wantIsExpired)
			}

			if health.State != StateListening {
				t.Errorf("State = %v, want %v", health.State, StateListening)
			}

			if tt.token != nil && !health.ExpirationTime.Equal(tt.token.Expiry) {
				t.Errorf("ExpirationTime = %v, want %v", health.ExpirationTime, tt.token.Expiry)
			}
		})
	}
}

func TestAuthHealthHandler(t *testing.T) {
	tests := []struct {
		name               string
		method             string
		token              *oauth2.Token
		wantStatus         int
		wantHasToken       bool
		wantIsExpired      bool
		checkHoursUntilExp bool
	}{
		{
			name:   "GET request with valid token",
			method: http.MethodGet,
			token: &oauth2.Token{
				AccessToken: "test-token",
				Expiry:      time.Now().Add(2 * time.Hour),
			},
			wantStatus:         http.StatusOK,
			wantHasToken:       true,
			wantIsExpired:      false,
			checkHoursUntilExp: true,
		},
		{
			name:   "GET request with expired token",
			method: http.MethodGet,
			token: &oauth2.Token{
				AccessToken: "test-token",
				Expiry:      time.Now().Add(-time.Hour),
			},
			wantStatus:    http.StatusOK,
			wantHasToken:  true,
			wantIsExpired: true,
		},
		{
			name:       "POST request should fail",
			method:     http.MethodPost,
			token:      &oauth2.Token{AccessToken: "test-token"},
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "PUT request should fail",
			method:     http.MethodPut,
			token:      &oauth2.Token{AccessToken: "test-token"},
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessionWithToken(tt.token, time.Now(), StateListening)

			req := httptest.NewRequest(tt.method, "/healthz/auth", nil)
			w := httptest.NewRecorder()

			handler := s.AuthHealthHandler()
			handler(w, req)

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			// Only check JSON response for successful GET requests
			if tt.method == http.MethodGet && tt.wantStatus == http.StatusOK {
				var health AuthHealthResponse
				if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}

				if health.HasToken != tt.wantHasToken {
					t.Errorf("HasToken = %v, want %v", health.HasToken, tt.wantHasToken)
				}

				if health.IsExpired != tt.wantIsExpired {
					t.Errorf("IsExpired = %v, want %v", health.IsExpired, tt.wantIsExpired)
				}

				if tt.checkHoursUntilExp && health.HoursUntilExpiry <= 0 {
					t.Errorf("HoursUntilExpiry should be positive, got %f", health.HoursUntilExpiry)
				}

				contentType := resp.Header.Get("Content-Type")
				if contentType != "application/json" {
					t.Errorf("Content-Type = %s, want application/json", contentType)
				}
			}
		})
	}
}

func TestAuthHealthBeforeAuthorization(t *testing.T) {
	s := NewSession(nil, nil, nil, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/healthz/auth", nil)
	w := httptest.NewRecorder()

	handler := s.AuthHealthHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 even with no token, got %d", w.Code)
	}

	var response AuthHealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.HasToken {
		t.Error("Expected HasToken to be false when no token present")
	}

	if response.IsExpired != true {
		t.Error("Expected IsExpired to be true when no token present")
	}

	if response.State != StateUnauthenticated {
		t.Errorf("State = %v, want %v", response.State, StateUnauthenticated)
	}
}
