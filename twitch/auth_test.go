package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeIDServer answers the device endpoint and replays tokenReplies in order,
// repeating the last one.
func fakeIDServer(t *testing.T, expiresIn int, tokenReplies ...func(w http.ResponseWriter)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/device", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client-id", r.FormValue("client_id"))
		assert.Equal(t, "user:read:chat user:write:chat", r.FormValue("scopes"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"device_code":"dev-code","user_code":"ABCDEFGH","verification_uri":"https://www.twitch.tv/activate?device-code=ABCDEFGH","expires_in":%d,"interval":5}`, expiresIn)
	})
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "dev-code", r.FormValue("device_code"))
		assert.Equal(t, deviceGrantType, r.FormValue("grant_type"))
		n := int(polls.Add(1)) - 1
		if n >= len(tokenReplies) {
			n = len(tokenReplies) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		tokenReplies[n](w)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func pending(w http.ResponseWriter) {
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"status":400,"message":"authorization_pending"}`))
}

func granted(w http.ResponseWriter) {
	_, _ = w.Write([]byte(`{"access_token":"access","refresh_token":"refresh","expires_in":14400,"scope":["user:read:chat","user:write:chat"],"token_type":"bearer"}`))
}

func denied(w http.ResponseWriter) {
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"status":400,"message":"access_denied"}`))
}

func invalidCode(w http.ResponseWriter) {
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"status":400,"message":"invalid device code"}`))
}

func newTestFlow(srv *httptest.Server) *DeviceFlow {
	return NewDeviceFlow("client-id", []string{"user:read:chat", "user:write:chat"}, logging.Discard(),
		WithEndpoints(srv.URL+"/oauth2/device", srv.URL+"/oauth2/token"),
		WithPollInterval(10*time.Millisecond),
	)
}

func TestDeviceCode(t *testing.T) {
	srv, _ := fakeIDServer(t, 1800, granted)
	flow := newTestFlow(srv)

	da, err := flow.DeviceCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev-code", da.DeviceCode)
	assert.Equal(t, "ABCDEFGH", da.UserCode)
	assert.Contains(t, da.VerificationURI, "twitch.tv/activate")
	assert.Equal(t, int64(5), da.Interval)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), da.Expiry, time.Minute)
}

func TestPollForAuthorization(t *testing.T) {
	tests := []struct {
		name       string
		replies    []func(w http.ResponseWriter)
		wantReason string
		minPolls   int32
	}{
		{name: "granted after pending", replies: []func(http.ResponseWriter){pending, pending, granted}, minPolls: 3},
		{name: "granted immediately", replies: []func(http.ResponseWriter){granted}, minPolls: 1},
		{name: "denied", replies: []func(http.ResponseWriter){pending, denied}, wantReason: ReasonDenied, minPolls: 2},
		{name: "invalid device code", replies: []func(http.ResponseWriter){invalidCode}, wantReason: ReasonInvalid, minPolls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, polls := fakeIDServer(t, 60, tt.replies...)
			flow := newTestFlow(srv)

			da := &oauth2.DeviceAuthResponse{DeviceCode: "dev-code", Expiry: time.Now().Add(5 * time.Second)}
			tok, err := flow.PollForAuthorization(context.Background(), da)

			assert.GreaterOrEqual(t, polls.Load(), tt.minPolls)
			if tt.wantReason != "" {
				var authErr *AuthorizationError
				require.ErrorAs(t, err, &authErr)
				assert.Equal(t, tt.wantReason, authErr.Reason)
				assert.Nil(t, tok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "access", tok.AccessToken)
			assert.Equal(t, "refresh", tok.RefreshToken)
			assert.True(t, tok.Valid())
		})
	}
}

func TestPollForAuthorizationExpires(t *testing.T) {
	srv, polls := fakeIDServer(t, 60, pending)
	flow := newTestFlow(srv)

	da := &oauth2.DeviceAuthResponse{DeviceCode: "dev-code", Expiry: time.Now().Add(100 * time.Millisecond)}
	tok, err := flow.PollForAuthorization(context.Background(), da)

	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ReasonExpired, authErr.Reason)
	assert.Nil(t, tok)
	assert.Positive(t, polls.Load())
}

func TestPollForAuthorizationCancelled(t *testing.T) {
	srv, _ := fakeIDServer(t, 60, pending)
	flow := newTestFlow(srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	da := &oauth2.DeviceAuthResponse{DeviceCode: "dev-code", Expiry: time.Now().Add(time.Minute)}
	_, err := flow.PollForAuthorization(ctx, da)

	assert.ErrorIs(t, err, context.Canceled)
	var authErr *AuthorizationError
	assert.False(t, errors.As(err, &authErr))
}

func TestAuthorizationErrorMessage(t *testing.T) {
	err := &AuthorizationError{Reason: ReasonDenied, Err: fmt.Errorf("access_denied")}
	assert.Equal(t, "twitch authorization denied: access_denied", err.Error())
	assert.Equal(t, "twitch authorization expired", (&AuthorizationError{Reason: ReasonExpired}).Error())
}
