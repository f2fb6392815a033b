// Package keepalive watches running bots through their health endpoints and
// alerts the operator when one goes offline or its authorization lapses.
package keepalive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/Soypete/twitch-event-bot/twitch"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const (
	// failuresBeforeAlert is the number of failed checks in a row before the
	// first offline alert.
	failuresBeforeAlert = 3

	// staleToken is how long a token may sit expired before alerting. Tokens
	// are refreshed on use, so a quiet channel shows short expired stretches.
	staleToken = 24 * time.Hour

	probeAttempts = 3
)

// Target is one bot to watch.
type Target struct {
	Name      string
	HealthURL string
	// AuthHealthURL is optional, e.g. http://localhost:6060/healthz/auth
	AuthHealthURL string
}

// Alerter delivers alerts to the operator.
type Alerter interface {
	SendAlert(ctx context.Context, target string, message string) error
}

type targetState struct {
	Target

	mu                  sync.Mutex
	lastCheck           time.Time
	lastAlert           time.Time
	lastAuthAlert       time.Time
	consecutiveFailures int
	healthy             bool
	auth                *twitch.AuthHealthResponse
}

// Service checks every target on an interval.
type Service struct {
	targets       []*targetState
	checkInterval time.Duration
	alertInterval time.Duration
	probeBackoff  time.Duration
	httpClient    *http.Client
	alerter       Alerter
	logger        *logging.Logger
}

// NewService creates a watchdog. alertInterval limits how often a standing
// problem is re-announced.
func NewService(targets []Target, checkInterval, alertInterval time.Duration, alerter Alerter, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		checkInterval: checkInterval,
		alertInterval: alertInterval,
		probeBackoff:  time.Second,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		alerter: alerter,
		logger:  logger.WithComponent("keepalive"),
	}
	for _, t := range targets {
		s.targets = append(s.targets, &targetState{Target: t, healthy: true})
	}
	return s
}

// Start checks immediately and then on every tick until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.checkAll(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("keepalive service shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Service) checkAll(ctx context.Context) {
	var eg errgroup.Group
	for _, t := range s.targets {
		t := t
		eg.Go(func() error {
			s.check(ctx, t)
			return nil
		})
	}
	_ = eg.Wait()
}

func (s *Service) check(ctx context.Context, t *targetState) {
	healthy := s.probe(ctx, t.HealthURL)

	var auth *twitch.AuthHealthResponse
	if healthy && t.AuthHealthURL != "" {
		var err error
		auth, err = s.fetchAuthHealth(ctx, t.AuthHealthURL)
		if err != nil {
			s.logger.Debug("auth health check failed", "target", t.Name, "error", err.Error())
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCheck = time.Now()
	if auth != nil {
		t.auth = auth
	}

	if healthy {
		if !t.healthy {
			s.logger.Info("target recovered", "target", t.Name, "afterFailures", t.consecutiveFailures)
			s.alert(ctx, t.Name, fmt.Sprintf("%s has recovered after %d failed checks", t.Name, t.consecutiveFailures))
		}
		t.healthy = true
		t.consecutiveFailures = 0
		if auth != nil {
			s.checkAuth(ctx, t, auth)
		}
		return
	}

	t.consecutiveFailures++
	t.healthy = false
	s.logger.Warn("health check failed", "target", t.Name, "consecutiveFailures", t.consecutiveFailures, "url", t.HealthURL)

	switch {
	case t.consecutiveFailures == failuresBeforeAlert:
		s.alert(ctx, t.Name, fmt.Sprintf("%s is offline after %d failed health checks", t.Name, failuresBeforeAlert))
		t.lastAlert = time.Now()
	case t.consecutiveFailures > failuresBeforeAlert && time.Since(t.lastAlert) >= s.alertInterval:
		s.alert(ctx, t.Name, fmt.Sprintf("%s is still offline (consecutive failures: %d)", t.Name, t.consecutiveFailures))
		t.lastAlert = time.Now()
	}
}

// checkAuth alerts when the session is not listening or its token went stale.
// Caller holds t.mu.
func (s *Service) checkAuth(ctx context.Context, t *targetState, auth *twitch.AuthHealthResponse) {
	if time.Since(t.lastAuthAlert) < s.alertInterval {
		return
	}

	var msg string
	switch {
	case auth.State == twitch.StateFailed:
		msg = fmt.Sprintf("%s failed to authorize with twitch, restart it and approve the device code", t.Name)
	case auth.State == twitch.StateAuthorizing:
		msg = fmt.Sprintf("%s is waiting for the device code to be approved", t.Name)
	case auth.State == twitch.StateStopped:
		msg = fmt.Sprintf("%s stopped listening for channel events", t.Name)
	case auth.HasToken && auth.IsExpired && time.Since(auth.ExpirationTime) > staleToken:
		msg = fmt.Sprintf("auth token for %s EXPIRED at %s and was not refreshed, last refreshed %s",
			t.Name, auth.ExpirationTime.Format(time.RFC3339), auth.LastRefreshTime.Format(time.RFC3339))
	default:
		return
	}
	s.alert(ctx, t.Name, msg)
	t.lastAuthAlert = time.Now()
}

func (s *Service) alert(ctx context.Context, target, msg string) {
	if err := s.alerter.SendAlert(ctx, target, msg); err != nil {
		s.logger.Error("failed to send alert", "target", target, "error", err.Error())
	}
}

// probe reports whether url answers 200, retrying a few times so a single
// slow response does not count as a failure.
func (s *Service) probe(ctx context.Context, url string) bool {
	b := retry.WithMaxRetries(probeAttempts-1, retry.NewExponential(s.probeBackoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return retry.RetryableError(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}
		return nil
	})
	if err != nil {
		s.logger.Debug("probe failed", "url", url, "error", err.Error())
		return false
	}
	return true
}

func (s *Service) fetchAuthHealth(ctx context.Context, url string) (*twitch.AuthHealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var health twitch.AuthHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode auth health: %w", err)
	}
	return &health, nil
}

// Snapshot is a point in time view of one target.
type Snapshot struct {
	Name                string
	LastCheck           time.Time
	ConsecutiveFailures int
	Healthy             bool
	State               twitch.State
}

// Snapshots returns the state of every target keyed by name.
func (s *Service) Snapshots() map[string]Snapshot {
	out := make(map[string]Snapshot, len(s.targets))
	for _, t := range s.targets {
		t.mu.Lock()
		snap := Snapshot{
			Name:                t.Name,
			LastCheck:           t.lastCheck,
			ConsecutiveFailures: t.consecutiveFailures,
			Healthy:             t.healthy,
		}
		if t.auth != nil {
			snap.State = t.auth.State
		}
		t.mu.Unlock()
		out[t.Name] = snap
	}
	return out
}

// LogAlerter writes alerts to the log at error level.
type LogAlerter struct {
	logger *logging.Logger
}

func NewLogAlerter(logger *logging.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.WithComponent("alert")}
}

func (a *LogAlerter) SendAlert(_ context.Context, target string, message string) error {
	a.logger.Error(message, "target", target)
	return nil
}
