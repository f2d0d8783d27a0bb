package tracker

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/ucsd-tools/webreg-scraper/internal/webreg"
)

// RecoveryParams tunes the session recovery state machine. The defaults
// match what WebReg tolerates without tripping rate limiting; tests shrink
// the delays.
type RecoveryParams struct {
	// MaxLoginFailures bounds cookie fetch plus registration rounds.
	MaxLoginFailures int
	// MaxRegisterAttempts bounds term registration retries per cookie.
	MaxRegisterAttempts int
	// BaseDelay is the first pre-fetch delay; later rounds grow by
	// GrowthFactor^n.
	BaseDelay time.Duration
	// GeneralDelay is the pause before each registration attempt.
	GeneralDelay time.Duration
	// GrowthFactor is the exponential backoff base.
	GrowthFactor float64
}

// DefaultRecoveryParams returns the production recovery tuning.
func DefaultRecoveryParams() RecoveryParams {
	return RecoveryParams{
		MaxLoginFailures:    30,
		MaxRegisterAttempts: 25,
		BaseDelay:           8 * time.Second,
		GeneralDelay:        3 * time.Second,
		GrowthFactor:        1.2,
	}
}

// tryLogin fetches fresh session cookies from the cookie server and
// registers all tracked terms under them. Returns false when the failure
// budget is exhausted or shutdown was requested.
func (t *Tracker) tryLogin(ctx context.Context) bool {
	p := t.recovery

	for failures := 0; failures <= p.MaxLoginFailures; {
		delay := time.Duration(math.Pow(p.GrowthFactor, float64(failures)) * float64(p.BaseDelay))
		t.log.WithFields(map[string]any{
			"delay":    delay.String(),
			"failures": failures,
		}).Info("waiting before cookie fetch")
		sleep(ctx, delay)

		if t.state.ShouldStop() {
			return false
		}

		cookies, ok := t.fetchCookies(ctx)
		if !ok {
			failures++
			t.state.Metrics.RecordRecoveryAttempt("cookie", "error")
			continue
		}
		if cookies == "" {
			// The cookie server answered but has no session yet. Retry
			// without burning a failure.
			t.state.Metrics.RecordRecoveryAttempt("cookie", "pending")
			continue
		}
		t.state.Metrics.RecordRecoveryAttempt("cookie", "success")

		if t.register(ctx, cookies) {
			t.state.Metrics.RecordRecoveryAttempt("register", "success")
			t.log.Info("session established")
			return true
		}
		failures++
		t.state.Metrics.RecordRecoveryAttempt("register", "error")
	}

	return false
}

// fetchCookies asks the cookie server for the current session cookies.
// The second return is false only on transport errors; any response body
// without a string cookie field, JSON or not, is the portal's not-ready
// signal, reported as a true return with an empty string.
func (t *Tracker) fetchCookies(ctx context.Context) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.state.CookieServerURL("cookie"), nil)
	if err != nil {
		t.log.WithError(err).Error("cannot build cookie request")
		return "", false
	}

	resp, err := t.state.Client.Do(req)
	if err != nil {
		t.log.WithError(err).Warn("cookie server unreachable")
		return "", false
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.log.WithError(err).Warn("cannot read cookie response")
		return "", false
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.log.WithError(err).Warn("cookie response is not JSON")
		return "", true
	}

	cookie, ok := payload["cookie"].(string)
	if !ok || cookie == "" {
		t.log.Warn("cookie server has no session yet")
		return "", true
	}
	return cookie, true
}

// register installs the cookies on the shared wrapper and associates every
// tracked term with the new session. Each term must then answer a catalog
// search with at least one course before the session counts as usable.
func (t *Tracker) register(ctx context.Context, cookies string) bool {
	p := t.recovery
	t.state.Wrapper.SetCookies(cookies)

	tries := 0
	for tries <= p.MaxRegisterAttempts {
		sleep(ctx, p.GeneralDelay)
		if t.state.ShouldStop() {
			return false
		}

		if err := t.state.Wrapper.RegisterAllTerms(ctx); err != nil {
			tries++
			t.log.WithError(err).Warn("term registration failed")
			continue
		}

		usable := true
		for term := range t.state.Terms {
			found, err := t.state.Wrapper.Req(term).Parsed().SearchCourses(ctx, webreg.Advanced(nil))
			if err != nil {
				t.log.WithError(err).WithTerm(term).Warn("post-registration search failed")
				usable = false
				break
			}
			if len(found) == 0 {
				t.log.WithTerm(term).Warn("post-registration search returned no courses")
				usable = false
				break
			}
		}
		if usable {
			// A session that only became usable on the final permitted
			// attempt is treated as failed.
			return tries < p.MaxRegisterAttempts
		}
		tries++
	}

	return false
}
