package tracker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucsd-tools/webreg-scraper/internal/config"
	"github.com/ucsd-tools/webreg-scraper/internal/logger"
	"github.com/ucsd-tools/webreg-scraper/internal/metrics"
	"github.com/ucsd-tools/webreg-scraper/internal/state"
	"github.com/ucsd-tools/webreg-scraper/internal/webreg"
)

func TestFormatInstructors(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{[]string{"Doe, Jane", "Roe, John"}, "Doe; Jane & Roe; John"},
		{[]string{"Staff"}, "Staff"},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatInstructors(tt.names))
	}
}

func TestOpenEnrollmentLog_HeaderWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 9, 26, 14, 30, 5, 0, time.UTC)

	log, err := openEnrollmentLog(dir, "FA24", now)
	require.NoError(t, err)

	_, err = log.WriteCounts(1000, []webreg.EnrollmentCount{{
		SubjCourseID:   "CSE 100",
		SectionCode:    "A01",
		SectionID:      "79914",
		AllInstructors: []string{"Doe, Jane"},
		AvailableSeats: 5,
		WaitlistCt:     0,
		TotalSeats:     100,
		EnrolledCt:     95,
	}})
	require.NoError(t, err)
	require.NoError(t, log.Close())

	// Reopening the same file must not duplicate the header
	log, err = openEnrollmentLog(dir, "FA24", now)
	require.NoError(t, err)
	_, err = log.WriteCounts(2000, []webreg.EnrollmentCount{{
		SubjCourseID: "CSE 100",
		SectionCode:  "A01",
		SectionID:    "79914",
	}})
	require.NoError(t, err)
	require.NoError(t, log.Close())

	path := filepath.Join(dir, "enrollment_2024-09-26T14_30_05_FA24.csv")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, csvHeader, lines[0])
	assert.Equal(t, "1000,CSE 100,A01,79914,Doe; Jane,5,0,100,95", lines[1])
	assert.Equal(t, "2000,CSE 100,A01,79914,,0,0,0,0", lines[2])
}

// newTestState builds process state whose portal and cookie server both
// point at the given httptest server.
func newTestState(t *testing.T, portal *httptest.Server) *state.State {
	t.Helper()

	u, err := url.Parse(portal.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	endpoint := config.AddressPort{Address: u.Hostname(), Port: port}

	cfg := &config.Config{
		APIBaseEndpoint: config.AddressPort{Address: "127.0.0.1", Port: 0},
		CookieServer:    endpoint,
		WrapperData: []config.TermDatum{{
			Term:           "FA24",
			Cooldown:       0.001,
			SearchQuery:    []config.SearchQuery{{Departments: []string{"CSE"}}},
			SaveDataToFile: true,
		}},
	}

	log := logger.NewWithWriter("error", io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	return state.New(cfg, log, m, nil, webreg.WithBaseURL(portal.URL))
}

func fastRecovery() RecoveryParams {
	return RecoveryParams{
		MaxLoginFailures:    5,
		MaxRegisterAttempts: 3,
		BaseDelay:           2 * time.Millisecond,
		GeneralDelay:        time.Millisecond,
		GrowthFactor:        1.2,
	}
}

// portalHandler answers the minimum protocol a healthy session needs.
func portalHandler(cookieFailures *atomic.Int64) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cookie":
			if cookieFailures != nil && cookieFailures.Add(-1) >= 0 {
				// Drop the connection so the client sees a transport error.
				conn, _, err := rw.(http.Hijacker).Hijack()
				if err == nil {
					_ = conn.Close()
				}
				return
			}
			_, _ = rw.Write([]byte(`{"cookie":"sess=abc"}`))
		case "/get-term":
			_, _ = rw.Write([]byte(`[{"TERM_CODE":"FA24","TERM_DESC":"Fall 2024"}]`))
		case "/add-update-term":
			_, _ = rw.Write([]byte(`"SUCCESS"`))
		case "/search-by-all":
			_, _ = rw.Write([]byte(`[{"SUBJ_CODE":"CSE","CRSE_CODE":"100","CRSE_TITLE":"Advanced Data Structures","SECTION_NUMBER":79914,"UNIT_TO":4}]`))
		case "/search-load-group-data":
			_, _ = rw.Write([]byte(`[{"SECTION_NUMBER":79914,"SECT_CODE":"A01","PERSON_FULL_NAME":"Doe, Jane","AVAIL_SEAT":5,"SCTN_ENRLT_QTY":95,"SCTN_CPCTY_QTY":100,"COUNT_ON_WAITLIST":0}]`))
		default:
			rw.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestTryLogin_BackoffGrowsPerFailure(t *testing.T) {
	var failures atomic.Int64
	failures.Store(3)
	portal := httptest.NewServer(portalHandler(&failures))
	defer portal.Close()

	st := newTestState(t, portal)
	trk := New(st, logger.NewWithWriter("error", io.Discard), t.TempDir())

	base := 20 * time.Millisecond
	trk.SetRecoveryParams(RecoveryParams{
		MaxLoginFailures:    10,
		MaxRegisterAttempts: 3,
		BaseDelay:           base,
		GeneralDelay:        time.Millisecond,
		GrowthFactor:        1.2,
	})

	start := time.Now()
	ok := trk.tryLogin(context.Background())
	elapsed := time.Since(start)

	require.True(t, ok)
	assert.Equal(t, "sess=abc", st.Wrapper.Cookies())

	// Three failed rounds then success: delays of 1, 1.2, 1.44 and 1.728
	// times the base must all have elapsed.
	minimum := time.Duration(float64(base) * (1 + 1.2 + 1.2*1.2 + 1.2*1.2*1.2))
	assert.GreaterOrEqual(t, elapsed, minimum)
}

func TestTryLogin_GivesUpAfterBudget(t *testing.T) {
	var failures atomic.Int64
	failures.Store(1 << 30)
	portal := httptest.NewServer(portalHandler(&failures))
	defer portal.Close()

	st := newTestState(t, portal)
	trk := New(st, logger.NewWithWriter("error", io.Discard), t.TempDir())
	params := fastRecovery()
	params.MaxLoginFailures = 2
	trk.SetRecoveryParams(params)

	assert.False(t, trk.tryLogin(context.Background()))
}

func TestTryLogin_NonJSONCookieBodyRetriesWithoutPenalty(t *testing.T) {
	// While the cookie server is warming up it may answer with a plain
	// text page. That is the same not-ready signal as a missing cookie
	// field and must not count against the failure budget.
	var warming atomic.Int64
	warming.Store(3)
	base := portalHandler(nil)
	portal := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cookie" && warming.Add(-1) >= 0 {
			_, _ = rw.Write([]byte("service warming up"))
			return
		}
		base(rw, r)
	}))
	defer portal.Close()

	st := newTestState(t, portal)
	trk := New(st, logger.NewWithWriter("error", io.Discard), t.TempDir())
	params := fastRecovery()
	// A single consumed failure would end the loop immediately.
	params.MaxLoginFailures = 0
	trk.SetRecoveryParams(params)

	require.True(t, trk.tryLogin(context.Background()))
	assert.Equal(t, "sess=abc", st.Wrapper.Cookies())
}

func TestRegister_SuccessOnFinalAttemptCountsAsFailure(t *testing.T) {
	var emptySearches atomic.Int64
	base := portalHandler(nil)
	portal := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search-by-all" && emptySearches.Add(-1) >= 0 {
			_, _ = rw.Write([]byte(`[]`))
			return
		}
		base(rw, r)
	}))
	defer portal.Close()

	st := newTestState(t, portal)
	trk := New(st, logger.NewWithWriter("error", io.Discard), t.TempDir())
	params := fastRecovery()
	params.MaxRegisterAttempts = 2
	trk.SetRecoveryParams(params)

	// Usable with one attempt to spare: success.
	emptySearches.Store(1)
	assert.True(t, trk.register(context.Background(), "sess=abc"))

	// Only usable on the last permitted attempt: reported as failure.
	emptySearches.Store(2)
	assert.False(t, trk.register(context.Background(), "sess=abc"))
}

func TestTryLogin_StopFlagAborts(t *testing.T) {
	portal := httptest.NewServer(portalHandler(nil))
	defer portal.Close()

	st := newTestState(t, portal)
	st.SetStopFlag(true)

	trk := New(st, logger.NewWithWriter("error", io.Discard), t.TempDir())
	trk.SetRecoveryParams(fastRecovery())

	assert.False(t, trk.tryLogin(context.Background()))
}

func TestRun_PollsAndStops(t *testing.T) {
	portal := httptest.NewServer(portalHandler(nil))
	defer portal.Close()

	dir := t.TempDir()
	st := newTestState(t, portal)
	trk := New(st, logger.NewWithWriter("error", io.Discard), dir)
	trk.SetRecoveryParams(fastRecovery())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		trk.Run(ctx)
		close(done)
	}()

	// Wait for the tracker to come up and write at least one observation
	require.Eventually(t, func() bool {
		if !st.IsRunning() {
			return false
		}
		rows, err := filepath.Glob(filepath.Join(dir, "enrollment_*_FA24.csv"))
		if err != nil || len(rows) == 0 {
			return false
		}
		raw, err := os.ReadFile(rows[0])
		return err == nil && strings.Count(string(raw), "\n") >= 2
	}, 10*time.Second, 10*time.Millisecond)

	st.SetStopFlag(true)
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tracker did not stop")
	}
	assert.False(t, st.IsRunning())

	files, err := filepath.Glob(filepath.Join(dir, "enrollment_*_FA24.csv"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, csvHeader, lines[0])
	require.Greater(t, len(lines), 1)
	assert.Contains(t, lines[1], "CSE 100,A01,79914,Doe; Jane,5,0,100,95")
}
