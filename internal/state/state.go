// Package state holds the shared process state: the tracked terms, the two
// portal wrappers, the lifecycle flags and the optional API key store.
// One State instance lives for the whole process; the tracker loop and the
// HTTP gateway both observe it.
package state

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ucsd-tools/webreg-scraper/internal/authstore"
	"github.com/ucsd-tools/webreg-scraper/internal/config"
	"github.com/ucsd-tools/webreg-scraper/internal/logger"
	"github.com/ucsd-tools/webreg-scraper/internal/metrics"
	"github.com/ucsd-tools/webreg-scraper/internal/stats"
	"github.com/ucsd-tools/webreg-scraper/internal/webreg"
)

// TermInfo holds the per-term tracking configuration. Created at startup
// and never mutated afterwards, except through Stats.
type TermInfo struct {
	// Term is the 4-character term code, uppercase.
	Term string
	// Cooldown is the delay between per-course polls, in seconds.
	Cooldown float64
	// SearchQueries are the searches the tracker runs each cycle.
	SearchQueries []*webreg.SearchRequest
	// Stats collects request latencies for this term.
	Stats *stats.Tracker
	// SaveData controls whether observations are written to CSV.
	SaveData bool
}

// State is the process-wide shared state.
type State struct {
	// Terms maps uppercase term codes to their tracking configuration.
	Terms map[string]*TermInfo

	// Wrapper is the shared polling wrapper. Session recovery rotates its
	// cookies in place.
	Wrapper *webreg.Wrapper
	// CWrapper serves requests carrying user cookies. It closes
	// connections after each request so user sessions never mix with the
	// polling identity.
	CWrapper *webreg.Wrapper

	// Client is used for outbound non-portal requests (cookie server).
	Client *http.Client

	APIEndpoint  config.AddressPort
	CookieServer config.AddressPort

	// Keys is the API key store; nil when authentication is disabled.
	Keys *authstore.Store

	Log     *logger.Logger
	Metrics *metrics.Metrics

	stopFlag  atomic.Bool
	isRunning atomic.Bool
}

// New builds the process state from the parsed configuration.
func New(cfg *config.Config, log *logger.Logger, m *metrics.Metrics, keys *authstore.Store, opts ...webreg.Option) *State {
	terms := make(map[string]*TermInfo, len(cfg.WrapperData))
	for _, datum := range cfg.WrapperData {
		queries := make([]*webreg.SearchRequest, 0, len(datum.SearchQuery))
		for _, q := range datum.SearchQuery {
			req := webreg.NewSearchRequest()
			for _, level := range q.Levels {
				if f, ok := webreg.ParseLevelFilter(level); ok {
					req.FilterCoursesBy(f)
				}
			}
			for _, dept := range q.Departments {
				req.AddDepartment(dept)
			}
			queries = append(queries, req)
		}

		info := &TermInfo{
			Term:          datum.Term,
			Cooldown:      datum.Cooldown,
			SearchQueries: queries,
			Stats:         stats.NewTracker(),
			SaveData:      datum.SaveDataToFile,
		}
		terms[info.Term] = info
	}

	sharedOpts := append([]webreg.Option{webreg.WithCookies("")}, opts...)
	forwardOpts := append([]webreg.Option{webreg.CloseAfterRequest()}, opts...)

	return &State{
		Terms:        terms,
		Wrapper:      webreg.New(sharedOpts...),
		CWrapper:     webreg.New(forwardOpts...),
		Client:       &http.Client{Timeout: 30 * time.Second},
		APIEndpoint:  cfg.APIBaseEndpoint,
		CookieServer: cfg.CookieServer,
		Keys:         keys,
		Log:          log,
		Metrics:      m,
	}
}

// TermInfo returns the info for an uppercase term code.
func (s *State) TermInfo(term string) (*TermInfo, bool) {
	info, ok := s.Terms[term]
	return info, ok
}

// ShouldStop reports whether the global stop flag has been raised.
func (s *State) ShouldStop() bool {
	return s.stopFlag.Load()
}

// SetStopFlag raises (or clears) the global stop flag. The process raises
// it exactly once, from the signal handler.
func (s *State) SetStopFlag(v bool) {
	s.stopFlag.Store(v)
}

// IsRunning reports whether the tracker is actively polling.
func (s *State) IsRunning() bool {
	return s.isRunning.Load()
}

// SetRunning records whether the tracker is actively polling.
func (s *State) SetRunning(v bool) {
	s.isRunning.Store(v)
	if s.Metrics != nil {
		s.Metrics.SetTrackerRunning(v)
	}
}

// CookieServerURL builds a cookie server URL for the given path segment.
func (s *State) CookieServerURL(path string) string {
	return fmt.Sprintf("http://%s:%d/%s", s.CookieServer.Address, s.CookieServer.Port, path)
}
