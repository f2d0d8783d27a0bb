// Package server implements the HTTP gateway in front of the scraper. It
// exposes the tracker's health and timing data and proxies live WebReg
// operations, either through the shared polling session or through cookies
// the caller forwards.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ucsd-tools/webreg-scraper/internal/logger"
	"github.com/ucsd-tools/webreg-scraper/internal/state"
)

// Server is the HTTP gateway.
type Server struct {
	state    *state.State
	log      *logger.Logger
	registry *prometheus.Registry

	httpServer *http.Server
}

// New creates a gateway bound to the given process state.
func New(st *state.State, log *logger.Logger, registry *prometheus.Registry) *Server {
	return &Server{
		state:    st,
		log:      log.WithModule("server"),
		registry: registry,
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/login_stat/:stat", s.loginStat)
	r.GET("/timing/:term", s.validTerm(), s.timing)

	live := r.Group("/live/:term", s.trackerReady(), s.validTerm())
	if s.state.Keys != nil {
		live.Use(s.apiKeyAuth())
	}

	live.GET("/terms", s.getTerms)
	live.GET("/course_info", s.courseInfo)
	live.GET("/prerequisites", s.prerequisites)
	live.GET("/search", s.search)
	live.POST("/search", s.search)
	live.GET("/subject_codes", s.subjectCodes)
	live.GET("/department_codes", s.departmentCodes)

	forwarded := live.Group("", s.cookieRequired())
	forwarded.GET("/schedule", s.schedule)
	forwarded.GET("/schedule_list", s.scheduleList)
	forwarded.GET("/events", s.events)
	forwarded.POST("/register_term", s.registerTerm)
	forwarded.POST("/add_section", s.addSection)
	forwarded.POST("/validate_add_section", s.validateAddSection)
	forwarded.POST("/drop_section", s.dropSection)
	forwarded.POST("/add_plan", s.addPlan)
	forwarded.POST("/validate_add_plan", s.validateAddPlan)
	forwarded.POST("/remove_plan", s.removePlan)
	forwarded.POST("/rename_schedule", s.renameSchedule)

	return r
}

// Start begins serving on the configured endpoint. It blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.state.APIEndpoint.String(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", s.httpServer.Addr).Info("api server listening")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs each request at debug level with its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(map[string]any{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	}
}
