package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nextmeet/internal/config"
	appLog "nextmeet/internal/log"
	"nextmeet/internal/meeting"
	"nextmeet/internal/schedule"
)

const shutdownTimeout = 5 * time.Second

// Server exposes meeting resolution over HTTP.
type Server struct {
	cfg      *config.Config
	svc      *meeting.Service
	gatherer prometheus.Gatherer
	limiter  *rateLimiter
	mux      *http.ServeMux

	// now is the reference clock when a request carries no ?now=.
	now func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the reference clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer constructs a new Server. gatherer backs /metrics; nil uses the
// default Prometheus registry.
func NewServer(cfg *config.Config, svc *meeting.Service, gatherer prometheus.Gatherer, opts ...Option) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		gatherer: gatherer,
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitPerMinute)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for this server with auth and rate
// limiting applied.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	if s.limiter != nil {
		h = s.rateLimitMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="nextmeet", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		client := clientIP(r)
		if !s.limiter.Allow(client) {
			appLog.Warn("rate limit exceeded", "client", client, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/meetings", s.handleMeetings)
	s.mux.HandleFunc("GET /api/meetings/{group}/next", s.handleNext)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// meetingDTO is the JSON view of a configured group. The feed URL is
// never exposed.
type meetingDTO struct {
	Group          string `json:"group"`
	Name           string `json:"name,omitempty"`
	CalendarFilter string `json:"calendar_filter"`
}

type meetingsResponse struct {
	Meetings []meetingDTO `json:"meetings"`
}

func (s *Server) handleMeetings(w http.ResponseWriter, _ *http.Request) {
	groups := s.svc.Groups()
	resp := meetingsResponse{Meetings: make([]meetingDTO, 0, len(groups))}
	for _, m := range groups {
		resp.Meetings = append(resp.Meetings, meetingDTO{
			Group:          m.Group,
			Name:           m.Name,
			CalendarFilter: m.CalendarFilter,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type occurrenceDTO struct {
	ID         string    `json:"id"`
	Start      time.Time `json:"start"`
	LocalStart string    `json:"local_start"`
	UID        string    `json:"uid"`
	Summary    string    `json:"summary"`
}

// nextResponse is the JSON response shape for /api/meetings/{group}/next.
type nextResponse struct {
	Group           string        `json:"group"`
	WindowStart     string        `json:"window_start"`
	WindowEnd       string        `json:"window_end"`
	DisplayTimeZone string        `json:"display_timezone"`
	Occurrence      occurrenceDTO `json:"occurrence"`
}

// handleNext resolves the group's occurrence in the current week.
//
// GET /api/meetings/{group}/next?now=2024-05-15T10:00:00Z
//   - now: optional RFC3339 reference instant (default: server clock)
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")

	ref := s.now()
	if raw := r.URL.Query().Get("now"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "now must be an RFC3339 timestamp")
			return
		}
		ref = t
	}

	res, err := s.svc.Next(r.Context(), group, ref)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			appLog.Error("api next: resolve failed", err, "group", group)
			writeError(w, status, "failed to load calendar feed")
			return
		}
		appLog.Info("api next: not resolved", "group", group, "status", status, "reason", err.Error())
		writeError(w, status, err.Error())
		return
	}

	loc := s.cfg.Location()
	writeJSON(w, http.StatusOK, nextResponse{
		Group:           res.Group,
		WindowStart:     res.Window.Start.Format(schedule.DateLayout),
		WindowEnd:       res.Window.End.Format(schedule.DateLayout),
		DisplayTimeZone: loc.String(),
		Occurrence: occurrenceDTO{
			ID:         res.ID.String(),
			Start:      res.Occurrence.Start,
			LocalStart: res.Occurrence.Start.In(loc).Format(time.RFC3339),
			UID:        res.Occurrence.UID,
			Summary:    res.Occurrence.Summary,
		},
	})
}

// statusFor maps resolver and feed errors to HTTP statuses.
func statusFor(err error) int {
	var invalid *schedule.InvalidRuleError
	switch {
	case errors.Is(err, meeting.ErrUnknownGroup):
		return http.StatusNotFound
	case schedule.IsNoMatch(err):
		return http.StatusNotFound
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
