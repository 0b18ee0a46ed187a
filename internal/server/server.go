// Package server implements the HTTP Dispatcher: it classifies each probe's
// user agent, asks the Policy Engine what to do, and writes the resulting
// action as an HTTP response. It also serves the optional admin dashboard
// and the Prometheus metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/connectbox/captiveportal/internal/adminlog"
	"github.com/connectbox/captiveportal/internal/agent"
	"github.com/connectbox/captiveportal/internal/config"
	"github.com/connectbox/captiveportal/internal/metrics"
	"github.com/connectbox/captiveportal/internal/policy"
	"github.com/connectbox/captiveportal/internal/registry"
	"github.com/connectbox/captiveportal/internal/render"
)

const version = "1.0.0"

// Server is the captive-portal HTTP responder.
type Server struct {
	cfg       *config.Config
	registry  *registry.Registry
	engine    *policy.Engine
	renderer  *render.Renderer
	parser    agent.Parser
	metrics   *metrics.Metrics
	adminLog  *adminlog.Broadcaster
	router    *chi.Mux
	startedAt time.Time
}

// New constructs a Server. m and al may be nil to disable metrics
// recording and admin log fan-out respectively.
func New(cfg *config.Config, reg *registry.Registry, engine *policy.Engine, renderer *render.Renderer, m *metrics.Metrics, al *adminlog.Broadcaster) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  reg,
		engine:    engine,
		renderer:  renderer,
		parser:    agent.LibraryParser{},
		metrics:   m,
		adminLog:  al,
		startedAt: time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	srv := &http.Server{
		Addr:         s.cfg.BindAddress,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting HTTP server", "addr", s.cfg.BindAddress, "local_url", s.cfg.LocalURL)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
	}
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Apple: CPA (wispr) and CPB both probe these three paths, over either
	// method — the CPA has been observed issuing both GET and POST here.
	r.Get("/success.html", s.probeHandler(policy.Apple, "success.html"))
	r.Post("/success.html", s.probeHandler(policy.Apple, "success.html"))
	r.Get("/library/test/success.html", s.probeHandler(policy.Apple, "library/test/success.html"))
	r.Post("/library/test/success.html", s.probeHandler(policy.Apple, "library/test/success.html"))
	r.Get("/hotspot-detect.html", s.probeHandler(policy.Apple, "hotspot-detect.html"))
	r.Post("/hotspot-detect.html", s.probeHandler(policy.Apple, "hotspot-detect.html"))

	// Android: the generate_204 family, probed by both the Dalvik/X11 CPA
	// and posted to by the landing page's OK form.
	r.Get("/generate_204", s.probeHandler(policy.Android, "generate_204"))
	r.Post("/generate_204", s.probeHandler(policy.Android, "generate_204"))
	r.Get("/gen_204", s.probeHandler(policy.Android, "gen_204"))
	r.Post("/gen_204", s.probeHandler(policy.Android, "gen_204"))

	// Windows NCSI and Kindle: always touch, always land, over either method.
	r.Get("/ncsi.txt", s.probeHandler(policy.Other, "ncsi.txt"))
	r.Post("/ncsi.txt", s.probeHandler(policy.Other, "ncsi.txt"))
	r.Get("/kindle-wifi/wifistub.html", s.probeHandler(policy.Other, "kindle-wifi/wifistub.html"))
	r.Post("/kindle-wifi/wifistub.html", s.probeHandler(policy.Other, "kindle-wifi/wifistub.html"))

	// Forgets the calling client's registry entry, forcing its next probe
	// to be treated as a brand new session.
	r.Delete("/_authorised_clients", s.handleForgetClient)

	staticFS, err := fs.Sub(render.StaticFS, "assets/static")
	if err != nil {
		panic(err) // only possible if the embed directive above is wrong
	}
	r.Mount("/static", http.StripPrefix("/static", http.FileServerFS(staticFS)))

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	if s.cfg.WebAdminPassword != "" {
		r.Route("/web", func(r chi.Router) {
			r.Use(s.adminAuth)
			r.Get("/", s.handleAdminDashboard)
			r.Get("/api/status", s.handleAdminStatus)
			r.Get("/api/clients", s.handleAdminClients)
			r.Delete("/api/clients/{id}", s.handleAdminForgetClient)
			r.Get("/api/log/stream", s.handleAdminLogStream)
		})
	}

	// Catch-all: any path not matched above lands unconditionally, per
	// the original's 404 handler falling through to the connected page.
	r.NotFound(s.probeHandler(policy.Default, "*"))

	return r
}

// probeHandler builds the handler shared by every probe endpoint: classify,
// decide, respond, observe.
func (s *Server) probeHandler(family policy.EndpointFamily, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := s.clientID(r)
		profile := agent.Classify(r.Header, s.parser)
		action := s.engine.Decide(family, id, profile, r.Method)
		s.writeAction(w, action, id, string(profile.Family), endpoint)
	}
}

func (s *Server) writeAction(w http.ResponseWriter, action policy.Action, clientID, family, endpoint string) {
	var decision string
	switch action.Kind {
	case policy.Send204:
		decision = "204"
		w.WriteHeader(http.StatusNoContent)
	case policy.SendSuccessBody:
		decision = "success"
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, render.AppleSuccessBody)
	case policy.SendLanding:
		decision = "landing"
		body, err := s.renderer.Landing(action.Landing)
		if err != nil {
			slog.Error("landing page render failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(body)
	}

	if s.metrics != nil {
		s.metrics.ObserveProbe(endpoint, family, decision)
		s.metrics.SetRegistrySize(s.registry.Len())
	}
	if s.adminLog != nil {
		s.adminLog.Publish(adminlog.Event{
			Time:     time.Now(),
			ClientID: clientID,
			Endpoint: endpoint,
			Family:   family,
			Decision: decision,
		})
	}
}

func (s *Server) handleForgetClient(w http.ResponseWriter, r *http.Request) {
	id := s.clientID(r)
	s.engine.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

// clientID derives the Client Registry key for r, per cfg.ClientIDSource.
func (s *Server) clientID(r *http.Request) string {
	switch s.cfg.ClientIDSource.Kind {
	case "host":
		return r.Host
	case "header":
		if v := r.Header.Get(s.cfg.ClientIDSource.Header); v != "" {
			return v
		}
		return s.remoteHost(r)
	default: // "remote_addr"
		return s.remoteHost(r)
	}
}

// remoteHost strips the ephemeral source port from r.RemoteAddr, so a
// single device is keyed consistently across requests instead of by a port
// number that changes on every new TCP connection.
func (s *Server) remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func jsonResponse(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// requestIDMiddleware stamps every request with a unique id, echoed back in
// X-Request-Id and attached to its log line, so a single probe can be
// traced across the dispatcher and the admin log stream.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// loggingMiddleware logs each HTTP request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		slog.Debug("http request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Unwrap allows http.ResponseController to reach the underlying
// ResponseWriter, needed for SetWriteDeadline on the SSE log stream.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
