// Package observability exposes the runtime's health, metrics and
// introspection endpoints and handles graceful shutdown.
package observability

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/animus-host/animus/pkg/bus"
	"github.com/animus-host/animus/pkg/lifecycle"
	"github.com/animus-host/animus/pkg/monitor"
	"github.com/animus-host/animus/pkg/plugin"
)

// Server serves the runtime's HTTP surface: liveness/readiness probes,
// Prometheus metrics, and read-only plugin introspection.
type Server struct {
	manager *lifecycle.Manager
	monitor *monitor.Monitor
	bus     *bus.Bus
	log     *logrus.Logger
	router  *mux.Router
}

// NewServer builds the HTTP surface over the runtime components.
func NewServer(mgr *lifecycle.Manager, mon *monitor.Monitor, b *bus.Bus, registry *prometheus.Registry, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		manager: mgr,
		monitor: mon,
		bus:     b,
		log:     log,
		router:  mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/plugins", s.handleListPlugins).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/plugins/{id}", s.handleGetPlugin).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/plugins/{id}/health", s.handlePluginHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/plugins/{id}/metrics", s.handlePluginMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/topics", s.handleTopics).Methods(http.MethodGet)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    plugin.HealthHealthy,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := s.monitor.SystemHealth()

	status := http.StatusOK
	if report.Status == plugin.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	var categories []plugin.Category
	if c := r.URL.Query().Get("category"); c != "" {
		categories = append(categories, plugin.Category(c))
	}
	writeJSON(w, http.StatusOK, s.manager.List(categories...))
}

func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, err := s.manager.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePluginHealth(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report := s.monitor.PluginHealth(id)

	status := http.StatusOK
	if report.Status == plugin.HealthUnknown {
		status = http.StatusNotFound
	}
	writeJSON(w, status, report)
}

func (s *Server) handlePluginMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, err := s.manager.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	body := map[string]any{"record": view.Metrics}
	if self, ok := s.manager.SelfMetrics(id); ok {
		body["self_reported"] = self
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleTopics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": s.bus.Topics()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
