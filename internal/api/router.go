package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Router struct {
	mux      *http.ServeMux
	handlers *Handlers
	log      logrus.FieldLogger
}

func NewRouter(handlers *Handlers, log logrus.FieldLogger) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Router{
		mux:      http.NewServeMux(),
		handlers: handlers,
		log:      log,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// Health
	r.mux.HandleFunc("GET /api/health", r.handlers.Health)

	// Resample
	r.mux.HandleFunc("GET /api/resample/status", r.handlers.ResampleStatus)
	r.mux.HandleFunc("POST /api/resample/stop", r.handlers.ResampleStop)

	// Pipeline
	r.mux.HandleFunc("GET /api/stages", r.handlers.Stages)
	r.mux.HandleFunc("GET /api/corpora", r.handlers.Corpora)
	r.mux.HandleFunc("GET /api/corpora/{name}", r.handlers.Corpus)

	// Prometheus
	r.mux.Handle("GET /metrics", promhttp.Handler())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	r.mux.ServeHTTP(rec, req)

	r.log.WithFields(logrus.Fields{
		"method":  req.Method,
		"path":    req.URL.Path,
		"status":  rec.status,
		"elapsed": time.Since(start).String(),
	}).Debug("request")
}
