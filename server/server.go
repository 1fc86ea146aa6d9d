// Package server exposes the scan pipeline over HTTP for sidecar
// deployments: one synchronous scan endpoint plus health and metrics.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cardshield/cardshield/extract"
	"github.com/cardshield/cardshield/observability"
	"github.com/cardshield/cardshield/packs"
	"github.com/cardshield/cardshield/policy"
)

// ScanRequest is the POST /v1/scan body. Input paths are resolved on the
// server host; this API is a trusted sidecar surface, not a public upload
// endpoint.
type ScanRequest struct {
	Pack        string `json:"pack" binding:"required"`
	Input       string `json:"input" binding:"required"`
	OutputDir   string `json:"output_dir"`
	BackendMode string `json:"backend"`
	ForceRedact bool   `json:"force_redact"`
}

// Server wires the pack registry into an HTTP handler.
type Server struct {
	registry  *packs.Registry
	defaults  map[string]policy.Config
	outputDir string
	log       observability.Logger
	metrics   *metrics
}

// Option configures the server.
type Option func(*Server)

// WithPackConfig sets the policy config used for a pack's scans.
func WithPackConfig(packID string, cfg policy.Config) Option {
	return func(s *Server) { s.defaults[packID] = cfg }
}

// WithOutputDir sets the artifact directory for scans that omit one.
func WithOutputDir(dir string) Option {
	return func(s *Server) { s.outputDir = dir }
}

// New builds a server over the given pack registry.
func New(registry *packs.Registry, log observability.Logger, opts ...Option) *Server {
	if log == nil {
		log = observability.NopLogger{}
	}
	s := &Server{
		registry:  registry,
		defaults:  map[string]policy.Config{},
		outputDir: "out",
		log:       log,
		metrics:   newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))
	router.POST("/v1/scan", s.scan)
	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "packs": s.registry.IDs()})
}

func (s *Server) scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pack, err := s.registry.Get(req.Pack)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	cfg, ok := s.defaults[req.Pack]
	if !ok {
		cfg = policy.DefaultDocumentConfig()
	}
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = s.outputDir
	}

	start := time.Now()
	rep, err := pack.Scan(c.Request.Context(), packs.Request{
		Input:       req.Input,
		OutputDir:   outputDir,
		Config:      cfg,
		BackendMode: req.BackendMode,
		ForceRedact: req.ForceRedact,
	})
	s.metrics.scanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.scanFailures.WithLabelValues(req.Pack).Inc()
		s.log.Error("scan failed",
			observability.String("pack", req.Pack),
			observability.Error("err", err))
		status := http.StatusInternalServerError
		if errors.Is(err, extract.ErrExtraction) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.metrics.scansTotal.WithLabelValues(req.Pack, string(rep.Decision)).Inc()
	c.JSON(http.StatusOK, rep)
}

// metrics holds the server's own prometheus registry so tests and embedders
// never collide on the global one.
type metrics struct {
	registry     *prometheus.Registry
	scansTotal   *prometheus.CounterVec
	scanFailures *prometheus.CounterVec
	scanDuration prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}
	m.scansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardshield_scans_total",
		Help: "Finished scans by pack and decision.",
	}, []string{"pack", "decision"})
	m.scanFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardshield_scan_failures_total",
		Help: "Scans aborted by extraction or I/O failures.",
	}, []string{"pack"})
	m.scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardshield_scan_duration_seconds",
		Help:    "Wall time of one scan.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	m.registry.MustRegister(m.scansTotal, m.scanFailures, m.scanDuration)
	return m
}
