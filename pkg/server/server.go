// Package server exposes solving over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"golang.org/x/time/rate"

	"github.com/solvo-project/solvo/pkg/catalog"
	"github.com/solvo-project/solvo/pkg/compile"
	"github.com/solvo-project/solvo/pkg/lib/filemonitor"
	"github.com/solvo-project/solvo/pkg/lib/profile"
	"github.com/solvo-project/solvo/pkg/metrics"
	"github.com/solvo-project/solvo/pkg/model"
	"github.com/solvo-project/solvo/pkg/solver"
	"github.com/solvo-project/solvo/pkg/store"
)

// Server solves documents over HTTP.
type Server struct {
	cfg     *Config
	logger  *logrus.Logger
	solver  compile.Interface
	catalog *catalog.Catalog
	store   *store.Store
	cache   *resultCache
	limiter *rate.Limiter
	sem     chan struct{}
	engine  *gin.Engine
}

// New assembles a server from its configuration: the model catalog
// when a models directory is configured, the run store when a store
// path is, and the instrumented solver.
func New(cfg *Config, logger *logrus.Logger) (*Server, error) {
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, errors.New("TLS requires both a certificate and a key")
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		solver:  compile.Instrumented(compile.New(logger), metrics.ObserveSolve),
		cache:   newResultCache(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}

	if cfg.ModelsDir != "" {
		c, err := catalog.New(cfg.ModelsDir, logger)
		if err != nil {
			return nil, err
		}
		s.catalog = c
		metrics.SetCatalogModelCount(c.Len())
	}
	if cfg.StorePath != "" {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		s.store = st
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	prometheusMiddleware().Use(engine)
	if cfg.Profiling {
		profile.RegisterHandlers(engine)
	}

	engine.GET("/healthz", s.handleHealthz)
	v1 := engine.Group("/v1", s.rateLimit())
	{
		v1.POST("/solve", s.handleSolve)
		v1.GET("/models", s.handleModels)
		v1.GET("/models/:name", s.handleModel)
		v1.POST("/models/:name/solve", s.handleModelSolve)
		v1.GET("/runs", s.handleRuns)
	}
	s.engine = engine
	return s, nil
}

// One set of HTTP collectors per process, shared across servers.
var (
	promOnce sync.Once
	prom     *ginprometheus.Prometheus
)

func prometheusMiddleware() *ginprometheus.Prometheus {
	promOnce.Do(func() {
		prom = ginprometheus.NewPrometheus("solvo")
		prom.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
			return c.FullPath()
		}
	})
	return prom
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests
// for up to the configured drain timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Address, Handler: s.engine}

	serveTLS := s.cfg.TLSCert != ""
	if serveTLS {
		getCert, err := filemonitor.GetCertRotationFn(s.logger, s.cfg.TLSCert, s.cfg.TLSKey)
		if err != nil {
			return err
		}
		srv.TLSConfig = &tls.Config{GetCertificate: getCert}
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Infof("listening on %s", s.cfg.Address)
		if serveTLS {
			errs <- srv.ListenAndServeTLS("", "")
		} else {
			errs <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"took":   time.Since(start),
		}).Debug("handled request")
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	health := gin.H{"status": "ok"}
	if s.catalog != nil {
		health["models"] = s.catalog.Len()
		health["modelsReloadedAt"] = s.catalog.ReloadedAt().UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, health)
}

func (s *Server) handleSolve(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := model.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.solve(c, doc, "")
}

func (s *Server) handleModels(c *gin.Context) {
	if s.catalog == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no model catalog configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": s.catalog.Names()})
}

// handleModel serves the canonical JSON rendering of one catalog
// model, whatever format its file on disk uses.
func (s *Server) handleModel(c *gin.Context) {
	if s.catalog == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no model catalog configured"})
		return
	}
	name := c.Param("name")
	m, ok := s.catalog.ByName(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown model %q", name)})
		return
	}
	data, err := model.Encode(m.Doc, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) handleModelSolve(c *gin.Context) {
	if s.catalog == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no model catalog configured"})
		return
	}
	name := c.Param("name")
	m, ok := s.catalog.ByName(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown model %q", name)})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc := m.Doc
	if len(body) > 0 {
		doc, err = model.ApplyMergePatch(m.Raw, body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	fingerprint, err := compile.Fingerprint(doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if result, ok := s.cache.get(fingerprint); ok {
		metrics.IncrementCacheHits()
		c.JSON(statusCode(result), result)
		return
	}
	metrics.IncrementCacheMisses()
	s.solve(c, doc, fingerprint)
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run store configured"})
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = parsed
	}
	runs, err := s.store.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// requestTimeout resolves the deadline for one solve request. A
// timeout query parameter can shorten the configured deadline but
// never extend it.
func (s *Server) requestTimeout(c *gin.Context) (time.Duration, error) {
	raw := c.Query("timeout")
	if raw == "" {
		return s.cfg.RequestTimeout, nil
	}
	opts, err := model.DecodeOptions(map[string]interface{}{"timeout": raw})
	if err != nil {
		return 0, errors.Wrapf(err, "invalid timeout %q", raw)
	}
	timeout := opts.EffectiveTimeout(s.cfg.RequestTimeout)
	if timeout > s.cfg.RequestTimeout {
		timeout = s.cfg.RequestTimeout
	}
	return timeout, nil
}

// solve runs the document through the solver under the concurrency
// cap and the request timeout. Results solved on behalf of a catalog
// model carry a fingerprint and are cached.
func (s *Server) solve(c *gin.Context, doc *model.Document, fingerprint string) {
	timeout, err := s.requestTimeout(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "solver is saturated"})
		return
	}

	result, err := s.solver.Solve(ctx, doc)
	if err != nil {
		s.fail(c, err)
		return
	}

	if s.store != nil {
		if _, err := s.store.Record(result); err != nil {
			s.logger.WithError(err).Warn("unable to record run")
		}
	}
	if fingerprint != "" {
		s.cache.put(result)
	}
	c.JSON(statusCode(result), result)
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, solver.Incomplete):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "solve timed out"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func statusCode(result *compile.Result) int {
	if result.Feasible() {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}
