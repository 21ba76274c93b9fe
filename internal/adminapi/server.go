// Package adminapi is the thin local HTTP surface over the engine: create
// and manage strategies, inspect positions/trades/run history, and
// trigger manual actions (run now, pause/resume/stop, clear the circuit
// breaker).
package adminapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cryptostrategist/internal/broker"
	"cryptostrategist/internal/models"
	"cryptostrategist/internal/risk"
	"cryptostrategist/internal/scheduler"
)

// Store is the subset of database.Store the admin surface needs for
// direct reads; the admin's own Strategy status flips are written through
// it too.
type Store interface {
	DB() *gorm.DB
	Write(fn func(tx *gorm.DB) error) error
}

// Server wires the admin HTTP surface's dependencies.
type Server struct {
	router    *gin.Engine
	http      *http.Server
	logger    *zap.Logger
	store     Store
	brokerSvc *broker.Broker
	riskSvc   *risk.Filter
	sched     *scheduler.Scheduler
}

// New builds a Server listening on addr. Call Start to begin serving.
func New(logger *zap.Logger, store Store, brokerSvc *broker.Broker, riskSvc *risk.Filter, sched *scheduler.Scheduler, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		logger:    logger,
		store:     store,
		brokerSvc: brokerSvc,
		riskSvc:   riskSvc,
		sched:     sched,
	}
	s.routes()
	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

func (s *Server) routes() {
	s.router.GET("/api/health", s.handleHealth)

	strategies := s.router.Group("/api/strategies")
	{
		strategies.GET("", s.handleListStrategies)
		strategies.POST("", s.handleCreateStrategy)
		strategies.GET("/:id", s.handleGetStrategy)
		strategies.PUT("/:id/pause", s.handlePauseStrategy)
		strategies.PUT("/:id/resume", s.handleResumeStrategy)
		strategies.PUT("/:id/stop", s.handleStopStrategy)
		strategies.POST("/:id/run", s.handleRunStrategy)
		strategies.GET("/:id/runs", s.handleListRunLogs)
		strategies.GET("/:id/runs/:run_id/trace", s.handleGetRunTrace)
		strategies.GET("/:id/signals", s.handleListSignals)
	}

	s.router.GET("/api/account", s.handleAccountSnapshot)
	s.router.GET("/api/positions", s.handleListPositions)
	s.router.GET("/api/trades", s.handleListTrades)
	s.router.POST("/api/risk/circuit-breaker/clear", s.handleClearCircuitBreaker)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin api listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func successResponse(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

func (s *Server) handleHealth(c *gin.Context) {
	successResponse(c, gin.H{"status": "ok"})
}

func (s *Server) loadStrategy(c *gin.Context) (models.Strategy, bool) {
	var st models.Strategy
	id := c.Param("id")
	if err := s.store.DB().First(&st, id).Error; err != nil {
		errorResponse(c, http.StatusNotFound, "strategy not found")
		return models.Strategy{}, false
	}
	return st, true
}

func (s *Server) handleListStrategies(c *gin.Context) {
	var out []models.Strategy
	if err := s.store.DB().Order("id asc").Find(&out).Error; err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, out)
}

func (s *Server) handleGetStrategy(c *gin.Context) {
	st, ok := s.loadStrategy(c)
	if !ok {
		return
	}
	successResponse(c, st)
}

// createStrategyRequest is the admin-facing strategy creation payload.
// Parameters is forwarded as-is to the Strategy's JSON-blob column; each
// evaluator validates its own shape on first run.
type createStrategyRequest struct {
	Name             string          `json:"name" binding:"required"`
	Kind             models.StrategyKind `json:"type" binding:"required"`
	Symbol           string          `json:"symbol" binding:"required"`
	ScheduleInterval int             `json:"schedule_interval" binding:"required"`
	Parameters       []byte          `json:"parameters"`
}

func (s *Server) handleCreateStrategy(c *gin.Context) {
	var req createStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	st := models.Strategy{
		Name:             req.Name,
		Kind:             req.Kind,
		Symbol:           req.Symbol,
		Status:           models.StrategyActive,
		ScheduleInterval: req.ScheduleInterval,
		Parameters:       req.Parameters,
	}
	if err := s.store.Write(func(tx *gorm.DB) error {
		return tx.Create(&st).Error
	}); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, st)
}

func (s *Server) setStatus(c *gin.Context, status models.StrategyStatus) {
	st, ok := s.loadStrategy(c)
	if !ok {
		return
	}
	if err := s.store.Write(func(tx *gorm.DB) error {
		return tx.Model(&models.Strategy{}).Where("id = ?", st.ID).Update("status", status).Error
	}); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, gin.H{"id": st.ID, "status": status})
}

func (s *Server) handlePauseStrategy(c *gin.Context)  { s.setStatus(c, models.StrategyPaused) }
func (s *Server) handleResumeStrategy(c *gin.Context) { s.setStatus(c, models.StrategyActive) }
func (s *Server) handleStopStrategy(c *gin.Context)   { s.setStatus(c, models.StrategyStopped) }

func (s *Server) handleRunStrategy(c *gin.Context) {
	st, ok := s.loadStrategy(c)
	if !ok {
		return
	}
	if err := s.sched.TriggerRun(c.Request.Context(), st.ID); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			errorResponse(c, http.StatusConflict, "strategy is already running")
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, gin.H{"id": st.ID, "triggered": true})
}

func (s *Server) handleListRunLogs(c *gin.Context) {
	st, ok := s.loadStrategy(c)
	if !ok {
		return
	}
	var logs []models.RunLog
	if err := s.store.DB().Where("strategy_id = ?", st.ID).Order("started_at desc").Limit(100).Find(&logs).Error; err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, logs)
}

func (s *Server) handleGetRunTrace(c *gin.Context) {
	runID := c.Param("run_id")
	var steps []models.TraceStep
	if err := s.store.DB().Where("run_log_id = ?", runID).Order("step_index asc").Find(&steps).Error; err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, steps)
}

func (s *Server) handleListSignals(c *gin.Context) {
	st, ok := s.loadStrategy(c)
	if !ok {
		return
	}
	var signals []models.Signal
	if err := s.store.DB().Where("strategy_id = ?", st.ID).Order("created_at desc").Limit(200).Find(&signals).Error; err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, signals)
}

func (s *Server) handleAccountSnapshot(c *gin.Context) {
	snap, err := s.brokerSvc.Snapshot(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, snap)
}

func (s *Server) handleListPositions(c *gin.Context) {
	var positions []models.Position
	if err := s.store.DB().Find(&positions).Error; err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, positions)
}

func (s *Server) handleListTrades(c *gin.Context) {
	var trades []models.Trade
	if err := s.store.DB().Order("executed_at desc").Limit(200).Find(&trades).Error; err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, trades)
}

func (s *Server) handleClearCircuitBreaker(c *gin.Context) {
	if err := s.riskSvc.ClearCircuitBreaker(); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, gin.H{"circuit_breaker_active": false})
}
