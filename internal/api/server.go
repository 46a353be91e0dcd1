package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fieldtrack/services/ledger/config"
	"example.com/fieldtrack/services/ledger/internal/api/handlers"
	"example.com/fieldtrack/services/ledger/internal/api/middleware"
	"example.com/fieldtrack/services/ledger/internal/repository"
	"example.com/fieldtrack/services/ledger/internal/service"
	"example.com/fieldtrack/services/ledger/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config           config.Config
	router           *gin.Engine
	httpServer       *http.Server
	planService      service.PlanService
	executionService service.ExecutionService
	materialService  service.MaterialService
	dosageService    service.DosageService
	blockRepo        repository.BlockRepository
	tracer           tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	planService service.PlanService,
	executionService service.ExecutionService,
	materialService service.MaterialService,
	dosageService service.DosageService,
	blockRepo repository.BlockRepository,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:           cfg,
		planService:      planService,
		executionService: executionService,
		materialService:  materialService,
		dosageService:    dosageService,
		blockRepo:        blockRepo,
		tracer:           tracer,
	}

	server.router = server.setupRouter()

	server.httpServer = &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      server.router,
		ReadTimeout:  cfg.ServerTimeout,
		WriteTimeout: cfg.ServerTimeout,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Logger())
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	planHandler := handlers.NewPlanHandler(s.planService, s.materialService, s.tracer)
	planHandler.RegisterRoutes(v1)

	executionHandler := handlers.NewExecutionHandler(s.executionService, s.dosageService, s.blockRepo, s.tracer)
	executionHandler.RegisterRoutes(v1)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
