package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/fieldtrack/services/ledger/config"
	"example.com/fieldtrack/services/ledger/internal/api"
	"example.com/fieldtrack/services/ledger/internal/cache"
	"example.com/fieldtrack/services/ledger/internal/database"
	"example.com/fieldtrack/services/ledger/internal/repository"
	"example.com/fieldtrack/services/ledger/internal/service"
	"example.com/fieldtrack/services/ledger/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for plans, executions and dosage resolution`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	redisCache, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	planRepo := repository.NewPlanRepository(db)
	blockRepo := repository.NewBlockRepository(db)
	execRepo := repository.NewExecutionRepository(db)
	ruleRepo := repository.NewDosageRuleRepository(db)
	pmRepo := repository.NewPlannedMaterialRepository(db)

	dosageService := service.NewDosageService(ruleRepo)
	planService := service.NewPlanService(db, planRepo, blockRepo, dosageService, redisCache)
	executionService := service.NewExecutionService(db, execRepo, planRepo, dosageService, redisCache, tracer)
	materialService := service.NewMaterialService(pmRepo, planRepo)

	server := api.NewServer(cfg, planService, executionService, materialService, dosageService, blockRepo, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
