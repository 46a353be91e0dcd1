package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/fieldtrack/services/ledger/config"
	"example.com/fieldtrack/services/ledger/internal/database"
	"example.com/fieldtrack/services/ledger/internal/messaging"
	"example.com/fieldtrack/services/ledger/internal/repository"
	"example.com/fieldtrack/services/ledger/internal/search"
	"example.com/fieldtrack/services/ledger/internal/service"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that reconciles completion progress and publishes execution events to the ERP feed`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	g, ctx := errgroup.WithContext(ctx)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
	}

	var bus messaging.ServiceBusClient
	if cfg.Azure.QueueConnStr != "" {
		bus, err = messaging.NewServiceBusClient(cfg.Azure)
		if err != nil {
			return err
		}
		defer bus.Close()
	} else {
		log.Warn().Msg("Azure Service Bus not configured, ERP feed disabled")
	}

	planRepo := repository.NewPlanRepository(db)
	baRepo := repository.NewBlockActivityRepository(db)
	execRepo := repository.NewExecutionRepository(db)

	reconciler := service.NewReconcilerService(planRepo, baRepo, execRepo)
	outbound := service.NewOutboundService(execRepo, elasticClient, bus)

	// Completion progress reconciliation job
	g.Go(func() error {
		log.Info().Dur("interval", cfg.Worker.ReconcileInterval).Msg("Starting reconciliation job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.ReconcileInterval),
			gocron.NewTask(func() {
				repaired, err := reconciler.ReconcileAll(ctx)
				if err != nil {
					log.Error().Err(err).Msg("Reconciliation run failed")
					return
				}
				if repaired > 0 {
					log.Info().Int("repaired", repaired).Msg("Reconciliation repaired drifted allocations")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	// ERP feed publisher job
	g.Go(func() error {
		log.Info().Dur("interval", cfg.Worker.PublishInterval).Msg("Starting outbound publisher job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.PublishInterval),
			gocron.NewTask(func() {
				published, err := outbound.PublishPending(ctx, cfg.Worker.PublishBatchSize)
				if err != nil {
					log.Error().Err(err).Msg("Outbound publish run failed")
					return
				}
				if published > 0 {
					log.Info().Int("published", published).Msg("Published execution events")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
