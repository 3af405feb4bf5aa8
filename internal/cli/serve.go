package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haskel/foodia/internal/artifact"
	"github.com/haskel/foodia/internal/config"
	"github.com/haskel/foodia/internal/logger"
	"github.com/haskel/foodia/internal/monitor"
	"github.com/haskel/foodia/internal/nutrition"
	"github.com/haskel/foodia/internal/recognizer"
	"github.com/haskel/foodia/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions over HTTP",
	Long: `Start the inference server in the foreground. The model is loaded on the first
request; SIGHUP re-reads the config file and reloads the model and nutrition
table, so a newly trained artifact is served without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = host
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := newLogger(cfg)
	log.Info("foodia starting",
		"version", Version,
		"config", cfgFile,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg := monitor.NewAggregator(monitor.Default(cfg.Artifacts.Dir), monitor.DefaultInterval, logger.Component(log, "monitor"))
	if err := agg.Start(ctx); err != nil {
		return fmt.Errorf("failed to start aggregator: %w", err)
	}

	rec, store := openRecognizer(ctx, cfg, log)
	srv := server.New(cfg, rec, store, agg, logger.Component(log, "http"), Version)

	sighupCh := make(chan os.Signal, 1)
	sigCh := make(chan os.Signal, 1)
	shutdownDone := make(chan struct{})

	signal.Notify(sighupCh, syscall.SIGHUP)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case <-sighupCh:
				log.Info("SIGHUP received, reloading configuration and model")
				newCfg, err := config.LoadOrDefault(cfgFile)
				if err == nil {
					err = newCfg.Validate()
				}
				if err != nil {
					log.Error("invalid configuration, reload aborted", "error", err)
					continue
				}
				newRec, newStore := openRecognizer(ctx, newCfg, log)
				srv.Reload(newCfg, newRec, newStore)
			case <-shutdownDone:
				return
			}
		}
	}()

	go func() {
		<-sigCh
		log.Info("shutdown signal received")

		signal.Stop(sighupCh)
		signal.Stop(sigCh)
		close(shutdownDone)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		agg.Stop()
		cancel()
	}()

	// warm the model so /ready reflects the artifact at startup
	if err := rec.Err(); err != nil {
		log.Warn("no usable model yet; /predict will answer 503 until one is trained", "error", err)
	}

	log.Info("foodia ready", "addr", srv.Addr())
	if err := srv.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("foodia stopped")
	return nil
}

// openRecognizer builds a recognizer over the configured artifacts. A missing
// nutrition table falls back to keyword estimates.
func openRecognizer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*recognizer.Recognizer, *artifact.Store) {
	table, err := nutrition.LoadTable(ctx, cfg.Artifacts.NutritionDB)
	if err != nil {
		log.Warn("nutrition table unavailable, using keyword estimates", "path", cfg.Artifacts.NutritionDB, "error", err)
	}
	store := artifact.NewStore(cfg.Artifacts.Dir, logger.Component(log, "artifact"))
	return recognizer.New(store, table, logger.Component(log, "recognizer")), store
}
