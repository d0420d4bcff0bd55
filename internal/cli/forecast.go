package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/revforecast/internal/adapters/nhits"
	"github.com/okian/revforecast/internal/adapters/stdio"
	service "github.com/okian/revforecast/internal/app"
	"github.com/okian/revforecast/internal/config"
	"github.com/okian/revforecast/internal/domain/forecast"
	"github.com/okian/revforecast/pkg/logger"
	"github.com/okian/revforecast/pkg/metrics"
)

type forecastOptions struct {
	configPath string
	logLevel   string
	model      string
}

func newForecastCommand(opts *forecastOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forecast",
		Short: "Read one forecast request from stdin and answer on stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runForecast(cmd, opts)
		},
	}
}

func runForecast(cmd *cobra.Command, opts *forecastOptions) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		// The caller still expects a JSON answer on stdout.
		return stdio.New(nil, stdio.WithDiagnostics(stderr)).Reject(ctx, stdout, err)
	}

	level := new(slog.LevelVar)
	log := logger.New(stderr, logger.WithFormat(cfg.LogFormat), logger.WithLevelVar(level))
	if err := logger.SetLevelString(level, cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
	}
	runID := uuid.NewString()
	log = log.With(logger.String("run_id", runID))

	mgr := metrics.NewManager(metrics.WithCustomLabels(cfg.MetricsLabels))
	svc := service.New(
		service.WithLogger(log.Named("service")),
		service.WithMetrics(mgr),
		service.WithLearned(learnedTier(cfg, log, mgr)),
	)
	worker := stdio.New(svc,
		stdio.WithLogger(log.Named("stdio")),
		stdio.WithDiagnostics(stderr),
		stdio.WithMetrics(mgr),
	)

	runErr := worker.Run(ctx, cmd.InOrStdin(), stdout)
	exportMetrics(ctx, log, mgr, cfg, runID)
	return runErr
}

func loadConfig(ctx context.Context, opts *forecastOptions) (*config.Config, error) {
	cfg, err := config.Load(ctx, opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.model != "" {
		cfg.Model = opts.model
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// learnedTier builds the estimator tried before the mean heuristic.
func learnedTier(cfg *config.Config, log logger.Logger, mgr *metrics.Manager) forecast.Estimator {
	if cfg.Model == config.ModelSmoothing {
		return forecast.NewSmoothingEstimator(forecast.WithOnSubstitute(mgr.RecordSubstitutions))
	}
	return nhits.New(
		nhits.WithLogger(log.Named("nhits")),
		nhits.WithMetrics(mgr),
		nhits.WithModelOptions(
			forecast.WithMaxSteps(cfg.MaxSteps),
			forecast.WithHiddenUnits(cfg.HiddenUnits),
			forecast.WithWindowsBatchSize(cfg.WindowsBatchSize),
			forecast.WithRandomSeed(cfg.RandomSeed),
		),
	)
}

// exportMetrics flushes the run's metrics. Export failures are logged only;
// they never change the forecast outcome.
func exportMetrics(ctx context.Context, log logger.Logger, mgr *metrics.Manager, cfg *config.Config, runID string) {
	if err := mgr.WriteTextfile(cfg.MetricsTextfile); err != nil {
		log.Warn(ctx, "metrics textfile export failed", logger.Error(err))
	}
	if err := mgr.Push(cfg.PushgatewayURL, runID); err != nil {
		log.Warn(ctx, "metrics push failed", logger.Error(err))
	}
}
