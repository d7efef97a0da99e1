package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/autodelete/internal/config"
	"github.com/aatumaykin/autodelete/internal/discord"
	"github.com/aatumaykin/autodelete/internal/logger"
	"github.com/aatumaykin/autodelete/internal/metrics"
	"github.com/aatumaykin/autodelete/internal/retry"
	"github.com/aatumaykin/autodelete/internal/supervisor"
	"github.com/aatumaykin/autodelete/internal/version"
)

const credentialCheckTimeout = 30 * time.Second

var serveMetrics bool

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run sweeps forever (main command)",
	Long: `Validate the bot credential, sweep every configured channel immediately and
then keep sweeping on a schedule until SIGINT or SIGTERM.

Without an explicit sweep.schedule the interval is a tenth of the shortest
configured retention.`,
	Run: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveMetrics {
		cfg.Metrics.Enabled = true
	}

	if err := serve(ctx, cfg, log); err != nil {
		log.Error("autodelete stopped with error", err)
		os.Exit(1)
	}
	log.Info("👋 autodelete stopped gracefully")
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Info("🚀 Starting autodelete", append(version.Fields(),
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "channels", Value: len(cfg.Retention.Channels)},
		logger.Field{Key: "delete_pinned", Value: cfg.Retention.DeletePinned})...)

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, credentialCheckTimeout)
	user, err := retry.Do(checkCtx, retry.Config{MaxAttempts: cfg.Sweep.MaxRetries}, session.ValidateCredential)
	cancel()
	if err != nil {
		return fmt.Errorf("credential check failed: %w", err)
	}
	log.Info("✅ Logged in",
		logger.Field{Key: "bot_id", Value: user.ID},
		logger.Field{Key: "bot_username", Value: user.Username})

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	a, err := newApp(cfg, session, log, registerer(reg))
	if err != nil {
		return err
	}
	if a.policy.Len() == 0 {
		log.Warn("no channels configured; sweeps will do nothing")
	}

	if reg != nil {
		srv, err := metrics.Listen(cfg.Metrics.Listen, reg, log)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Error("metrics server failed", err)
			}
		}()
		log.Info("📈 Metrics endpoint started", logger.Field{Key: "addr", Value: srv.Addr()})
	}

	var next supervisor.Recorder
	if a.metrics != nil {
		next = a.metrics
	}
	sup, err := supervisor.New(a.orchestrator, a.policy, supervisor.Config{Schedule: cfg.Sweep.Schedule}, log, next)
	if err != nil {
		return err
	}

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerer avoids handing a typed nil *Registry to code checking for a nil interface.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

func init() {
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", false, "Expose Prometheus metrics regardless of metrics.enabled")
}
