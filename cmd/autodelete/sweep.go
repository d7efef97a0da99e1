package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/autodelete/internal/config"
	"github.com/aatumaykin/autodelete/internal/discord"
	"github.com/aatumaykin/autodelete/internal/logger"
	"github.com/aatumaykin/autodelete/internal/retry"
	"github.com/aatumaykin/autodelete/internal/sweep"
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single sweep and exit",
	Long: `Run exactly one sweep over every configured channel and print a summary.
Exits 0 only if every channel was swept successfully.`,
	Run: sweepHandler,
}

func sweepHandler(cmd *cobra.Command, args []string) {
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

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		log.Error("Failed to create discord session", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := runOnce(ctx, cfg, session, log)
	if res != nil {
		printSummary(cmd.OutOrStdout(), res)
	}
	if err != nil {
		log.Error("Sweep failed", err)
		os.Exit(1)
	}
	if !res.Succeeded() {
		os.Exit(1)
	}
}

// runOnce checks the credential and runs one sweep.
func runOnce(ctx context.Context, cfg *config.Config, client discord.Client, log *logger.Logger) (*sweep.Result, error) {
	if _, err := retry.Do(ctx, retry.Config{MaxAttempts: cfg.Sweep.MaxRetries}, client.ValidateCredential); err != nil {
		return nil, fmt.Errorf("credential check failed: %w", err)
	}

	a, err := newApp(cfg, client, log, nil)
	if err != nil {
		return nil, err
	}
	return a.orchestrator.Run(ctx, a.policy)
}

func printSummary(w io.Writer, res *sweep.Result) {
	fmt.Fprintf(w, "Sweep %s (%s)\n", res.ID, res.Status())
	for _, c := range res.Channels {
		mark := "✅"
		switch c.Outcome {
		case sweep.OutcomePartialFailure:
			mark = "⚠️"
		case sweep.OutcomeHardFailure:
			mark = "❌"
		}
		fmt.Fprintf(w, "  %s %s: evaluated %d, deleted %d, failed %d\n",
			mark, c.ChannelID, c.Evaluated, c.Deleted, c.Failed)
		if c.Err != nil {
			fmt.Fprintf(w, "     %v\n", c.Err)
		}
	}
	evaluated, deleted, failed := res.Totals()
	fmt.Fprintf(w, "Total: evaluated %d, deleted %d, failed %d in %s\n",
		evaluated, deleted, failed, res.Duration().Round(time.Millisecond))
}
