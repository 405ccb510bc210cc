package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cronpump/internal/app"
)

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var stopGrace time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler until interrupted",
		Long: `Run loads the config, registers its schedules and evaluates them every
second. SIGINT or SIGTERM starts a graceful stop: running tasks are
cancelled and awaited. A second signal, or --stop-grace elapsing, forces
the exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), rootOpts.ConfigPath, stopGrace)
		},
	}
	cmd.Flags().DurationVar(&stopGrace, "stop-grace", 0, "upper bound for the graceful stop (0 = config runtime.stop_timeout)")
	return cmd
}

func runRun(parent context.Context, cfgPath string, stopGrace time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	// Restore default signal handling so a second signal kills the process.
	cancel()

	stopCtx := context.Background()
	if stopGrace > 0 {
		var stopCancel context.CancelFunc
		stopCtx, stopCancel = context.WithTimeout(stopCtx, stopGrace)
		defer stopCancel()
	}
	_ = a.Stop(stopCtx, reason)
	return a.Err()
}
