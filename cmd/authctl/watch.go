package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/mmk-auth/internal/bootstrap"
	domainauth "github.com/target/mmk-auth/internal/domain/auth"
)

type watchOptions struct {
	duration time.Duration
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print session state changes until interrupted",
		Long: `Print the current session state, then every change pushed by the identity
backend (for example token expiry), until interrupted. When Prometheus is
enabled the auth metrics are served while watching.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, func(ctx context.Context, app *bootstrap.App) error {
				return runWatch(ctx, cmd, root, opts, app)
			})
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "for", 0, "stop after this long (0 watches until interrupted)")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts *watchOptions, app *bootstrap.App) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	if app.Metrics != nil && app.Config.Observability.Prometheus.Enabled {
		server := bootstrap.StartMetricsServer(app.Logger, app.Metrics.Prometheus, app.Config.Observability.Prometheus.Addr)
		defer func() {
			if err := bootstrap.ShutdownMetricsServer(context.WithoutCancel(ctx), server, app.Logger); err != nil {
				app.Logger.Error("metrics server shutdown failed", "error", err)
			}
		}()
	}

	states := make(chan domainauth.State, 16)
	unsubscribe := app.Session.Subscribe(func(st domainauth.State) {
		select {
		case states <- st:
		default:
			// Reader is behind; State() below always has the latest value.
		}
	})
	defer unsubscribe()

	out := cmd.OutOrStdout()
	if err := printState(out, root, app.Session.State()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-states:
			if err := printState(out, root, app.Session.State()); err != nil {
				return err
			}
		}
	}
}
