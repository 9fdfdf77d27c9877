package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lightup/internal/app"
)

// stopGrace bounds the whole shutdown after a signal.
const stopGrace = 15 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the alarm daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(opts.configPath)
			if err != nil {
				return err
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			if err := a.Start(cmd.Context()); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return err
			}

			var reason app.StopReason
			select {
			case s := <-sigs:
				reason = app.StopSIGINT
				if s == syscall.SIGTERM {
					reason = app.StopSIGTERM
				}
			case <-a.Done():
				reason = app.StopFatalError
				if a.Err() == nil {
					reason = app.StopAppStop
				}
			case <-cmd.Context().Done():
				reason = app.StopAppStop
			}

			ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
			defer cancel()
			if err := a.Stop(ctx, reason); err != nil {
				return err
			}
			return a.Err()
		},
	}
}
