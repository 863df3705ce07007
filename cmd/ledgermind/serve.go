package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func serveCMD(open opener) *cobra.Command {
	var shutdownTimeout time.Duration
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the review and memory maintenance HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			lm, err := open()
			if err != nil {
				return err
			}
			defer lm.Close()

			if !lm.Config().HTTP.Enabled {
				return fmt.Errorf("http server is disabled; set http.enabled or LEDGERMIND_HTTP_ENABLED=true")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lm.StartMaintenance(ctx)

			errCh := make(chan error, 1)
			go func() { errCh <- lm.Serve() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return lm.Shutdown(shutdownCtx)
		},
	}
	serve.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	return serve
}
