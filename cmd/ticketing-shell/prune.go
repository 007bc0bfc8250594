package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/ticketing-shell/config"
	"github.com/upb/ticketing-shell/internal/observability"
	"github.com/upb/ticketing-shell/repositories/postgres"
	"github.com/upb/ticketing-shell/services/audit"
	"go.uber.org/zap"
)

func newPruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune-events",
		Short: "Delete persisted auth events older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.New(ctx)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.Database == nil {
				return fmt.Errorf("no database configured")
			}
			if olderThan <= 0 {
				olderThan = cfg.Audit.Retention
			}

			logger, err := observability.NewLogger(cfg.Observability)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			factory, err := postgres.NewRepositoryFactory(*cfg.Database, cfg.AuditDatabase, logger)
			if err != nil {
				return err
			}
			defer factory.Close()

			svc := audit.NewService(factory.NewRepositories().AuthEvents, logger, audit.DefaultConfig())
			n, err := svc.Prune(ctx, olderThan)
			if err != nil {
				return err
			}
			logger.Info("auth event prune finished", zap.Int64("deleted", n), zap.Duration("older_than", olderThan))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d auth events\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "retention period (default AUDIT_RETENTION)")
	return cmd
}

func newHealthcheckCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the readiness endpoint of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				port := os.Getenv("PORT")
				if port == "" {
					port = "8080"
				}
				url = "http://127.0.0.1:" + port + "/readyz"
			}
			return probe(url)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "readiness URL (default http://127.0.0.1:$PORT/readyz)")
	return cmd
}

// probe performs a health check against the local server
func probe(url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status: %d", resp.StatusCode)
	}
	return nil
}
