package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/finelagusaz/ghost-launcher/internal/api"
	"github.com/finelagusaz/ghost-launcher/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP",
	Long: `Serve the catalog API, refresh the active configuration once at startup
and then on the configured schedule.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := application
		cfg := a.Config
		slog.Info("ghostcat starting",
			"version", version,
			"log_level", cfg.LogLevel,
			"http_addr", cfg.HTTPAddr,
			"db_path", cfg.DBPath,
			"root_path", cfg.RootPath,
			"additional_folders", cfg.AdditionalFolders)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sched := scheduler.New(cfg.Scanner.TimeoutDuration())
		if err := sched.SetRefresh(cfg.Schedule, func(ctx context.Context) error {
			slog.Info("scheduled refresh triggered")
			_, err := a.Refresh(ctx, false)
			return err
		}); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()

		// Show the cached catalog right away and bring it up to date behind it.
		go func() {
			if _, err := a.Refresh(ctx, false); err != nil {
				slog.Warn("startup refresh failed", "error", err)
			}
		}()

		srv, err := api.New(cfg.HTTPAddr, a, sched, version)
		if err != nil {
			return fmt.Errorf("build server: %w", err)
		}
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		slog.Info("ghostcat stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
