package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/finelagusaz/ghost-launcher/internal/app"
	"github.com/finelagusaz/ghost-launcher/internal/config"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

var (
	configPath string
	rootPath   string
	folders    []string

	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "ghostcat",
	Short: "Ghost catalog service",
	Long: `ghostcat keeps a searchable local catalog of the ghosts found under an
SSP root folder and any additional folders.

The catalog is refreshed by an external scanner process and served to UI
clients over HTTP with paginated, windowed search.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})))

		if cmd.Flags().Changed("root") {
			cfg.RootPath = rootPath
		}
		if cmd.Flags().Changed("folder") {
			cfg.AdditionalFolders = folders
		}

		application, err = app.Open(cfg)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		return application.Close()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&rootPath, "root", "", "SSP root folder (overrides config)")
	rootCmd.PersistentFlags().StringSliceVar(&folders, "folder", nil, "additional ghost folder, repeatable (overrides config)")

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
