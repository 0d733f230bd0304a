package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/stickies"
	"github.com/aretw0/stickies/pkg/config"
)

var (
	verbose    bool
	configPath string
	envFile    string
	adapter    string
	dataDir    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stickies",
	Short: "Sticky notes kept on your account or on this machine",
	Long: `Stickies manages sticky notes. Signed in, notes live on the server;
signed out, they are kept in a local storage file.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: stickies.yaml in . or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file with STICKIES_* variables")
	rootCmd.PersistentFlags().StringVar(&adapter, "adapter", "", "Local storage adapter (fs, sqlite, memory)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory of the local storage")
}

// openApp loads the configuration and opens a session. Callers must Close
// the app so pending writes reach the backend.
func openApp(ctx context.Context) *stickies.App {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		fatal("Failed to load config", err)
	}
	if adapter != "" {
		cfg.Storage.Adapter = adapter
	}
	if dataDir != "" {
		cfg.Storage.Dir = dataDir
	}

	opts, err := stickies.FromConfig(cfg)
	if err != nil {
		fatal("Invalid config", err)
	}
	// One-shot commands never live long enough to need a renewal.
	opts = append(opts,
		stickies.WithLogger(slog.Default()),
		stickies.WithAutoRefresh(false),
	)

	app, err := stickies.Open(ctx, opts...)
	if err != nil {
		fatal("Failed to open stickies", err)
	}
	return app
}

func closeApp(ctx context.Context, app *stickies.App) {
	if err := app.Close(ctx); err != nil {
		fatal("Some changes were not saved", err)
	}
}

// failApp exits like fatal, after closing app so pending writes are flushed.
func failApp(ctx context.Context, app *stickies.App, msg string, err error) {
	if cerr := app.Close(ctx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	fatal(msg, err)
}
