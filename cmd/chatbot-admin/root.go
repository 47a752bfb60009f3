package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/config"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/logging"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/repository"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/service"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	dbDriver   string
	dbURL      string
}

// env is what a subcommand works against.
type env struct {
	cfg     *config.Config
	store   repository.Store
	service *service.Service
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "chatbot-admin",
		Short: "Operator tool for the chatbot database",
		Long: `chatbot-admin inspects and maintains the chatbot database directly.

It reads the same configuration as the server (CONFIG_FILE and environment
variables); --db-driver and --db-url override the database settings.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file path (default: $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&flags.dbDriver, "db-driver", "", "database driver: sqlite3, sqlite, postgres")
	rootCmd.PersistentFlags().StringVar(&flags.dbURL, "db-url", "", "database URL or file")

	rootCmd.AddCommand(
		newSessionsCmd(flags),
		newStatsCmd(flags),
		newClearCmd(flags),
		newWipeCmd(flags),
		newBackupCmd(flags),
		newPromptCmd(flags),
	)
	return rootCmd
}

// withEnv opens the database for the duration of fn.
func withEnv(ctx context.Context, flags *globalFlags, fn func(*env) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	store, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	// Command output goes to stdout; only warnings reach the log.
	logger, err := logging.New("warn", cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	svc := service.New(store, nil, nil, nil, cfg, logger)
	return fn(&env{cfg: cfg, store: store, service: svc})
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	path := flags.configFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if flags.dbDriver != "" {
		cfg.DatabaseDriver = flags.dbDriver
	}
	if flags.dbURL != "" {
		cfg.DatabaseURL = flags.dbURL
	}
	return cfg, nil
}
