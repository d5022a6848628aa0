package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/RezaEskandarii/recurfire/internal/logger"
	"github.com/RezaEskandarii/recurfire/types/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "recurfire",
	Short: "Recurring jobs on a durable Postgres task queue",
	Long: `recurfire keeps interval and cron jobs firing by chaining one-shot
tick tasks in Postgres. Run "recurfire serve" on every worker node and
manage jobs with the other commands.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading RECURFIRE_* variables")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(statsCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil {
		// A missing .env is normal outside development.
		logger.Logger.Debugw("no env file loaded", "path", envFile, "error", err)
	}

	s, err := loadSettings(newViper(), configFile)
	if err != nil {
		return err
	}
	if err := logger.Initialize(s.Log.JSON, s.Log.Level); err != nil {
		return err
	}
	cfg, err = s.toConfig()
	return err
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
