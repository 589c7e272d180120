package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cmlabs-hris/hris-presence-go/internal/config"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/session"
)

var (
	cfg     *config.Config
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Geofence presence agent",
	Long:  "Tracks the device position against the office origin and checks in and out over the HRIS realtime channel.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.ValidateAgent(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		cfg = c

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional env file to load")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func credentialStore() *session.Store {
	return session.NewStore(cfg.Agent.CredentialFile)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
