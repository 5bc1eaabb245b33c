package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relaycrm/skillengine/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "skillengine",
	Short: "Run declarative skill workflows against configured LLM providers",
	Long: `skillengine executes declarative workflows: dependency-ordered steps that
mix deterministic compute functions with AI steps routed to the tenant's
configured providers. Workflows are authored as YAML; see the validate and
run subcommands.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		if err := logger.SetLogLevel(level); err != nil {
			logrus.WithError(err).Warn("invalid log level, using the default")
		}
		logger.SetLogFormat(format)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to the skillengine config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Warn("cancellation requested, shutting down")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
