// Package main is the entry point for the memoryd CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/pkg/app"

	_ "github.com/skillminer/memoryd/internal/gateway"
	_ "github.com/skillminer/memoryd/modules/embedder/hashing"
	_ "github.com/skillminer/memoryd/modules/index/chromem"
	_ "github.com/skillminer/memoryd/modules/memory/postgres"
	_ "github.com/skillminer/memoryd/modules/memory/sqlite"
	_ "github.com/skillminer/memoryd/modules/provider/anthropic"
	_ "github.com/skillminer/memoryd/modules/provider/openai"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are bound to the root command and shared by every subcommand.
type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
}

func (f *globalFlags) params() app.RunParams {
	return app.RunParams{
		ConfigPath: f.configPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
		DataDir:    f.dataDir,
		LogLevel:   f.logLevel,
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "memoryd",
		Short:         "Conversational memory service: short-term sessions and long-term recall",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Override the data directory")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	root.AddCommand(
		versionCmd(),
		startCmd(flags),
		configCmd(flags),
		recallCmd(flags),
		forgetCmd(flags),
		backfillCmd(flags),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "memoryd %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start memoryd with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), flags.params())
		},
	}
}
