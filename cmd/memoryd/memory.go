package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	ctxengine "github.com/skillminer/memoryd/internal/context"
	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/security"
	"github.com/skillminer/memoryd/pkg/app"
)

// assemble builds a runtime for a one-shot command. Modules are provisioned
// but never started, so the caller must Close it.
func assemble(cmd *cobra.Command, params app.RunParams) (*app.Runtime, string, error) {
	cfg, cfgPath, err := app.LoadConfig(params)
	if err != nil {
		return nil, cfgPath, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, cfgPath, fmt.Errorf("creating data dir: %w", err)
	}
	if params.LogLevel == "" {
		cfg.Log.Level = "warn"
	}
	redactor := security.NewRedactor()
	for _, secret := range app.ConfigSecrets(cfg) {
		redactor.AddLiteral(secret)
	}
	logger, err := app.NewLogger(cmd.ErrOrStderr(), cfg.Log, redactor)
	if err != nil {
		return nil, cfgPath, err
	}
	rt, err := app.Assemble(cfg, logger)
	return rt, cfgPath, err
}

func recallCmd(flags *globalFlags) *cobra.Command {
	var (
		owner     string
		session   string
		render    bool
		maxTokens int
	)
	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Retrieve the long-term memories of an owner relevant to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := assemble(cmd, flags.params())
			if err != nil {
				return err
			}
			defer rt.Close()

			mc, err := rt.Orchestrator.BuildContext(cmd.Context(), owner, session, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if render {
				est, err := core.Lookup[ctxengine.TokenEstimator](rt.App.Context(), ctxengine.ServiceEstimator)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, ctxengine.Render(mc, est, ctxengine.RenderOptions{MaxTokens: maxTokens}))
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(mc)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner whose memories are searched (required)")
	cmd.Flags().StringVar(&session, "session", "cli", "Session ID used for the short-term view")
	cmd.Flags().BoolVar(&render, "render", false, "Print the prompt section instead of JSON")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Token budget of the rendered prompt (0 = unbounded)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func forgetCmd(flags *globalFlags) *cobra.Command {
	var (
		owner string
		turn  string
	)
	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Delete the long-term memories of an owner, or of one turn",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := assemble(cmd, flags.params())
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			if turn != "" {
				n, err := rt.Orchestrator.ForgetTurn(cmd.Context(), owner, turn)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %d records of turn %s\n", n, turn)
				return nil
			}
			res, err := rt.Orchestrator.ForgetOwner(cmd.Context(), owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted %d records of owner %s\n", res.Records, owner)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner whose memories are deleted (required)")
	cmd.Flags().StringVar(&turn, "turn", "", "Only delete the records derived from this turn")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func backfillCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed long-term records stored without a vector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return errors.New("--limit must not be negative")
			}
			rt, _, err := assemble(cmd, flags.params())
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.Orchestrator.LTM().Backfill(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d records\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum records to embed (0 = all)")
	return cmd
}
