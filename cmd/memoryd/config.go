package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/config"
	"github.com/skillminer/memoryd/internal/security"
	"github.com/skillminer/memoryd/pkg/app"
)

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(flags), configShowCmd(flags))
	return cmd
}

func configCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := flags.params()
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			rt, cfgPath, err := assemble(cmd, params)
			if err != nil {
				return err
			}
			defer rt.Close()

			ids := rt.App.ModuleIDs()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %s (%d modules)\n", cfgPath, len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
}

func configShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := app.LoadConfig(flags.params())
			if err != nil {
				return err
			}
			doc, err := redactedDocument(cfg)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			return enc.Close()
		},
	}
}

// redactedDocument round-trips cfg through YAML into a generic map so the
// redactor can walk module sections it has no types for.
func redactedDocument(cfg *config.Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	security.NewRedactor().RedactMap(doc)
	return doc, nil
}
