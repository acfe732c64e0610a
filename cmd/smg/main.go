package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lightseekorg/smg/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smg",
		Short:         "Launch and supervise model inference workers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	return root
}

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("config requires a subcommand: check")
		},
	}
	check := &cobra.Command{
		Use:     "check <path>",
		Short:   "Validate a serve configuration file",
		Example: "  smg config check serve.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (backend=%s model=%s mode=%s dp=%d)\n",
				args[0], cfg.Backend, cfg.Model, cfg.ConnectionMode, cfg.DPSize)
			return nil
		},
	}
	cfgCmd.AddCommand(check)
	return cfgCmd
}
