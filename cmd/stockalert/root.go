package main

import (
	"strings"

	"github.com/spf13/cobra"

	"stockalert/internal/config"
)

type commandContext struct {
	configFlag string
	env        config.Env
}

// load resolves the environment and the config path. The flag wins over
// STOCKALERT_CONFIG.
func (c *commandContext) load() error {
	if err := config.LoadEnv(&c.env); err != nil {
		return err
	}
	if p := strings.TrimSpace(c.configFlag); p != "" {
		c.env.ConfigPath = p
	}
	return nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "stockalert",
		Short:         "Inventory alert digests by email",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default $STOCKALERT_CONFIG or ./config.yaml)")

	root.AddCommand(newServeCommand(ctx))
	root.AddCommand(newRunCommand(ctx))
	return root
}
