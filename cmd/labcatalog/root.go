package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"labcatalog/internal/config"
	"labcatalog/internal/observability"
)

// globals are resolved once in PersistentPreRunE.
type globals struct {
	configPath string
	cfg        config.Config
	log        *zap.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "labcatalog",
		Short: "Catalog of microscopy plates, sections and their images",
		Long: `labcatalog indexes plate images by well, site and channel and joins them
with the experimental layout: cells, compounds and imaging stacks.

Settings come from built-in defaults, the optional --config TOML file and
LABCATALOG_* environment variables, in that order.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			log, err := observability.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			g.cfg, g.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.log != nil {
				_ = g.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a TOML configuration file")

	root.AddCommand(newServeCmd(g), newSeedCmd(g), newVersionCmd())
	return root
}
