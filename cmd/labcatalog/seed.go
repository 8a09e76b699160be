package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"labcatalog/internal/demo"
)

func newSeedCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Populate the configured catalog with demo data",
		Long: `seed writes placeholder images for one plate into the configured blob
store, ingests two time points and creates the cells, compounds, stacks,
sections and tags that describe them. It refuses to run twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), g.cfg, g.log, appOptions{})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.close(); err != nil {
					g.log.Warn("close store", zap.Error(err))
				}
			}()
			sum, err := demo.Seed(cmd.Context(), a.svc)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}
}
