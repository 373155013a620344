package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/internal/registry"
)

var (
	seedYAML string
	seedXLSX string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the organisation registry into the data source table",
	Long:  "Reads curated registry files (YAML and/or XLSX) and upserts them as data sources used for buyer classification.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		yamlPath := seedYAML
		if yamlPath == "" {
			yamlPath = cfg.Enrich.RegistryYAML
		}
		xlsxPath := seedXLSX
		if xlsxPath == "" {
			xlsxPath = cfg.Enrich.RegistryXLSX
		}
		if yamlPath == "" && xlsxPath == "" {
			return eris.New("seed: no registry file given; use --yaml or --xlsx")
		}

		var sources []model.DataSource
		if yamlPath != "" {
			loaded, err := registry.LoadYAML(yamlPath)
			if err != nil {
				return err
			}
			sources = append(sources, loaded...)
		}
		if xlsxPath != "" {
			loaded, err := registry.LoadXLSX(xlsxPath)
			if err != nil {
				return err
			}
			sources = append(sources, loaded...)
		}

		e, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.Store.UpsertDataSources(ctx, sources)
		if err != nil {
			return err
		}
		zap.L().Info("registry seeded",
			zap.Int("loaded", len(sources)),
			zap.Int64("upserted", n),
		)
		fmt.Fprintf(os.Stdout, "Seeded %d data sources.\n", len(sources))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedYAML, "yaml", "", "registry YAML file (default from config)")
	seedCmd.Flags().StringVar(&seedXLSX, "xlsx", "", "registry XLSX workbook (default from config)")
	rootCmd.AddCommand(seedCmd)
}
