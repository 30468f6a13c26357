package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/mtrsplit/internal/config"
	"github.com/JonMunkholm/mtrsplit/internal/core"
	"github.com/JonMunkholm/mtrsplit/internal/logging"
	"github.com/JonMunkholm/mtrsplit/internal/metrics"
	"github.com/JonMunkholm/mtrsplit/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunCmd(global *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify, enrich and write every MTR row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Run.DryRun = true
			}
			return runSplit(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Classify and count rows without creating tables or writing")

	return cmd
}

func newSchemaCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the destination tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			return ensureSchema(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func runSplit(ctx context.Context, cfg *config.Config, out io.Writer) error {
	ctx = logging.ContextWithRunID(ctx, uuid.New().String())
	logger := logging.FromContext(ctx)

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("connected to database", "driver", cfg.Database.Driver, "location", store.Location(cfg.Database))

	collector := metrics.New()
	observer := core.Observers{
		core.NewLogObserver(logger, cfg.Run.ProgressEvery),
		collector,
	}

	pipeline := core.NewPipeline(st, st, collector.InstrumentWriter(st), pipelineOptions(cfg), observer)
	result, runErr := pipeline.Run(ctx)

	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := collector.WriteTextfile(path); err != nil {
			logger.Warn("failed to write metrics", "path", path, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	if result.DryRun {
		fmt.Fprintf(out, "dry run: %d rows, %d filled, %d empty (nothing written to %s)\n",
			result.TotalRows, result.Filled, result.Empty, store.Location(cfg.Database))
		return nil
	}

	if len(result.CreatedTable) > 0 {
		slog.Info("created tables", "tables", strings.Join(result.CreatedTable, ", "))
	}
	fmt.Fprintf(out, "tables created and filled in database: %s\n", store.Location(cfg.Database))
	return nil
}

func ensureSchema(ctx context.Context, cfg *config.Config, out io.Writer) error {
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	created, err := core.NewPipeline(st, st, st, pipelineOptions(cfg), nil).EnsureSchema(ctx)
	if err != nil {
		return err
	}

	if len(created) == 0 {
		fmt.Fprintf(out, "destination tables already exist in database: %s\n", store.Location(cfg.Database))
		return nil
	}
	fmt.Fprintf(out, "created %s in database: %s\n", strings.Join(created, ", "), store.Location(cfg.Database))
	return nil
}

func pipelineOptions(cfg *config.Config) core.Options {
	return core.Options{
		Tables: core.Tables{
			Source:      cfg.Tables.Source,
			Regulations: cfg.Tables.Regulations,
			Units:       cfg.Tables.Units,
			Filled:      cfg.Tables.Filled,
			Empty:       cfg.Tables.Empty,
			IDColumn:    cfg.Tables.IDColumn,
		},
		Fields: core.Fields{
			Regulation: cfg.Columns.Regulation,
			Parameters: cfg.Columns.Parameters,
			BaseUnit:   cfg.Columns.BaseUnit,
		},
		RegulationColumns: core.RegulationColumns{
			Code:       cfg.Reference.RegulationCode,
			Title:      cfg.Reference.RegulationTitle,
			Annotation: cfg.Reference.RegulationAnnotation,
		},
		UnitColumns: core.UnitColumns{
			Code:  cfg.Reference.UnitCode,
			Name:  cfg.Reference.UnitName,
			Short: cfg.Reference.UnitShort,
		},
		Enrichment: core.EnrichmentColumns{
			RegulationTitle:      cfg.Enrichment.RegulationTitle,
			RegulationAnnotation: cfg.Enrichment.RegulationAnnotation,
			UnitName:             cfg.Enrichment.UnitName,
			UnitShort:            cfg.Enrichment.UnitShort,
		},
		DryRun: cfg.Run.DryRun,
	}
}
