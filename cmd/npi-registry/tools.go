package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/npiregistry/npiregistry/internal/export"
	"github.com/npiregistry/npiregistry/internal/health"
	"github.com/npiregistry/npiregistry/internal/reconcile"
)

func updateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <csv>",
		Short: "Apply a weekly or monthly NPPES update file to production",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			identifiers := a.cfg.ReconcileIdentifiers
			if cmd.Flags().Changed("identifiers") {
				identifiers, _ = cmd.Flags().GetBool("identifiers")
			}
			r := reconcile.New(a.logger, a.metrics, reconcile.Options{
				ProgressEvery: a.cfg.ReconcileProgressEvery,
				Identifiers:   identifiers,
			})
			res, err := r.Run(ctx, a.pool, args[0])
			if res != nil {
				if _, werr := res.WriteTo(cmd.OutOrStdout()); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}
	cmd.Flags().Bool("identifiers", false, "Also replace other-identifier rows (default RECONCILE_IDENTIFIERS)")
	return cmd
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the production registry for completeness and integrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := health.NewReporter(a.logger, a.cfg.HealthMinProviders).Check(ctx, a.pool)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), report.Summary())
			}
			if !report.Healthy {
				return errors.New("registry is unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export registry snapshots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "parquet <out>",
		Short: "Write active providers to a Parquet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			n, err := export.NewExporter(a.logger, a.metrics).ExportFile(ctx, a.pool, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d providers to %s in %s\n", n, args[0], time.Since(start).Round(time.Millisecond))
			return nil
		},
	})
	return cmd
}
