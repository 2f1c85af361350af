package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/npiregistry/npiregistry/internal/importer"
	"github.com/npiregistry/npiregistry/internal/staging"
)

func stagingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage the raw NPPES staging table",
	}

	loadCmd := &cobra.Command{
		Use:   "load <csv>",
		Short: "Copy an NPPES CSV file into staging_providers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			truncate, _ := cmd.Flags().GetBool("truncate")

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open staging file: %w", err)
			}
			defer f.Close()

			res, err := staging.NewLoader(a.logger, a.metrics).Load(ctx, a.pool, f, staging.Options{
				Truncate:  truncate,
				BatchSize: a.cfg.StagingCopyBatch,
			})
			if err != nil {
				return err
			}
			p := message.NewPrinter(language.English)
			p.Fprintf(cmd.OutOrStdout(), "Loaded %d rows into %s (%d skipped, %d Latin-1 decoded) in %s\n",
				res.Rows, staging.Table, res.Skipped, res.Latin1, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	loadCmd.Flags().Bool("truncate", false, "Empty the staging table before loading")
	cmd.AddCommand(loadCmd)
	return cmd
}

// withImporter runs fn on a single pinned connection. The transform stage
// relies on session-scoped temporary tables.
func withImporter(cmd *cobra.Command, fn func(ctx context.Context, im *importer.Importer, conn *pgxpool.Conn) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	opts := importer.Options{
		RequireValidation:   a.cfg.RequiresValidation(),
		Grace:               a.cfg.CutoverGrace,
		LockTimeout:         a.cfg.CutoverLockTimeout,
		IdentifierSlotBatch: a.cfg.IdentifierSlotBatch,
	}
	if f := cmd.Flags().Lookup("grace"); f != nil && f.Changed {
		opts.Grace, _ = cmd.Flags().GetDuration("grace")
	}
	return fn(ctx, importer.New(a.logger, a.metrics, opts), conn)
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import pipeline over shadow tables",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Create empty shadow tables and start a new import run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImporter(cmd, func(ctx context.Context, im *importer.Importer, conn *pgxpool.Conn) error {
				run, err := im.Build(ctx, conn)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Shadow tables built for run %s\n", run.ID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "transform",
		Short: "Populate shadow tables from staging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImporter(cmd, func(ctx context.Context, im *importer.Importer, conn *pgxpool.Conn) error {
				res, err := im.Transform(ctx, conn)
				if err != nil {
					return err
				}
				printTransform(cmd.OutOrStdout(), res)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Run integrity checks against the shadow tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImporter(cmd, func(ctx context.Context, im *importer.Importer, conn *pgxpool.Conn) error {
				report, err := im.Validate(ctx, conn)
				if err != nil {
					return err
				}
				if _, err := report.WriteTo(cmd.OutOrStdout()); err != nil {
					return err
				}
				if !report.Passed() {
					return errors.New("validation failed")
				}
				return nil
			})
		},
	})

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Promote shadow tables to production in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			keepOld, _ := cmd.Flags().GetBool("keep-old")
			force, _ := cmd.Flags().GetBool("force")

			return withImporter(cmd, func(ctx context.Context, im *importer.Importer, conn *pgxpool.Conn) error {
				res, err := im.Swap(ctx, conn, importer.SwapOptions{KeepOld: keepOld, Force: force})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, t := range res.Tables {
					fmt.Fprintf(out, "  %-24s promoted\n", t.Table)
				}
				switch {
				case keepOld:
					fmt.Fprintln(out, "Old tables kept; run 'import discard-old' or 'import rollback'.")
				case len(res.Discarded) > 0:
					fmt.Fprintf(out, "Dropped %d old table(s).\n", len(res.Discarded))
				}
				fmt.Fprintf(out, "Swap complete in %s\n", res.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
	swapCmd.Flags().Bool("keep-old", false, "Keep the _old tables so the swap can be rolled back")
	swapCmd.Flags().Duration("grace", 0, "Wait this long before dropping old tables (default CUTOVER_GRACE)")
	swapCmd.Flags().Bool("force", false, "Swap even if the cutover policy demands a passing validation")
	cmd.AddCommand(swapCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "discard-old",
		Short: "Drop the _old tables left by a swap",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImporter(cmd, func(ctx context.Context, im *importer.Importer, conn *pgxpool.Conn) error {
				dropped, err := im.DiscardOld(ctx, conn)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dropped %d old table(s).\n", len(dropped))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Drop shadow tables and restore the previous production tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImporter(cmd, func(ctx context.Context, im *importer.Importer, conn *pgxpool.Conn) error {
				res, err := im.Rollback(ctx, conn)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, t := range res.DroppedShadows {
					fmt.Fprintf(out, "  dropped %s\n", t)
				}
				restored := append([]string(nil), res.Restored...)
				sort.Strings(restored)
				for _, t := range restored {
					fmt.Fprintf(out, "  restored %s (replaced table kept as %s)\n", t, res.Quarantined[t])
				}
				fmt.Fprintln(out, "Rollback complete.")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Print row counts of the production tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := importer.Summarize(ctx, a.pool)
			if err != nil {
				return err
			}
			_, err = s.WriteTo(cmd.OutOrStdout())
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the stage of the latest import run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			stage, run, err := importer.RunLog{}.Current(ctx, a.pool)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), stage, run)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Build, transform and validate in sequence (never swaps)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImporter(cmd, func(ctx context.Context, im *importer.Importer, conn *pgxpool.Conn) error {
				res, err := im.Run(ctx, conn)
				if res != nil && res.Transform != nil {
					printTransform(cmd.OutOrStdout(), res.Transform)
				}
				if err != nil {
					return err
				}
				if _, err := res.Report.WriteTo(cmd.OutOrStdout()); err != nil {
					return err
				}
				if !res.Report.Passed() {
					return errors.New("validation failed; shadow tables left in place for inspection")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Ready to swap: run 'import swap'.")
				return nil
			})
		},
	})

	return cmd
}

func printTransform(w io.Writer, res *importer.TransformResult) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "Staging rows:         %12d\n", res.StagingRows)
	p.Fprintf(w, "Providers:            %12d\n", res.Providers)
	p.Fprintf(w, "Addresses:            %12d\n", res.Addresses)
	p.Fprintf(w, "Provider taxonomies:  %12d\n", res.Taxonomies)
	p.Fprintf(w, "Identifiers:          %12d\n", res.Identifiers)
	p.Fprintf(w, "Authorized officials: %12d\n", res.Officials)
	p.Fprintf(w, "Transform took %s\n", res.Duration.Round(time.Millisecond))
}

func printStatus(w io.Writer, stage importer.Stage, run *importer.Run) {
	if run == nil {
		fmt.Fprintf(w, "Stage: %s (no import run recorded)\n", stage)
		return
	}
	verdict := "not validated"
	if run.ValidationPassed != nil {
		verdict = "validation failed"
		if *run.ValidationPassed {
			verdict = "validation passed"
		}
	}
	fmt.Fprintf(w, "Run:     %s\nStage:   %s\nVerdict: %s\nStarted: %s\nUpdated: %s\n",
		run.ID, stage, verdict,
		run.StartedAt.Format(time.RFC3339), run.UpdatedAt.Format(time.RFC3339))
}
