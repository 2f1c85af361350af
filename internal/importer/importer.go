package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/npiregistry/npiregistry/internal/platform/db"
	"github.com/npiregistry/npiregistry/internal/platform/metrics"
)

// Options configure an Importer for the lifetime of one command.
type Options struct {
	// RequireValidation refuses a swap unless the current run validated
	// cleanly. When false the operator is only warned.
	RequireValidation   bool
	Grace               time.Duration
	LockTimeout         time.Duration
	IdentifierSlotBatch int
}

// SwapOptions are per-invocation knobs of the swap command.
type SwapOptions struct {
	// KeepOld leaves the old aliases in place so a rollback stays possible
	// until DiscardOld is called.
	KeepOld bool
	// Force swaps even when the validation policy would refuse.
	Force bool
}

// SwapResult describes a committed cutover.
type SwapResult struct {
	RunID     string
	Tables    []SwappedTable
	Discarded []string
	Duration  time.Duration
}

// Importer drives the bulk pipeline stages and records each transition in
// the import run log. Every stage takes the database handle explicitly.
type Importer struct {
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	opts        Options
	runs        RunLog
	transformer *Transformer
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
}

func New(logger zerolog.Logger, m *metrics.Metrics, opts Options) *Importer {
	logger = logger.With().Str("component", "importer").Logger()
	return &Importer{
		logger:      logger,
		metrics:     m,
		opts:        opts,
		transformer: NewTransformer(logger, m, opts.IdentifierSlotBatch),
		now:         time.Now,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (im *Importer) observe(stage string, start time.Time) {
	im.metrics.ObserveStage(stage, time.Since(start))
}

// Build creates empty shadow tables and starts a new import run.
func (im *Importer) Build(ctx context.Context, conn db.Conn) (*Run, error) {
	start := time.Now()
	defer im.observe("build", start)

	var run *Run
	err := db.InTx(ctx, conn, func(tx pgx.Tx) error {
		if err := BuildShadow(ctx, tx); err != nil {
			return err
		}
		var err error
		run, err = im.runs.Start(ctx, tx, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("build shadow tables: %w", err)
	}
	im.logger.Info().
		Str("stage", string(StageShadowBuilt)).
		Str("run_id", run.ID.String()).
		Strs("tables", shadowNames()).
		Dur("duration", time.Since(start)).
		Msg("shadow tables built")
	return run, nil
}

// Transform populates the shadow tables of the current run. conn must be a
// single session; the dedup table it creates is temporary.
func (im *Importer) Transform(ctx context.Context, conn db.Conn) (*TransformResult, error) {
	start := time.Now()
	defer im.observe("transform", start)

	run, err := im.runs.Latest(ctx, conn)
	if err != nil {
		return nil, err
	}
	if !CanTransition(run.Stage, StageTransformed) {
		return nil, fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, run.ID, run.Stage)
	}

	res, err := im.transformer.Transform(ctx, conn)
	if err != nil {
		return nil, err
	}
	if err := im.runs.Advance(ctx, conn, run, StageTransformed); err != nil {
		return nil, err
	}
	im.logger.Info().
		Str("stage", string(StageTransformed)).
		Str("run_id", run.ID.String()).
		Int64("staging_rows", res.StagingRows).
		Int64("providers", res.Providers).
		Int64("addresses", res.Addresses).
		Int64("taxonomies", res.Taxonomies).
		Int64("identifiers", res.Identifiers).
		Int64("officials", res.Officials).
		Dur("duration", res.Duration).
		Msg("transform complete")
	return res, nil
}

// Validate checks the shadow tables and stores the verdict on the run.
func (im *Importer) Validate(ctx context.Context, conn db.Conn) (*Report, error) {
	start := time.Now()
	defer im.observe("validate", start)

	run, err := im.runs.Latest(ctx, conn)
	if err != nil {
		return nil, err
	}
	if !CanTransition(run.Stage, StageValidated) {
		return nil, fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, run.ID, run.Stage)
	}

	report, err := Validate(ctx, conn, Shadow)
	if err != nil {
		return nil, err
	}
	if err := im.runs.RecordValidation(ctx, conn, run, report.Passed()); err != nil {
		return nil, err
	}

	for _, c := range report.Warnings() {
		im.logger.Warn().Str("check", c.Name).Int64("count", c.Count).Msg("validation warning")
	}
	for _, c := range report.Failed() {
		im.logger.Error().Str("check", c.Name).Int64("count", c.Count).Msg("validation failed")
	}
	im.logger.Info().
		Str("stage", string(StageValidated)).
		Str("run_id", run.ID.String()).
		Bool("passed", report.Passed()).
		Dur("duration", time.Since(start)).
		Msg("validation complete")
	return report, nil
}

// checkPolicy decides whether run may be swapped under the configured policy.
func (im *Importer) checkPolicy(run *Run, force bool) error {
	if run != nil && run.Validated() {
		return nil
	}
	reason := "no import run recorded"
	if run != nil {
		reason = fmt.Sprintf("run %s is %s", run.ID, run.Stage)
		if run.ValidationPassed != nil && !*run.ValidationPassed {
			reason = fmt.Sprintf("run %s failed validation", run.ID)
		}
	}
	if im.opts.RequireValidation && !force {
		return fmt.Errorf("%w: %s", ErrValidationRequired, reason)
	}
	im.logger.Warn().Str("reason", reason).Bool("forced", force).Msg("swapping without a passing validation")
	return nil
}

// Swap promotes the shadow tables in one transaction. Unless KeepOld is set
// it then waits out the grace period and drops the old aliases.
func (im *Importer) Swap(ctx context.Context, conn db.Conn, opts SwapOptions) (*SwapResult, error) {
	start := time.Now()
	defer im.observe("swap", start)

	run, err := im.runs.Latest(ctx, conn)
	if err != nil && !errors.Is(err, ErrNoRun) {
		return nil, err
	}
	if run != nil && !CanTransition(run.Stage, StageCutoverCommitted) {
		return nil, fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, run.ID, run.Stage)
	}
	if err := im.checkPolicy(run, opts.Force); err != nil {
		im.metrics.Cutover("refused")
		return nil, err
	}

	res := &SwapResult{}
	err = db.InTx(ctx, conn, func(tx pgx.Tx) error {
		tables, err := SwapTables(ctx, tx, im.opts.LockTimeout)
		if err != nil {
			return err
		}
		res.Tables = tables
		if run == nil {
			return nil
		}
		return im.runs.Advance(ctx, tx, run, StageCutoverCommitted)
	})
	if err != nil {
		im.metrics.Cutover("failed")
		return nil, fmt.Errorf("swap tables: %w", err)
	}
	im.metrics.Cutover("committed")
	if run != nil {
		res.RunID = run.ID.String()
	}
	im.logger.Info().
		Str("stage", string(StageCutoverCommitted)).
		Str("run_id", res.RunID).
		Dur("duration", time.Since(start)).
		Msg("tables swapped")

	if opts.KeepOld {
		res.Duration = time.Since(start)
		im.logger.Info().Msg("old tables kept; run import discard-old or import rollback")
		return res, nil
	}

	if err := im.sleep(ctx, im.opts.Grace); err != nil {
		return res, fmt.Errorf("grace period interrupted, old tables kept: %w", err)
	}
	dropped, err := im.DiscardOld(ctx, conn)
	if err != nil {
		return res, err
	}
	res.Discarded = dropped
	res.Duration = time.Since(start)
	return res, nil
}

// DiscardOld drops the old aliases left by a swap. This is the point after
// which a rollback is no longer possible.
func (im *Importer) DiscardOld(ctx context.Context, conn db.Conn) ([]string, error) {
	start := time.Now()
	defer im.observe("discard_old", start)

	var dropped []string
	err := db.InTx(ctx, conn, func(tx pgx.Tx) error {
		var err error
		dropped, err = DiscardOldTables(ctx, tx)
		if err != nil {
			return err
		}
		run, err := im.runs.Latest(ctx, tx)
		if errors.Is(err, ErrNoRun) {
			return nil
		}
		if err != nil {
			return err
		}
		if CanTransition(run.Stage, StageOldDropped) {
			return im.runs.Advance(ctx, tx, run, StageOldDropped)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discard old tables: %w", err)
	}
	im.metrics.Cutover("old_dropped")
	im.logger.Info().
		Str("stage", string(StageOldDropped)).
		Strs("tables", dropped).
		Dur("duration", time.Since(start)).
		Msg("old tables dropped")
	return dropped, nil
}

// Rollback drops shadow tables and restores old aliases in one transaction.
func (im *Importer) Rollback(ctx context.Context, conn db.Conn) (*RollbackResult, error) {
	start := time.Now()
	defer im.observe("rollback", start)

	var res *RollbackResult
	err := db.InTx(ctx, conn, func(tx pgx.Tx) error {
		var err error
		res, err = RollbackTables(ctx, tx, im.now())
		if err != nil {
			return err
		}
		run, err := im.runs.Latest(ctx, tx)
		if errors.Is(err, ErrNoRun) {
			return nil
		}
		if err != nil {
			return err
		}
		if CanTransition(run.Stage, StageRolledBack) {
			return im.runs.Advance(ctx, tx, run, StageRolledBack)
		}
		return nil
	})
	if err != nil {
		im.metrics.Cutover("rollback_failed")
		return nil, fmt.Errorf("rollback: %w", err)
	}
	im.metrics.Cutover("rolled_back")

	evt := im.logger.Info().
		Str("stage", string(StageRolledBack)).
		Strs("dropped_shadows", res.DroppedShadows).
		Strs("restored", res.Restored)
	for table, failed := range res.Quarantined {
		evt = evt.Str("quarantined_"+table, failed)
	}
	evt.Dur("duration", time.Since(start)).Msg("rollback complete")
	return res, nil
}

// Status returns the current stage and, if any, the run behind it.
func (im *Importer) Status(ctx context.Context, q db.Querier) (Stage, *Run, error) {
	return im.runs.Current(ctx, q)
}

// RunResult collects the outcome of Run.
type RunResult struct {
	Run       *Run
	Transform *TransformResult
	Report    *Report
}

// Run chains build, transform and validate. It never swaps; promotion stays
// a separate operator decision.
func (im *Importer) Run(ctx context.Context, conn db.Conn) (*RunResult, error) {
	run, err := im.Build(ctx, conn)
	if err != nil {
		return nil, err
	}
	res := &RunResult{Run: run}
	if res.Transform, err = im.Transform(ctx, conn); err != nil {
		return res, err
	}
	if res.Report, err = im.Validate(ctx, conn); err != nil {
		return res, err
	}
	return res, nil
}
