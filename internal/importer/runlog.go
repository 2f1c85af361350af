package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/npiregistry/npiregistry/internal/platform/db"
)

// Stage is a bulk import pipeline state.
type Stage string

const (
	StageNoShadow         Stage = "no_shadow"
	StageShadowBuilt      Stage = "shadow_built"
	StageTransformed      Stage = "transformed"
	StageValidated        Stage = "validated"
	StageCutoverCommitted Stage = "cutover_committed"
	StageOldDropped       Stage = "old_dropped"
	StageRolledBack       Stage = "rolled_back"
)

var transitions = map[Stage][]Stage{
	StageNoShadow:         {StageShadowBuilt},
	StageShadowBuilt:      {StageTransformed, StageRolledBack},
	StageTransformed:      {StageTransformed, StageValidated, StageCutoverCommitted, StageRolledBack},
	StageValidated:        {StageTransformed, StageValidated, StageCutoverCommitted, StageRolledBack},
	StageCutoverCommitted: {StageOldDropped, StageRolledBack},
}

// CanTransition reports whether a run may move from one stage to another.
// Rebuilding shadow tables always starts a new run instead of transitioning.
func CanTransition(from, to Stage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Run is one row of import_runs.
type Run struct {
	ID               uuid.UUID
	Stage            Stage
	ValidationPassed *bool
	Note             string
	StartedAt        time.Time
	UpdatedAt        time.Time
}

// Validated reports whether the run holds a passing validation verdict.
func (r *Run) Validated() bool {
	return r.Stage == StageValidated && r.ValidationPassed != nil && *r.ValidationPassed
}

// RunLog persists import runs in import_runs.
type RunLog struct{}

const runColumns = `id, stage, validation_passed, COALESCE(note, ''), started_at, updated_at`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	var stage string
	if err := row.Scan(&r.ID, &stage, &r.ValidationPassed, &r.Note, &r.StartedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Stage = Stage(stage)
	return &r, nil
}

// Start records a new run in the shadow_built stage.
func (RunLog) Start(ctx context.Context, q db.Querier, note string) (*Run, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO import_runs (id, stage, note)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING `+runColumns,
		uuid.New(), string(StageShadowBuilt), note)
	r, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("start import run: %w", err)
	}
	return r, nil
}

// Latest returns the most recently started run, or ErrNoRun.
func (RunLog) Latest(ctx context.Context, q db.Querier) (*Run, error) {
	row := q.QueryRow(ctx, `SELECT `+runColumns+` FROM import_runs ORDER BY started_at DESC, updated_at DESC LIMIT 1`)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoRun
		}
		return nil, fmt.Errorf("load latest import run: %w", err)
	}
	return r, nil
}

// Current returns the pipeline stage, StageNoShadow when no run exists.
func (l RunLog) Current(ctx context.Context, q db.Querier) (Stage, *Run, error) {
	r, err := l.Latest(ctx, q)
	if errors.Is(err, ErrNoRun) {
		return StageNoShadow, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return r.Stage, r, nil
}

// Advance moves run to stage, enforcing the transition table. Entering the
// transformed stage clears any earlier validation verdict.
func (RunLog) Advance(ctx context.Context, q db.Querier, r *Run, to Stage) error {
	if !CanTransition(r.Stage, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Stage, to)
	}
	sql := `UPDATE import_runs SET stage = $2, updated_at = NOW() WHERE id = $1`
	if to == StageTransformed {
		sql = `UPDATE import_runs SET stage = $2, validation_passed = NULL, updated_at = NOW() WHERE id = $1`
	}
	if _, err := q.Exec(ctx, sql, r.ID, string(to)); err != nil {
		return fmt.Errorf("advance import run %s to %s: %w", r.ID, to, err)
	}
	r.Stage = to
	if to == StageTransformed {
		r.ValidationPassed = nil
	}
	return nil
}

// RecordValidation moves run to validated with the given verdict.
func (l RunLog) RecordValidation(ctx context.Context, q db.Querier, r *Run, passed bool) error {
	if !CanTransition(r.Stage, StageValidated) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Stage, StageValidated)
	}
	_, err := q.Exec(ctx, `
		UPDATE import_runs SET stage = $2, validation_passed = $3, updated_at = NOW()
		WHERE id = $1`, r.ID, string(StageValidated), passed)
	if err != nil {
		return fmt.Errorf("record validation for import run %s: %w", r.ID, err)
	}
	r.Stage = StageValidated
	r.ValidationPassed = &passed
	return nil
}
