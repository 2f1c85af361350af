// Package reconcile applies incremental NPPES update files to the live
// registry tables, one provider per transaction.
package reconcile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/npiregistry/npiregistry/internal/nppes"
	"github.com/npiregistry/npiregistry/internal/platform/db"
	"github.com/npiregistry/npiregistry/internal/platform/metrics"
)

type Options struct {
	// ProgressEvery is the number of records between progress log lines.
	ProgressEvery int
	// Identifiers enables identifier replacement. Off by default: it is the
	// widest part of a record and rarely changes between weekly files.
	Identifiers bool
}

type Result struct {
	Processed int           `json:"processed"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// WriteTo prints the run totals.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	b.WriteString(p.Sprintf("Processed: %d\n", r.Processed))
	b.WriteString(p.Sprintf("Created:   %d\n", r.Created))
	b.WriteString(p.Sprintf("Updated:   %d\n", r.Updated))
	b.WriteString(p.Sprintf("Errors:    %d\n", r.Errors))
	b.WriteString(fmt.Sprintf("Duration:  %s\n", r.Duration.Round(time.Millisecond)))
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// RecordError is a failure confined to one feed record.
type RecordError struct {
	Line int
	NPI  string
	Err  error
}

func (e *RecordError) Error() string {
	if e.NPI == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d (NPI %s): %v", e.Line, e.NPI, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

type Reconciler struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
	opts    Options
}

func New(logger zerolog.Logger, m *metrics.Metrics, opts Options) *Reconciler {
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 10000
	}
	return &Reconciler{
		logger:  logger.With().Str("component", "reconcile").Logger(),
		metrics: m,
		opts:    opts,
	}
}

// Run reconciles every record of the file at path. The file is scanned once
// up front so progress lines can estimate the time remaining.
func (r *Reconciler) Run(ctx context.Context, conn db.Conn, path string) (*Result, error) {
	total, err := nppes.CountRows(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open update file: %w", err)
	}
	defer f.Close()

	r.logger.Info().Str("path", path).Int("records", total).Msg("starting incremental update")
	return r.Reconcile(ctx, conn, f, total)
}

// Reconcile applies every record read from src. total is only used for
// progress estimates and may be zero. Record failures are logged and
// counted; only read errors and cancellation stop the run.
func (r *Reconciler) Reconcile(ctx context.Context, conn db.Conn, src io.Reader, total int) (*Result, error) {
	start := time.Now()
	reader, err := nppes.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	ref, err := loadReference(ctx, conn)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	finish := func() {
		res.Duration = time.Since(start)
		r.metrics.ObserveStage("reconcile", res.Duration)
	}

	for {
		if err := ctx.Err(); err != nil {
			finish()
			return res, err
		}
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !nppes.IsRowError(err) {
			finish()
			return res, fmt.Errorf("read feed: %w", err)
		}

		res.Processed++
		if err != nil {
			r.fail(res, &RecordError{Line: parseErrorLine(err), Err: err})
		} else if created, err := r.applyRecord(ctx, conn, ref, rec); err != nil {
			r.fail(res, err)
		} else if created {
			res.Created++
			r.metrics.RecordOutcome("created")
		} else {
			res.Updated++
			r.metrics.RecordOutcome("updated")
		}

		if res.Processed%r.opts.ProgressEvery == 0 {
			r.logProgress(res, total, time.Since(start))
		}
	}

	finish()
	r.logger.Info().
		Int("processed", res.Processed).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("errors", res.Errors).
		Dur("duration", res.Duration).
		Msg("incremental update complete")
	return res, nil
}

func (r *Reconciler) applyRecord(ctx context.Context, conn db.Beginner, ref *reference, rec nppes.Record) (bool, error) {
	entry, err := nppes.Decode(rec)
	if err != nil {
		return false, &RecordError{Line: rec.Line, NPI: rec.Get(nppes.FieldNPI), Err: err}
	}
	created, err := r.apply(ctx, conn, ref, entry)
	if err != nil {
		return false, &RecordError{Line: rec.Line, NPI: entry.NPI, Err: err}
	}
	return created, nil
}

func parseErrorLine(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.StartLine
	}
	return 0
}

func (r *Reconciler) fail(res *Result, err error) {
	res.Errors++
	r.metrics.RecordOutcome("error")
	evt := r.logger.Error().Err(err)
	var re *RecordError
	if errors.As(err, &re) {
		evt = evt.Int("line", re.Line).Str("npi", re.NPI)
	}
	evt.Msg("record failed")
}

func (r *Reconciler) logProgress(res *Result, total int, elapsed time.Duration) {
	rate, eta := progress(res.Processed, total, elapsed)
	r.logger.Info().
		Int("processed", res.Processed).
		Int("total", total).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("errors", res.Errors).
		Float64("rate", rate).
		Dur("eta", eta).
		Msg("progress")
}

// progress returns records per second and the estimated time left. The
// estimate is zero when total is unknown or already reached.
func progress(processed, total int, elapsed time.Duration) (float64, time.Duration) {
	if processed <= 0 || elapsed <= 0 {
		return 0, 0
	}
	rate := float64(processed) / elapsed.Seconds()
	remaining := total - processed
	if remaining <= 0 {
		return rate, 0
	}
	return rate, time.Duration(float64(remaining) / rate * float64(time.Second))
}

// Apply reconciles one entry in its own transaction and reports whether the
// provider was created.
func (r *Reconciler) Apply(ctx context.Context, conn db.Conn, e *nppes.Entry) (bool, error) {
	ref, err := loadReference(ctx, conn)
	if err != nil {
		return false, err
	}
	return r.apply(ctx, conn, ref, e)
}

func (r *Reconciler) apply(ctx context.Context, conn db.Beginner, ref *reference, e *nppes.Entry) (bool, error) {
	var created bool
	err := db.InTx(ctx, conn, func(tx pgx.Tx) error {
		id, inserted, err := upsertProvider(ctx, tx, e)
		if err != nil {
			return err
		}
		created = inserted
		if err := replaceAddresses(ctx, tx, ref, id, e.Addresses); err != nil {
			return err
		}
		if err := replaceTaxonomies(ctx, tx, ref, id, e.Taxonomies); err != nil {
			return err
		}
		if e.IsOrganization() && e.Official != nil {
			if err := replaceOfficial(ctx, tx, id, e.Official); err != nil {
				return err
			}
		}
		if r.opts.Identifiers {
			if err := replaceIdentifiers(ctx, tx, ref, id, e.Identifiers); err != nil {
				return err
			}
		}
		return nil
	})
	return created, err
}
