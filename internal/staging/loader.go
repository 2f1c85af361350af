// Package staging copies NPPES feed files into the wide staging_providers
// table that the bulk importer transforms.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/npiregistry/npiregistry/internal/nppes"
	"github.com/npiregistry/npiregistry/internal/platform/metrics"
)

const Table = "staging_providers"

// Conn is what the loader needs from a pool, connection or transaction.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type Options struct {
	// Truncate empties staging before loading.
	Truncate bool
	// BatchSize is the number of rows sent per COPY.
	BatchSize int
}

type Result struct {
	Rows     int64
	Skipped  int
	Latin1   int
	Duration time.Duration
}

type Loader struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewLoader(logger zerolog.Logger, m *metrics.Metrics) *Loader {
	return &Loader{logger: logger.With().Str("component", "staging").Logger(), metrics: m}
}

// Load streams src into staging_providers. Rows the CSV parser rejects and
// rows without an NPI are skipped and counted.
func (l *Loader) Load(ctx context.Context, conn Conn, src io.Reader, opts Options) (*Result, error) {
	start := time.Now()
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}

	reader, err := nppes.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}

	if opts.Truncate {
		if _, err := conn.Exec(ctx, "TRUNCATE "+Table); err != nil {
			return nil, fmt.Errorf("truncate staging: %w", err)
		}
	}

	fields := nppes.StagingFields()
	columns := nppes.StagingColumns()
	res := &Result{}
	pending := make([][]any, 0, opts.BatchSize)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		copied, err := conn.CopyFrom(ctx, pgx.Identifier{Table}, columns, pgx.CopyFromRows(pending))
		if err != nil {
			return fmt.Errorf("copy %s: %w", Table, err)
		}
		res.Rows += copied
		l.metrics.AddRows(Table, copied)
		pending = pending[:0]
		return nil
	}

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if nppes.IsRowError(err) {
				res.Skipped++
				l.logger.Warn().Err(err).Msg("skipping malformed row")
				continue
			}
			return nil, fmt.Errorf("read feed: %w", err)
		}
		if rec.Get(nppes.FieldNPI) == "" {
			res.Skipped++
			continue
		}

		row := make([]any, len(fields))
		for i, f := range fields {
			if v := rec.Get(f); v != "" {
				row[i] = v
			}
		}
		pending = append(pending, row)

		if len(pending) >= opts.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
			l.logger.Debug().Int64("rows", res.Rows).Msg("staging batch copied")
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	res.Latin1 = reader.Latin1Bytes()
	res.Duration = time.Since(start)
	l.logger.Info().
		Int64("rows", res.Rows).
		Int("skipped", res.Skipped).
		Int("latin1_bytes", res.Latin1).
		Dur("duration", res.Duration).
		Msg("staging load complete")
	return res, nil
}
