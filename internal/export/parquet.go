// Package export writes snapshots of the production registry for offline
// analysis.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/npiregistry/npiregistry/internal/platform/db"
	"github.com/npiregistry/npiregistry/internal/platform/metrics"
)

// ProviderRow is one active provider with its primary taxonomy and practice
// location flattened into columns. Missing values are empty strings.
type ProviderRow struct {
	NPI                        string `parquet:"npi"`
	EntityType                 int32  `parquet:"entity_type"`
	FirstName                  string `parquet:"first_name"`
	LastName                   string `parquet:"last_name"`
	OrganizationName           string `parquet:"organization_name"`
	Credential                 string `parquet:"credential"`
	Gender                     string `parquet:"gender"`
	EnumerationDate            string `parquet:"enumeration_date"`
	LastUpdateDate             string `parquet:"last_update_date"`
	TaxonomyCode               string `parquet:"taxonomy_code"`
	TaxonomyClass              string `parquet:"taxonomy_classification"`
	TaxonomySpecialty          string `parquet:"taxonomy_specialization"`
	TaxonomyCount              int32  `parquet:"taxonomy_count"`
	LocationAddress            string `parquet:"location_address_1"`
	LocationCity               string `parquet:"location_city"`
	LocationState              string `parquet:"location_state"`
	LocationPostalCode         string `parquet:"location_postal_code"`
	LocationTelephone          string `parquet:"location_telephone"`
	AuthorizedOfficialLastName string `parquet:"authorized_official_last_name"`
}

const (
	writeBatch    = 8192
	flushInterval = 100_000
)

// Writer appends ProviderRows to a Snappy-compressed parquet stream.
type Writer struct {
	writer *parquet.GenericWriter[ProviderRow]
	buf    []ProviderRow
	count  int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		writer: parquet.NewGenericWriter[ProviderRow](w,
			parquet.Compression(&parquet.Snappy),
			parquet.CreatedBy("npiregistry", "1", ""),
		),
		buf: make([]ProviderRow, 0, writeBatch),
	}
}

// Write buffers row and writes a batch when the buffer is full. Row groups
// are flushed periodically to bound memory use.
func (w *Writer) Write(row ProviderRow) error {
	w.buf = append(w.buf, row)
	if len(w.buf) < writeBatch {
		return nil
	}
	return w.flushBuffer()
}

func (w *Writer) flushBuffer() error {
	if len(w.buf) == 0 {
		return nil
	}
	before := w.count
	n, err := w.writer.Write(w.buf)
	w.count += n
	w.buf = w.buf[:0]
	if err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if w.count/flushInterval != before/flushInterval {
		if err := w.writer.Flush(); err != nil {
			return fmt.Errorf("flush parquet row group: %w", err)
		}
	}
	return nil
}

// Close writes buffered rows and the parquet footer. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if err := w.flushBuffer(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// Count returns the number of rows written so far, excluding buffered rows.
func (w *Writer) Count() int { return w.count }

type Exporter struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewExporter(logger zerolog.Logger, m *metrics.Metrics) *Exporter {
	return &Exporter{logger: logger.With().Str("component", "export").Logger(), metrics: m}
}

const activeProvidersSQL = `
	SELECT
		p.npi, p.entity_type,
		COALESCE(p.first_name, ''), COALESCE(p.last_name, ''),
		COALESCE(p.organization_name, ''), COALESCE(p.credential, ''),
		COALESCE(p.gender, ''),
		COALESCE(TO_CHAR(p.enumeration_date, 'YYYY-MM-DD'), ''),
		COALESCE(TO_CHAR(p.last_update_date, 'YYYY-MM-DD'), ''),
		COALESCE(t.code, ''), COALESCE(t.classification, ''), COALESCE(t.specialization, ''),
		(SELECT COUNT(*) FROM provider_taxonomies x WHERE x.provider_id = p.id)::int,
		COALESCE(loc.address_1, ''), COALESCE(loc.city_name, ''), COALESCE(s.code, ''),
		COALESCE(loc.postal_code, ''), COALESCE(loc.telephone, ''),
		COALESCE(ao.last_name, '')
	FROM providers p
	LEFT JOIN provider_taxonomies pt ON pt.provider_id = p.id AND pt.is_primary
	LEFT JOIN taxonomies t ON t.id = pt.taxonomy_id
	LEFT JOIN addresses loc ON loc.provider_id = p.id AND loc.address_purpose = 'LOCATION'
	LEFT JOIN states s ON s.id = loc.state_id
	LEFT JOIN authorized_officials ao ON ao.provider_id = p.id
	WHERE p.deactivation_date IS NULL
	ORDER BY p.npi`

// Export streams every active provider into w and returns the row count.
func (e *Exporter) Export(ctx context.Context, q db.Querier, w io.Writer) (int, error) {
	start := time.Now()
	rows, err := q.Query(ctx, activeProvidersSQL)
	if err != nil {
		return 0, fmt.Errorf("query active providers: %w", err)
	}
	defer rows.Close()

	pw := NewWriter(w)
	for rows.Next() {
		var r ProviderRow
		if err := rows.Scan(&r.NPI, &r.EntityType, &r.FirstName, &r.LastName,
			&r.OrganizationName, &r.Credential, &r.Gender, &r.EnumerationDate, &r.LastUpdateDate,
			&r.TaxonomyCode, &r.TaxonomyClass, &r.TaxonomySpecialty, &r.TaxonomyCount,
			&r.LocationAddress, &r.LocationCity, &r.LocationState, &r.LocationPostalCode,
			&r.LocationTelephone, &r.AuthorizedOfficialLastName); err != nil {
			return pw.Count(), fmt.Errorf("scan provider row: %w", err)
		}
		if err := pw.Write(r); err != nil {
			return pw.Count(), err
		}
	}
	if err := rows.Err(); err != nil {
		return pw.Count(), fmt.Errorf("read active providers: %w", err)
	}
	if err := pw.Close(); err != nil {
		return pw.Count(), err
	}

	e.metrics.AddRows("export_parquet", int64(pw.Count()))
	e.metrics.ObserveStage("export", time.Since(start))
	e.logger.Info().Int("rows", pw.Count()).Dur("duration", time.Since(start)).Msg("parquet export complete")
	return pw.Count(), nil
}

// ExportFile writes the export to path, removing the file if the export
// fails part way.
func (e *Exporter) ExportFile(ctx context.Context, q db.Querier, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create parquet file: %w", err)
	}
	n, err := e.Export(ctx, q, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close parquet file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return n, err
	}
	return n, nil
}
