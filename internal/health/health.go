// Package health reports whether the production registry tables look like
// the result of a complete import.
package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/npiregistry/npiregistry/internal/platform/db"
)

// Coverage thresholds, as a fraction of all providers.
const (
	MinAddressCoverage  = 0.80
	MinTaxonomyCoverage = 0.80
	MinPrimaryCoverage  = 0.70

	MinStates     = 56
	MinTaxonomies = 40
)

// Stats are the raw figures the checks are evaluated on.
type Stats struct {
	Providers                int64 `json:"providers"`
	ProvidersWithAddress     int64 `json:"providers_with_address"`
	ProvidersWithTaxonomy    int64 `json:"providers_with_taxonomy"`
	ProvidersWithPrimary     int64 `json:"providers_with_primary"`
	OrphanedAddresses        int64 `json:"orphaned_addresses"`
	OrphanedTaxonomies       int64 `json:"orphaned_taxonomies"`
	DuplicateNPIs            int64 `json:"duplicate_npis"`
	MultiplePrimaryProviders int64 `json:"multiple_primary_providers"`
	States                   int64 `json:"states"`
	Taxonomies               int64 `json:"taxonomies"`
	SearchIndex              bool  `json:"search_index"`
}

type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

type Report struct {
	Healthy     bool      `json:"healthy"`
	Checks      []Check   `json:"checks"`
	Stats       Stats     `json:"stats"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Map returns the pass/fail outcome keyed by check name.
func (r *Report) Map() map[string]bool {
	m := make(map[string]bool, len(r.Checks))
	for _, c := range r.Checks {
		m[c.Name] = c.Passed
	}
	return m
}

// Summary renders the report as text, one check per line.
func (r *Report) Summary() string {
	var b strings.Builder
	passed := 0
	for _, c := range r.Checks {
		mark := "PASS"
		if c.Passed {
			passed++
		} else {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %-28s %s\n", mark, c.Name, c.Detail)
	}
	status := "HEALTHY"
	if !r.Healthy {
		status = "UNHEALTHY"
	}
	fmt.Fprintf(&b, "%d/%d checks passed: %s\n", passed, len(r.Checks), status)
	return b.String()
}

type Reporter struct {
	logger       zerolog.Logger
	minProviders int64
}

func NewReporter(logger zerolog.Logger, minProviders int64) *Reporter {
	return &Reporter{
		logger:       logger.With().Str("component", "health").Logger(),
		minProviders: minProviders,
	}
}

// Gather collects Stats from the production tables. It only reads.
func Gather(ctx context.Context, q db.Querier) (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		dst *int64
		sql string
	}{
		{&s.Providers, `SELECT COUNT(*) FROM providers`},
		{&s.ProvidersWithAddress, `SELECT COUNT(DISTINCT provider_id) FROM addresses`},
		{&s.ProvidersWithTaxonomy, `SELECT COUNT(DISTINCT provider_id) FROM provider_taxonomies`},
		{&s.ProvidersWithPrimary, `SELECT COUNT(DISTINCT provider_id) FROM provider_taxonomies WHERE is_primary`},
		{&s.OrphanedAddresses, `SELECT COUNT(*) FROM addresses a
			WHERE NOT EXISTS (SELECT 1 FROM providers p WHERE p.id = a.provider_id)`},
		{&s.OrphanedTaxonomies, `SELECT COUNT(*) FROM provider_taxonomies pt
			WHERE NOT EXISTS (SELECT 1 FROM providers p WHERE p.id = pt.provider_id)`},
		{&s.DuplicateNPIs, `SELECT COUNT(*) FROM (
			SELECT npi FROM providers GROUP BY npi HAVING COUNT(*) > 1) d`},
		{&s.MultiplePrimaryProviders, `SELECT COUNT(*) FROM (
			SELECT provider_id FROM provider_taxonomies WHERE is_primary
			GROUP BY provider_id HAVING COUNT(*) > 1) d`},
		{&s.States, `SELECT COUNT(*) FROM states`},
		{&s.Taxonomies, `SELECT COUNT(*) FROM taxonomies`},
	}
	for _, c := range counts {
		n, err := db.Count(ctx, q, c.sql)
		if err != nil {
			return nil, fmt.Errorf("health query: %w", err)
		}
		*c.dst = n
	}

	// Index names are deduplicated by PostgreSQL across cutovers, so the
	// search index is found by definition rather than by name.
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE schemaname = current_schema()
			  AND tablename = 'providers'
			  AND indexdef LIKE '%search_vector%'
		)`).Scan(&s.SearchIndex)
	if err != nil {
		return nil, fmt.Errorf("health query: search index: %w", err)
	}
	return s, nil
}

// Evaluate turns stats into checks against the thresholds.
func Evaluate(s Stats, minProviders int64) []Check {
	p := message.NewPrinter(language.English)
	coverage := func(name string, n int64, threshold float64) Check {
		ratio := 0.0
		if s.Providers > 0 {
			ratio = float64(n) / float64(s.Providers)
		}
		return Check{
			Name:   name,
			Passed: s.Providers > 0 && ratio >= threshold,
			Detail: p.Sprintf("%.1f%% (minimum %.0f%%)", ratio*100, threshold*100),
		}
	}
	zero := func(name string, n int64) Check {
		return Check{Name: name, Passed: n == 0, Detail: p.Sprintf("%d found", n)}
	}
	atLeast := func(name string, n, threshold int64) Check {
		return Check{Name: name, Passed: n >= threshold, Detail: p.Sprintf("%d (minimum %d)", n, threshold)}
	}

	searchDetail := "present"
	if !s.SearchIndex {
		searchDetail = "missing"
	}
	return []Check{
		atLeast("provider_count", s.Providers, minProviders),
		coverage("address_coverage", s.ProvidersWithAddress, MinAddressCoverage),
		coverage("taxonomy_coverage", s.ProvidersWithTaxonomy, MinTaxonomyCoverage),
		coverage("primary_taxonomy_coverage", s.ProvidersWithPrimary, MinPrimaryCoverage),
		{Name: "search_index", Passed: s.SearchIndex, Detail: searchDetail},
		zero("orphaned_addresses", s.OrphanedAddresses),
		zero("orphaned_taxonomies", s.OrphanedTaxonomies),
		zero("duplicate_npis", s.DuplicateNPIs),
		zero("multiple_primary_taxonomies", s.MultiplePrimaryProviders),
		atLeast("states_seeded", s.States, MinStates),
		atLeast("taxonomies_seeded", s.Taxonomies, MinTaxonomies),
	}
}

// Check gathers stats and evaluates them.
func (r *Reporter) Check(ctx context.Context, q db.Querier) (*Report, error) {
	stats, err := Gather(ctx, q)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Healthy:     true,
		Checks:      Evaluate(*stats, r.minProviders),
		Stats:       *stats,
		GeneratedAt: time.Now().UTC(),
	}
	for _, c := range report.Checks {
		if !c.Passed {
			report.Healthy = false
			r.logger.Warn().Str("check", c.Name).Str("detail", c.Detail).Msg("health check failed")
		}
	}
	return report, nil
}

// Handler serves the report as JSON, with 503 when any check fails.
func (r *Reporter) Handler(q db.Querier) echo.HandlerFunc {
	return func(c echo.Context) error {
		report, err := r.Check(c.Request().Context(), q)
		if err != nil {
			r.logger.Error().Err(err).Msg("health check query failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "error",
				"error":  err.Error(),
			})
		}
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, report)
	}
}
