package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/npiregistry/npiregistry/internal/platform/db"
)

// Check is one validation query and its outcome. Hard checks decide the
// report verdict; soft checks are sanity warnings.
type Check struct {
	Name   string
	Table  string
	Count  int64
	Hard   bool
	Passed bool
}

type Report struct {
	Generation Generation
	Checks     []Check
}

// Passed reports whether every hard check passed.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if c.Hard && !c.Passed {
			return false
		}
	}
	return true
}

// Failed returns the hard checks that did not pass.
func (r *Report) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if c.Hard && !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Warnings returns the soft checks that did not pass.
func (r *Report) Warnings() []Check {
	var warn []Check
	for _, c := range r.Checks {
		if !c.Hard && !c.Passed {
			warn = append(warn, c)
		}
	}
	return warn
}

// WriteTo prints the report as one line per check.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	fmt.Fprintf(&b, "Validation (%s tables)\n", r.Generation)
	for _, c := range r.Checks {
		mark := "ok  "
		switch {
		case !c.Passed && c.Hard:
			mark = "FAIL"
		case !c.Passed:
			mark = "warn"
		}
		b.WriteString(p.Sprintf("  [%s] %-40s %15d\n", mark, c.Name, c.Count))
	}
	verdict := "PASSED"
	if !r.Passed() {
		verdict = "FAILED"
	}
	fmt.Fprintf(&b, "Result: %s\n", verdict)
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

type validation struct {
	name  string
	table string
	sql   string
	// nonZero checks pass on a positive count; the others pass on zero.
	nonZero bool
	hard    bool
}

func validations(g Generation) []validation {
	providers := db.QuoteIdent(g.Table("providers"))
	var v []validation
	for _, name := range TableNames() {
		table := g.Table(name)
		v = append(v, validation{
			name:    table + " rows",
			table:   table,
			sql:     "SELECT COUNT(*) FROM " + db.QuoteIdent(table),
			nonZero: true,
		})
	}
	for _, child := range TableNames()[1:] {
		table := g.Table(child)
		v = append(v, validation{
			name:  "orphaned " + table,
			table: table,
			sql: fmt.Sprintf(`SELECT COUNT(*) FROM %s c
				WHERE NOT EXISTS (SELECT 1 FROM %s p WHERE p.id = c.provider_id)`,
				db.QuoteIdent(table), providers),
			hard: true,
		})
	}
	taxonomies := g.Table("provider_taxonomies")
	v = append(v,
		validation{
			name:  "providers with multiple primary taxonomies",
			table: taxonomies,
			sql: fmt.Sprintf(`SELECT COUNT(*) FROM (
				SELECT provider_id FROM %s
				WHERE is_primary
				GROUP BY provider_id
				HAVING COUNT(*) > 1
			) dupes`, db.QuoteIdent(taxonomies)),
			hard: true,
		},
		validation{
			name:  "duplicate NPIs",
			table: g.Table("providers"),
			sql: fmt.Sprintf(`SELECT COUNT(*) FROM (
				SELECT npi FROM %s GROUP BY npi HAVING COUNT(*) > 1
			) dupes`, providers),
			hard: true,
		},
	)
	return v
}

// Validate runs count and integrity queries against one generation of the
// target tables. It only reads.
func Validate(ctx context.Context, q db.Querier, g Generation) (*Report, error) {
	names := make([]string, 0, len(TargetTables))
	for _, n := range TableNames() {
		names = append(names, g.Table(n))
	}
	present, err := tablePresence(ctx, q, names)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if !present[n] {
			if g == Shadow {
				return nil, fmt.Errorf("%w: %s", ErrShadowMissing, n)
			}
			return nil, fmt.Errorf("%w: %s", ErrTableMissing, n)
		}
	}

	report := &Report{Generation: g}
	for _, v := range validations(g) {
		n, err := db.Count(ctx, q, v.sql)
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", v.name, err)
		}
		passed := n == 0
		if v.nonZero {
			passed = n > 0
		}
		report.Checks = append(report.Checks, Check{
			Name:   v.name,
			Table:  v.table,
			Count:  n,
			Hard:   v.hard,
			Passed: passed,
		})
	}
	return report, nil
}
