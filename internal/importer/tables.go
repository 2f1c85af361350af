// Package importer rebuilds the registry tables from staging_providers in
// shadow copies and swaps them into place in one transaction.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/npiregistry/npiregistry/internal/platform/db"
)

const (
	shadowSuffix = "_new"
	oldSuffix    = "_old"
	failedInfix  = "_failed_"
)

// ForeignKey is re-created on a shadow table after CREATE TABLE ... LIKE,
// which does not copy foreign keys. Shadowed references point at the shadow
// copy of the referenced table so that a generation only references itself.
type ForeignKey struct {
	Column   string
	RefTable string
	Shadowed bool
}

// TargetTable is a production table that has a shadow generation.
type TargetTable struct {
	Name        string
	ForeignKeys []ForeignKey
}

// TargetTables lists the tables rebuilt by a bulk import, parents first.
var TargetTables = []TargetTable{
	{Name: "providers"},
	{Name: "addresses", ForeignKeys: []ForeignKey{
		{Column: "provider_id", RefTable: "providers", Shadowed: true},
		{Column: "city_id", RefTable: "cities"},
		{Column: "state_id", RefTable: "states"},
	}},
	{Name: "provider_taxonomies", ForeignKeys: []ForeignKey{
		{Column: "provider_id", RefTable: "providers", Shadowed: true},
		{Column: "taxonomy_id", RefTable: "taxonomies"},
		{Column: "license_state_id", RefTable: "states"},
	}},
	{Name: "identifiers", ForeignKeys: []ForeignKey{
		{Column: "provider_id", RefTable: "providers", Shadowed: true},
		{Column: "state_id", RefTable: "states"},
	}},
	{Name: "authorized_officials", ForeignKeys: []ForeignKey{
		{Column: "provider_id", RefTable: "providers", Shadowed: true},
	}},
}

// TableNames returns the names of TargetTables in order.
func TableNames() []string {
	names := make([]string, len(TargetTables))
	for i, t := range TargetTables {
		names[i] = t.Name
	}
	return names
}

func ShadowName(table string) string { return table + shadowSuffix }

func OldName(table string) string { return table + oldSuffix }

// FailedName is the quarantine name given to a production table replaced by
// a rollback. The timestamp keeps repeated rollbacks from colliding.
func FailedName(table string, at time.Time) string {
	return table + failedInfix + at.UTC().Format("20060102150405")
}

// Generation selects which copy of the target tables a query runs against.
type Generation int

const (
	Shadow Generation = iota
	Production
)

func (g Generation) String() string {
	if g == Production {
		return "production"
	}
	return "shadow"
}

// Table maps a production table name onto this generation.
func (g Generation) Table(name string) string {
	if g == Shadow {
		return ShadowName(name)
	}
	return name
}

// BuildShadow drops any leftover shadow tables and creates empty ones with
// the production columns, defaults, identity, checks and indexes. It is
// safe to call again after a failed run.
func BuildShadow(ctx context.Context, q db.Querier) error {
	for i := len(TargetTables) - 1; i >= 0; i-- {
		shadow := ShadowName(TargetTables[i].Name)
		if _, err := q.Exec(ctx, "DROP TABLE IF EXISTS "+db.QuoteIdent(shadow)+" CASCADE"); err != nil {
			return fmt.Errorf("drop %s: %w", shadow, err)
		}
	}

	for _, t := range TargetTables {
		shadow := ShadowName(t.Name)
		sql := fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", db.QuoteIdent(shadow), db.QuoteIdent(t.Name))
		if _, err := q.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create %s: %w", shadow, err)
		}

		for _, fk := range t.ForeignKeys {
			ref := fk.RefTable
			if fk.Shadowed {
				ref = ShadowName(ref)
			}
			sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (id)",
				db.QuoteIdent(shadow),
				db.QuoteIdent(shadow+"_"+fk.Column+"_fkey"),
				db.QuoteIdent(fk.Column),
				db.QuoteIdent(ref),
			)
			if _, err := q.Exec(ctx, sql); err != nil {
				return fmt.Errorf("add foreign key %s.%s: %w", shadow, fk.Column, err)
			}
		}
	}
	return nil
}

// tablePresence reports which of the given names exist in the current schema.
func tablePresence(ctx context.Context, q db.Querier, names []string) (map[string]bool, error) {
	present := make(map[string]bool, len(names))
	for _, name := range names {
		ok, err := db.TableExists(ctx, q, name)
		if err != nil {
			return nil, err
		}
		present[name] = ok
	}
	return present, nil
}
