package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/npiregistry/npiregistry/internal/platform/db"
)

// SwappedTable records what a swap did to one target table.
type SwappedTable struct {
	Table string
	// HadProduction is false on the very first import, when there was no
	// production table to move aside.
	HadProduction bool
}

// SwapTables promotes every shadow table to its production name inside tx.
// Each existing production table is renamed to its old alias first. Nothing
// is visible to other sessions until tx commits.
func SwapTables(ctx context.Context, tx pgx.Tx, lockTimeout time.Duration) ([]SwappedTable, error) {
	if lockTimeout > 0 {
		sql := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, sql); err != nil {
			return nil, fmt.Errorf("set lock_timeout: %w", err)
		}
	}

	var names []string
	for _, t := range TableNames() {
		names = append(names, t, ShadowName(t), OldName(t))
	}
	present, err := tablePresence(ctx, tx, names)
	if err != nil {
		return nil, err
	}
	for _, t := range TableNames() {
		if present[OldName(t)] {
			return nil, fmt.Errorf("%w: %s", ErrOldTablesPresent, OldName(t))
		}
		if !present[ShadowName(t)] {
			return nil, fmt.Errorf("%w: %s", ErrShadowMissing, ShadowName(t))
		}
	}

	swapped := make([]SwappedTable, 0, len(TargetTables))
	for _, t := range TableNames() {
		if present[t] {
			if err := rename(ctx, tx, t, OldName(t)); err != nil {
				return nil, err
			}
		}
		if err := rename(ctx, tx, ShadowName(t), t); err != nil {
			return nil, err
		}
		swapped = append(swapped, SwappedTable{Table: t, HadProduction: present[t]})
	}
	return swapped, nil
}

// DiscardOldTables drops the old aliases left by a swap. After this a
// rollback is no longer possible.
func DiscardOldTables(ctx context.Context, q db.Querier) ([]string, error) {
	var dropped []string
	for i := len(TargetTables) - 1; i >= 0; i-- {
		old := OldName(TargetTables[i].Name)
		ok, err := db.TableExists(ctx, q, old)
		if err != nil {
			return dropped, err
		}
		if !ok {
			continue
		}
		if _, err := q.Exec(ctx, "DROP TABLE "+db.QuoteIdent(old)+" CASCADE"); err != nil {
			return dropped, fmt.Errorf("drop %s: %w", old, err)
		}
		dropped = append(dropped, old)
	}
	return dropped, nil
}

func rename(ctx context.Context, q db.Querier, from, to string) error {
	sql := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", db.QuoteIdent(from), db.QuoteIdent(to))
	if _, err := q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	return nil
}
