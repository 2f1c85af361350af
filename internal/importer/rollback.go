package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/npiregistry/npiregistry/internal/platform/db"
)

// RollbackResult lists what a rollback touched.
type RollbackResult struct {
	DroppedShadows []string
	Restored       []string
	// Quarantined maps each restored table to the name its replaced
	// production copy now carries.
	Quarantined map[string]string
}

// RollbackTables drops every shadow table and, for each table with an old
// alias, moves the current production table to a timestamped failed name
// and restores the old alias. Run it inside a transaction so production
// switches back in one step.
func RollbackTables(ctx context.Context, q db.Querier, at time.Time) (*RollbackResult, error) {
	res := &RollbackResult{Quarantined: make(map[string]string)}

	for i := len(TargetTables) - 1; i >= 0; i-- {
		shadow := ShadowName(TargetTables[i].Name)
		ok, err := db.TableExists(ctx, q, shadow)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, err := q.Exec(ctx, "DROP TABLE "+db.QuoteIdent(shadow)+" CASCADE"); err != nil {
			return nil, fmt.Errorf("drop %s: %w", shadow, err)
		}
		res.DroppedShadows = append(res.DroppedShadows, shadow)
	}

	for _, t := range TableNames() {
		old := OldName(t)
		ok, err := db.TableExists(ctx, q, old)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		current, err := db.TableExists(ctx, q, t)
		if err != nil {
			return nil, err
		}
		if current {
			failed := FailedName(t, at)
			if err := rename(ctx, q, t, failed); err != nil {
				return nil, err
			}
			res.Quarantined[t] = failed
		}
		if err := rename(ctx, q, old, t); err != nil {
			return nil, err
		}
		res.Restored = append(res.Restored, t)
	}

	if len(res.DroppedShadows) == 0 && len(res.Restored) == 0 {
		return nil, ErrNothingToRollback
	}
	return res, nil
}
