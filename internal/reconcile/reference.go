package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/npiregistry/npiregistry/internal/platform/db"
)

// reference caches the seeded states and taxonomies for one run. Neither is
// written by the reconciler, so the cache cannot go stale mid-run.
type reference struct {
	states     map[string]int64
	taxonomies map[string]int64
}

func loadReference(ctx context.Context, q db.Querier) (*reference, error) {
	states, err := codeIndex(ctx, q, "SELECT code, id FROM states")
	if err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}
	taxonomies, err := codeIndex(ctx, q, "SELECT code, id FROM taxonomies")
	if err != nil {
		return nil, fmt.Errorf("load taxonomies: %w", err)
	}
	return &reference{states: states, taxonomies: taxonomies}, nil
}

func codeIndex(ctx context.Context, q db.Querier, sql string) (map[string]int64, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[string]int64)
	for rows.Next() {
		var code string
		var id int64
		if err := rows.Scan(&code, &id); err != nil {
			return nil, err
		}
		index[strings.ToUpper(code)] = id
	}
	return index, rows.Err()
}

// state returns the id of a state code, or nil when it is blank or unknown.
func (r *reference) state(code string) *int64 {
	if id, ok := r.states[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return &id
	}
	return nil
}

func (r *reference) taxonomy(code string) (int64, bool) {
	id, ok := r.taxonomies[strings.ToUpper(strings.TrimSpace(code))]
	return id, ok
}
