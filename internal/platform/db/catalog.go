package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// QuoteIdent quotes a (possibly schema-qualified with a dot) identifier.
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// TableExists reports whether a base table with the given name is visible in
// the current schema.
func TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_catalog.pg_class c
			JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relkind IN ('r', 'p')
			  AND n.nspname = current_schema()
			  AND c.relname = $1
		)`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return exists, nil
}

// TablesLike lists tables in the current schema whose name starts with prefix.
func TablesLike(ctx context.Context, q Querier, prefix string) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT c.relname FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p')
		  AND n.nspname = current_schema()
		  AND starts_with(c.relname, $1)
		ORDER BY c.relname`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list tables like %s: %w", prefix, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
