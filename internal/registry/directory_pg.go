package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/npiregistry/npiregistry/internal/platform/db"
)

type directoryRepoPG struct{ q db.Querier }

func NewDirectoryRepoPG(q db.Querier) DirectoryRepository {
	return &directoryRepoPG{q: q}
}

const (
	carrierCols = `id, name, code, carrier_type, contact_email, contact_phone, website,
		city, state, status, created_at, updated_at`
	planCols = `id, plan_name, carrier_name, plan_type, network_type, coverage_area,
		status, effective_date, termination_date, created_at, updated_at`
	networkCols = `id, network_name, network_type, carrier_name, coverage_area, status,
		description, created_at, updated_at`
)

func scanCarrier(row pgx.Row) (*InsuranceCarrier, error) {
	var c InsuranceCarrier
	err := row.Scan(&c.ID, &c.Name, &c.Code, &c.CarrierType, &c.ContactEmail, &c.ContactPhone,
		&c.Website, &c.City, &c.State, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func scanPlan(row pgx.Row) (*InsurancePlan, error) {
	var p InsurancePlan
	err := row.Scan(&p.ID, &p.PlanName, &p.CarrierName, &p.PlanType, &p.NetworkType,
		&p.CoverageArea, &p.Status, &p.EffectiveDate, &p.TerminationDate, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func scanNetwork(row pgx.Row) (*ProviderNetwork, error) {
	var n ProviderNetwork
	err := row.Scan(&n.ID, &n.NetworkName, &n.NetworkType, &n.CarrierName, &n.CoverageArea,
		&n.Status, &n.Description, &n.CreatedAt, &n.UpdatedAt)
	return &n, err
}

// list counts table and returns one page of it scanned with scan.
func list[T any](ctx context.Context, q db.Querier, table, cols, order string, limit, offset int,
	scan func(pgx.Row) (*T, error)) ([]*T, int, error) {
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", table, err)
	}
	rows, err := q.Query(ctx, `SELECT `+cols+` FROM `+table+` ORDER BY `+order+` LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()
	var items []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func get[T any](ctx context.Context, q db.Querier, table, cols string, id int64,
	scan func(pgx.Row) (*T, error)) (*T, error) {
	item, err := scan(q.QueryRow(ctx, `SELECT `+cols+` FROM `+table+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", table, id, err)
	}
	return item, nil
}

func (r *directoryRepoPG) ListCarriers(ctx context.Context, limit, offset int) ([]*InsuranceCarrier, int, error) {
	return list(ctx, r.q, "insurance_carriers", carrierCols, "name, id", limit, offset, scanCarrier)
}

func (r *directoryRepoPG) GetCarrier(ctx context.Context, id int64) (*InsuranceCarrier, error) {
	return get(ctx, r.q, "insurance_carriers", carrierCols, id, scanCarrier)
}

func (r *directoryRepoPG) ListPlans(ctx context.Context, limit, offset int) ([]*InsurancePlan, int, error) {
	return list(ctx, r.q, "insurance_plans", planCols, "plan_name, id", limit, offset, scanPlan)
}

func (r *directoryRepoPG) GetPlan(ctx context.Context, id int64) (*InsurancePlan, error) {
	return get(ctx, r.q, "insurance_plans", planCols, id, scanPlan)
}

func (r *directoryRepoPG) ListNetworks(ctx context.Context, limit, offset int) ([]*ProviderNetwork, int, error) {
	return list(ctx, r.q, "provider_networks", networkCols, "network_name, id", limit, offset, scanNetwork)
}

func (r *directoryRepoPG) GetNetwork(ctx context.Context, id int64) (*ProviderNetwork, error) {
	return get(ctx, r.q, "provider_networks", networkCols, id, scanNetwork)
}
