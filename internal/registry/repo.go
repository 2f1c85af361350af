package registry

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

type ProviderRepository interface {
	// Search returns up to f.Limit providers plus whether more matched.
	Search(ctx context.Context, f ProviderFilter) ([]*Provider, bool, error)
	GetByID(ctx context.Context, id int64) (*Provider, error)
	GetByNPI(ctx context.Context, npi string) (*Provider, error)
}

type TaxonomyRepository interface {
	List(ctx context.Context, f TaxonomyFilter) ([]*Taxonomy, int, error)
	GetByCode(ctx context.Context, code string) (*Taxonomy, error)
}

type DirectoryRepository interface {
	ListCarriers(ctx context.Context, limit, offset int) ([]*InsuranceCarrier, int, error)
	GetCarrier(ctx context.Context, id int64) (*InsuranceCarrier, error)
	ListPlans(ctx context.Context, limit, offset int) ([]*InsurancePlan, int, error)
	GetPlan(ctx context.Context, id int64) (*InsurancePlan, error)
	ListNetworks(ctx context.Context, limit, offset int) ([]*ProviderNetwork, int, error)
	GetNetwork(ctx context.Context, id int64) (*ProviderNetwork, error)
}
