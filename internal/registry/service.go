package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/npiregistry/npiregistry/pkg/pagination"
)

// DefaultTaxonomyLimit is the page size of taxonomy listings.
const DefaultTaxonomyLimit = 100

type Service struct {
	providers  ProviderRepository
	taxonomies TaxonomyRepository
	directory  DirectoryRepository
	limits     pagination.Limits
}

func NewService(providers ProviderRepository, taxonomies TaxonomyRepository, directory DirectoryRepository, limits pagination.Limits) *Service {
	return &Service{providers: providers, taxonomies: taxonomies, directory: directory, limits: limits}
}

// Limits returns the page size bounds of provider searches.
func (s *Service) Limits() pagination.Limits { return s.limits }

// TaxonomyLimits returns the page size bounds of taxonomy listings.
func (s *Service) TaxonomyLimits() pagination.Limits {
	return pagination.Limits{Default: DefaultTaxonomyLimit, Max: max(s.limits.Max, DefaultTaxonomyLimit)}
}

// ValidNPI reports whether s has the shape of an NPI: ten digits.
func ValidNPI(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Service) SearchProviders(ctx context.Context, f ProviderFilter) ([]*Provider, bool, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.NPI = strings.TrimSpace(f.NPI)
	f.Specialty = strings.TrimSpace(f.Specialty)
	f.State = strings.TrimSpace(f.State)
	f.City = strings.TrimSpace(f.City)
	f.InsuranceCarrier = strings.TrimSpace(f.InsuranceCarrier)
	if f.NPI != "" && !ValidNPI(f.NPI) {
		return nil, false, fmt.Errorf("%w: npi must be 10 digits", ErrInvalidArgument)
	}
	if f.State != "" && len(f.State) != 2 {
		return nil, false, fmt.Errorf("%w: state must be a 2-letter code", ErrInvalidArgument)
	}
	p := pagination.Parse(strconv.Itoa(f.Limit), strconv.Itoa(f.Offset), s.limits)
	f.Limit, f.Offset = p.Limit, p.Offset
	return s.providers.Search(ctx, f)
}

func (s *Service) GetProvider(ctx context.Context, id int64) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

func (s *Service) GetProviderByNPI(ctx context.Context, npi string) (*Provider, error) {
	if !ValidNPI(npi) {
		return nil, fmt.Errorf("%w: npi must be 10 digits", ErrInvalidArgument)
	}
	return s.providers.GetByNPI(ctx, npi)
}

func (s *Service) ListTaxonomies(ctx context.Context, f TaxonomyFilter) ([]*Taxonomy, int, error) {
	f.Classification = strings.TrimSpace(f.Classification)
	return s.taxonomies.List(ctx, f)
}

func (s *Service) GetTaxonomy(ctx context.Context, code string) (*Taxonomy, error) {
	return s.taxonomies.GetByCode(ctx, strings.TrimSpace(code))
}

func (s *Service) ListInsuranceCarriers(ctx context.Context, p pagination.Params) ([]*InsuranceCarrier, int, error) {
	return s.directory.ListCarriers(ctx, p.Limit, p.Offset)
}

func (s *Service) GetInsuranceCarrier(ctx context.Context, id int64) (*InsuranceCarrier, error) {
	return s.directory.GetCarrier(ctx, id)
}

func (s *Service) ListInsurancePlans(ctx context.Context, p pagination.Params) ([]*InsurancePlan, int, error) {
	return s.directory.ListPlans(ctx, p.Limit, p.Offset)
}

func (s *Service) GetInsurancePlan(ctx context.Context, id int64) (*InsurancePlan, error) {
	return s.directory.GetPlan(ctx, id)
}

func (s *Service) ListProviderNetworks(ctx context.Context, p pagination.Params) ([]*ProviderNetwork, int, error) {
	return s.directory.ListNetworks(ctx, p.Limit, p.Offset)
}

func (s *Service) GetProviderNetwork(ctx context.Context, id int64) (*ProviderNetwork, error) {
	return s.directory.GetNetwork(ctx, id)
}
