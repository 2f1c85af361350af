// Package registry serves read-only queries over the production registry
// tables.
package registry

import "time"

// Provider maps to the providers table. List results carry only the
// location address and primary taxonomy; detail lookups fill the
// collections.
type Provider struct {
	ID                 int64      `db:"id" json:"id"`
	NPI                string     `db:"npi" json:"npi"`
	EntityType         int        `db:"entity_type" json:"entity_type"`
	FirstName          *string    `db:"first_name" json:"first_name,omitempty"`
	LastName           *string    `db:"last_name" json:"last_name,omitempty"`
	MiddleName         *string    `db:"middle_name" json:"middle_name,omitempty"`
	NamePrefix         *string    `db:"name_prefix" json:"name_prefix,omitempty"`
	NameSuffix         *string    `db:"name_suffix" json:"name_suffix,omitempty"`
	Credential         *string    `db:"credential" json:"credential,omitempty"`
	Gender             *string    `db:"gender" json:"gender,omitempty"`
	OrganizationName   *string    `db:"organization_name" json:"organization_name,omitempty"`
	SoleProprietor     bool       `db:"sole_proprietor" json:"sole_proprietor"`
	OrgSubpart         bool       `db:"org_subpart" json:"org_subpart"`
	EnumerationDate    *time.Time `db:"enumeration_date" json:"enumeration_date,omitempty"`
	LastUpdateDate     *time.Time `db:"last_update_date" json:"last_update_date,omitempty"`
	DeactivationDate   *time.Time `db:"deactivation_date" json:"deactivation_date,omitempty"`
	DeactivationReason *string    `db:"deactivation_reason" json:"deactivation_reason,omitempty"`
	ReactivationDate   *time.Time `db:"reactivation_date" json:"reactivation_date,omitempty"`
	Active             bool       `json:"active"`

	Location        *Address          `json:"location,omitempty"`
	PrimaryTaxonomy *ProviderTaxonomy `json:"primary_taxonomy,omitempty"`

	Addresses   []Address          `json:"addresses,omitempty"`
	Taxonomies  []ProviderTaxonomy `json:"taxonomies,omitempty"`
	Identifiers []Identifier       `json:"identifiers,omitempty"`
	Official    *Official          `json:"authorized_official,omitempty"`
}

// DisplayName is the organization name or the individual's full name.
func (p *Provider) DisplayName() string {
	if p.EntityType == 2 && p.OrganizationName != nil {
		return *p.OrganizationName
	}
	name := ""
	for _, part := range []*string{p.FirstName, p.MiddleName, p.LastName} {
		if part == nil || *part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += *part
	}
	return name
}

type Address struct {
	Purpose    string  `json:"purpose"`
	Type       string  `json:"type"`
	Line1      *string `json:"address_1,omitempty"`
	Line2      *string `json:"address_2,omitempty"`
	City       *string `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
	PostalCode *string `json:"postal_code,omitempty"`
	Country    string  `json:"country_code"`
	Telephone  *string `json:"telephone,omitempty"`
	Fax        *string `json:"fax_number,omitempty"`
}

type ProviderTaxonomy struct {
	Code           string  `json:"code"`
	Classification *string `json:"classification,omitempty"`
	Specialization *string `json:"specialization,omitempty"`
	License        *string `json:"license_number,omitempty"`
	LicenseState   *string `json:"license_state,omitempty"`
	Primary        bool    `json:"is_primary"`
}

type Identifier struct {
	Type   string  `json:"type"`
	Value  string  `json:"value"`
	State  *string `json:"state,omitempty"`
	Issuer *string `json:"issuer,omitempty"`
}

type Official struct {
	FirstName  *string `json:"first_name,omitempty"`
	LastName   string  `json:"last_name"`
	MiddleName *string `json:"middle_name,omitempty"`
	Title      *string `json:"title_or_position,omitempty"`
	Telephone  *string `json:"telephone,omitempty"`
	Prefix     *string `json:"name_prefix,omitempty"`
	Suffix     *string `json:"name_suffix,omitempty"`
	Credential *string `json:"credential,omitempty"`
}

type Taxonomy struct {
	ID             int64   `db:"id" json:"id"`
	Code           string  `db:"code" json:"code"`
	Classification *string `db:"classification" json:"classification,omitempty"`
	Specialization *string `db:"specialization" json:"specialization,omitempty"`
	Description    *string `db:"description" json:"description,omitempty"`
}

type InsuranceCarrier struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Code         *string   `db:"code" json:"code,omitempty"`
	CarrierType  *string   `db:"carrier_type" json:"carrier_type,omitempty"`
	ContactEmail *string   `db:"contact_email" json:"contact_email,omitempty"`
	ContactPhone *string   `db:"contact_phone" json:"contact_phone,omitempty"`
	Website      *string   `db:"website" json:"website,omitempty"`
	City         *string   `db:"city" json:"city,omitempty"`
	State        *string   `db:"state" json:"state,omitempty"`
	Status       *string   `db:"status" json:"status,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type InsurancePlan struct {
	ID              int64      `db:"id" json:"id"`
	PlanName        string     `db:"plan_name" json:"plan_name"`
	CarrierName     *string    `db:"carrier_name" json:"carrier_name,omitempty"`
	PlanType        *string    `db:"plan_type" json:"plan_type,omitempty"`
	NetworkType     *string    `db:"network_type" json:"network_type,omitempty"`
	CoverageArea    *string    `db:"coverage_area" json:"coverage_area,omitempty"`
	Status          *string    `db:"status" json:"status,omitempty"`
	EffectiveDate   *time.Time `db:"effective_date" json:"effective_date,omitempty"`
	TerminationDate *time.Time `db:"termination_date" json:"termination_date,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

type ProviderNetwork struct {
	ID           int64     `db:"id" json:"id"`
	NetworkName  string    `db:"network_name" json:"network_name"`
	NetworkType  *string   `db:"network_type" json:"network_type,omitempty"`
	CarrierName  *string   `db:"carrier_name" json:"carrier_name,omitempty"`
	CoverageArea *string   `db:"coverage_area" json:"coverage_area,omitempty"`
	Status       *string   `db:"status" json:"status,omitempty"`
	Description  *string   `db:"description" json:"description,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ProviderFilter narrows a provider search. Text filters are
// case-insensitive substring matches except NPI and State, which are exact.
type ProviderFilter struct {
	Name             string
	NPI              string
	Specialty        string
	State            string
	City             string
	InsuranceCarrier string
	ActiveOnly       bool
	Limit            int
	Offset           int
}

type TaxonomyFilter struct {
	Classification string
	Limit          int
	Offset         int
}
