package nppes

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrBlankNPI          = errors.New("nppes: blank NPI")
	ErrInvalidNPI        = errors.New("nppes: NPI longer than 10 characters")
	ErrInvalidEntityType = errors.New("nppes: entity type code must be 1 or 2")
)

// Entity type codes.
const (
	EntityIndividual   = 1
	EntityOrganization = 2
)

type Address struct {
	Purpose    string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
	Fax        string
}

type Taxonomy struct {
	Slot    int
	Code    string
	License string
	State   string
	Primary bool
}

type Identifier struct {
	Slot   int
	Value  string
	Type   string
	State  string
	Issuer string
}

type Official struct {
	FirstName  string
	LastName   string
	MiddleName string
	Title      string
	Phone      string
	Prefix     string
	Suffix     string
	Credential string
}

// Entry is a decoded feed record. Text fields are trimmed; blank means absent.
type Entry struct {
	Line               int
	NPI                string
	EntityType         int
	ReplacementNPI     string
	EIN                string
	FirstName          string
	LastName           string
	MiddleName         string
	NamePrefix         string
	NameSuffix         string
	Credential         string
	Gender             string
	OrganizationName   string
	SoleProprietor     bool
	OrgSubpart         bool
	EnumerationDate    *time.Time
	LastUpdateDate     *time.Time
	DeactivationDate   *time.Time
	DeactivationReason string
	ReactivationDate   *time.Time

	// Addresses holds at most one address per purpose, mailing first. An
	// address is present only when its first line is non-blank.
	Addresses   []Address
	Taxonomies  []Taxonomy
	Identifiers []Identifier
	Official    *Official
}

// IsOrganization reports whether the entry is an entity type 2 provider.
func (e *Entry) IsOrganization() bool {
	return e.EntityType == EntityOrganization
}

// Address returns the address with the given purpose, if present.
func (e *Entry) Address(purpose string) (Address, bool) {
	for _, a := range e.Addresses {
		if a.Purpose == purpose {
			return a, true
		}
	}
	return Address{}, false
}

// Decode converts a raw record into an Entry. Malformed optional values
// (dates, gender codes, flags) are coerced to their zero value; only a
// missing NPI or an unknown entity type is an error.
func Decode(r Record) (*Entry, error) {
	npi := r.Get(FieldNPI)
	if npi == "" {
		return nil, ErrBlankNPI
	}
	if len(npi) > 10 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNPI, npi)
	}

	var entityType int
	switch code := r.Get(FieldEntityType); code {
	case "1":
		entityType = EntityIndividual
	case "2":
		entityType = EntityOrganization
	default:
		return nil, fmt.Errorf("%w: NPI %s has %q", ErrInvalidEntityType, npi, code)
	}

	e := &Entry{
		Line:               r.Line,
		NPI:                npi,
		EntityType:         entityType,
		ReplacementNPI:     r.Get(FieldReplacementNPI),
		EIN:                r.Get(FieldEIN),
		FirstName:          r.Get(FieldFirstName),
		LastName:           r.Get(FieldLastName),
		MiddleName:         r.Get(FieldMiddleName),
		NamePrefix:         r.Get(FieldNamePrefix),
		NameSuffix:         r.Get(FieldNameSuffix),
		Credential:         r.Get(FieldCredential),
		Gender:             ParseGender(r.Get(FieldGender)),
		OrganizationName:   r.Get(FieldOrgName),
		SoleProprietor:     ParseFlag(r.Get(FieldSoleProprietor)),
		OrgSubpart:         ParseFlag(r.Get(FieldOrgSubpart)),
		EnumerationDate:    ParseDate(r.Get(FieldEnumerationDate)),
		LastUpdateDate:     ParseDate(r.Get(FieldLastUpdateDate)),
		DeactivationDate:   ParseDate(r.Get(FieldDeactivationDate)),
		DeactivationReason: r.Get(FieldDeactivationCode),
		ReactivationDate:   ParseDate(r.Get(FieldReactivationDate)),
	}

	for _, g := range AddressGroups {
		line1 := r.Get(g.Line1)
		if line1 == "" {
			continue
		}
		e.Addresses = append(e.Addresses, Address{
			Purpose:    g.Purpose,
			Line1:      line1,
			Line2:      r.Get(g.Line2),
			City:       r.Get(g.City),
			State:      r.Get(g.State),
			PostalCode: r.Get(g.PostalCode),
			Country:    r.Get(g.Country),
			Phone:      r.Get(g.Phone),
			Fax:        r.Get(g.Fax),
		})
	}

	for _, s := range TaxonomySlots {
		code := r.Get(s.Code)
		if code == "" {
			continue
		}
		e.Taxonomies = append(e.Taxonomies, Taxonomy{
			Slot:    s.Slot,
			Code:    code,
			License: r.Get(s.License),
			State:   r.Get(s.State),
			Primary: ParseFlag(r.Get(s.Primary)),
		})
	}

	for _, s := range IdentifierSlots {
		value := r.Get(s.Value)
		if value == "" {
			continue
		}
		typ := r.Get(s.Type)
		if typ == "" {
			typ = DefaultIdentifierType
		}
		e.Identifiers = append(e.Identifiers, Identifier{
			Slot:   s.Slot,
			Value:  value,
			Type:   typ,
			State:  r.Get(s.State),
			Issuer: r.Get(s.Issuer),
		})
	}

	if last := r.Get(FieldOfficialLastName); last != "" {
		e.Official = &Official{
			FirstName:  r.Get(FieldOfficialFirstName),
			LastName:   last,
			MiddleName: r.Get(FieldOfficialMiddleName),
			Title:      r.Get(FieldOfficialTitle),
			Phone:      r.Get(FieldOfficialPhone),
			Prefix:     r.Get(FieldOfficialPrefix),
			Suffix:     r.Get(FieldOfficialSuffix),
			Credential: r.Get(FieldOfficialCredential),
		}
	}

	return e, nil
}
