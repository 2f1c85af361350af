// Package nppes describes the NPPES dissemination file: its column catalogue,
// the fixed taxonomy and identifier slot groups, value coercion rules, and a
// header-mapped CSV reader that decodes rows into typed entries.
package nppes

import "fmt"

const (
	TaxonomySlotCount   = 15
	IdentifierSlotCount = 50
)

// Field ties a staging_providers column to the feed header it is read from.
// Aliases cover header spellings used by older releases of the file.
type Field struct {
	Column  string
	Header  string
	Aliases []string
}

var (
	FieldNPI              = Field{Column: "npi", Header: "NPI"}
	FieldEntityType       = Field{Column: "entity_type_code", Header: "Entity Type Code"}
	FieldReplacementNPI   = Field{Column: "replacement_npi", Header: "Replacement NPI"}
	FieldEIN              = Field{Column: "ein", Header: "Employer Identification Number (EIN)"}
	FieldOrgName          = Field{Column: "org_name", Header: "Provider Organization Name (Legal Business Name)"}
	FieldLastName         = Field{Column: "last_name", Header: "Provider Last Name (Legal Name)"}
	FieldFirstName        = Field{Column: "first_name", Header: "Provider First Name"}
	FieldMiddleName       = Field{Column: "middle_name", Header: "Provider Middle Name"}
	FieldNamePrefix       = Field{Column: "name_prefix", Header: "Provider Name Prefix Text"}
	FieldNameSuffix       = Field{Column: "name_suffix", Header: "Provider Name Suffix Text"}
	FieldCredential       = Field{Column: "credential", Header: "Provider Credential Text"}
	FieldEnumerationDate  = Field{Column: "enumeration_date", Header: "Provider Enumeration Date"}
	FieldLastUpdateDate   = Field{Column: "last_update_date", Header: "Last Update Date"}
	FieldDeactivationCode = Field{Column: "deactivation_reason", Header: "NPI Deactivation Reason Code"}
	FieldDeactivationDate = Field{Column: "deactivation_date", Header: "NPI Deactivation Date"}
	FieldReactivationDate = Field{Column: "reactivation_date", Header: "NPI Reactivation Date"}
	FieldGender           = Field{Column: "gender", Header: "Provider Sex Code", Aliases: []string{"Provider Gender Code"}}
	FieldSoleProprietor   = Field{Column: "sole_proprietor", Header: "Is Sole Proprietor"}
	FieldOrgSubpart       = Field{Column: "org_subpart", Header: "Is Organization Subpart"}

	FieldOfficialLastName   = Field{Column: "ao_last_name", Header: "Authorized Official Last Name"}
	FieldOfficialFirstName  = Field{Column: "ao_first_name", Header: "Authorized Official First Name"}
	FieldOfficialMiddleName = Field{Column: "ao_middle_name", Header: "Authorized Official Middle Name"}
	FieldOfficialTitle      = Field{Column: "ao_title", Header: "Authorized Official Title or Position"}
	FieldOfficialPhone      = Field{Column: "ao_phone", Header: "Authorized Official Telephone Number"}
	FieldOfficialPrefix     = Field{Column: "ao_prefix", Header: "Authorized Official Name Prefix Text"}
	FieldOfficialSuffix     = Field{Column: "ao_suffix", Header: "Authorized Official Name Suffix Text"}
	FieldOfficialCredential = Field{Column: "ao_credential", Header: "Authorized Official Credential Text"}
)

// AddressFields is the column group for one address purpose.
type AddressFields struct {
	Purpose    string
	Line1      Field
	Line2      Field
	City       Field
	State      Field
	PostalCode Field
	Country    Field
	Phone      Field
	Fax        Field
}

// Address purposes stored in addresses.address_purpose.
const (
	PurposeMailing  = "MAILING"
	PurposeLocation = "LOCATION"
)

var (
	MailingAddress  = addressFields(PurposeMailing, "mail", "Mailing Address")
	LocationAddress = addressFields(PurposeLocation, "practice", "Practice Location Address")
)

// AddressGroups lists both address column groups in load order.
var AddressGroups = []AddressFields{MailingAddress, LocationAddress}

func addressFields(purpose, prefix, label string) AddressFields {
	f := func(suffix, header string) Field {
		return Field{Column: prefix + "_" + suffix, Header: header}
	}
	return AddressFields{
		Purpose:    purpose,
		Line1:      f("address_1", "Provider First Line Business "+label),
		Line2:      f("address_2", "Provider Second Line Business "+label),
		City:       f("city", "Provider Business "+label+" City Name"),
		State:      f("state", "Provider Business "+label+" State Name"),
		PostalCode: f("postal_code", "Provider Business "+label+" Postal Code"),
		Country:    f("country", "Provider Business "+label+" Country Code (If outside U.S.)"),
		Phone:      f("phone", "Provider Business "+label+" Telephone Number"),
		Fax:        f("fax", "Provider Business "+label+" Fax Number"),
	}
}

func (a AddressFields) fields() []Field {
	return []Field{a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.Phone, a.Fax}
}

// TaxonomySlot is one of the repeated taxonomy column groups.
type TaxonomySlot struct {
	Slot    int
	Code    Field
	License Field
	State   Field
	Primary Field
}

// IdentifierSlot is one of the repeated "other identifier" column groups.
type IdentifierSlot struct {
	Slot   int
	Value  Field
	Type   Field
	State  Field
	Issuer Field
}

// TaxonomySlots and IdentifierSlots are ordered by slot number, starting at 1.
var (
	TaxonomySlots   = buildTaxonomySlots(TaxonomySlotCount)
	IdentifierSlots = buildIdentifierSlots(IdentifierSlotCount)
)

func buildTaxonomySlots(n int) []TaxonomySlot {
	slots := make([]TaxonomySlot, n)
	for i := range slots {
		s := i + 1
		slots[i] = TaxonomySlot{
			Slot:    s,
			Code:    Field{Column: fmt.Sprintf("taxonomy_code_%d", s), Header: fmt.Sprintf("Healthcare Provider Taxonomy Code_%d", s)},
			License: Field{Column: fmt.Sprintf("taxonomy_license_%d", s), Header: fmt.Sprintf("Provider License Number_%d", s)},
			State:   Field{Column: fmt.Sprintf("taxonomy_state_%d", s), Header: fmt.Sprintf("Provider License Number State Code_%d", s)},
			Primary: Field{Column: fmt.Sprintf("taxonomy_primary_%d", s), Header: fmt.Sprintf("Healthcare Provider Primary Taxonomy Switch_%d", s)},
		}
	}
	return slots
}

func buildIdentifierSlots(n int) []IdentifierSlot {
	slots := make([]IdentifierSlot, n)
	for i := range slots {
		s := i + 1
		slots[i] = IdentifierSlot{
			Slot:   s,
			Value:  Field{Column: fmt.Sprintf("identifier_%d", s), Header: fmt.Sprintf("Other Provider Identifier_%d", s)},
			Type:   Field{Column: fmt.Sprintf("identifier_type_%d", s), Header: fmt.Sprintf("Other Provider Identifier Type Code_%d", s)},
			State:  Field{Column: fmt.Sprintf("identifier_state_%d", s), Header: fmt.Sprintf("Other Provider Identifier State_%d", s)},
			Issuer: Field{Column: fmt.Sprintf("identifier_issuer_%d", s), Header: fmt.Sprintf("Other Provider Identifier Issuer_%d", s)},
		}
	}
	return slots
}

// StagingFields returns every field of the wide staging row in table column
// order. It is the column list used when copying feed rows into staging.
func StagingFields() []Field {
	fields := []Field{
		FieldNPI, FieldEntityType, FieldReplacementNPI, FieldEIN, FieldOrgName,
		FieldLastName, FieldFirstName, FieldMiddleName, FieldNamePrefix, FieldNameSuffix, FieldCredential,
	}
	for _, a := range AddressGroups {
		fields = append(fields, a.fields()...)
	}
	fields = append(fields,
		FieldEnumerationDate, FieldLastUpdateDate, FieldDeactivationCode, FieldDeactivationDate,
		FieldReactivationDate, FieldGender,
		FieldOfficialLastName, FieldOfficialFirstName, FieldOfficialMiddleName, FieldOfficialTitle,
		FieldOfficialPhone, FieldOfficialPrefix, FieldOfficialSuffix, FieldOfficialCredential,
		FieldSoleProprietor, FieldOrgSubpart,
	)
	for _, s := range TaxonomySlots {
		fields = append(fields, s.Code, s.License, s.State, s.Primary)
	}
	for _, s := range IdentifierSlots {
		fields = append(fields, s.Value, s.Type, s.State, s.Issuer)
	}
	return fields
}

// StagingColumns returns the column names of StagingFields.
func StagingColumns() []string {
	fields := StagingFields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
	}
	return cols
}
