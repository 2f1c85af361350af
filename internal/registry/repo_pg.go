package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/npiregistry/npiregistry/internal/platform/db"
)

const providerCols = `p.id, p.npi, p.entity_type, p.first_name, p.last_name, p.middle_name,
	p.name_prefix, p.name_suffix, p.credential, p.gender, p.organization_name,
	p.sole_proprietor, p.org_subpart, p.enumeration_date, p.last_update_date,
	p.deactivation_date, p.deactivation_reason, p.reactivation_date,
	loc.address_purpose, loc.address_type, loc.address_1, loc.address_2, loc.city_name,
	ls.code, loc.postal_code, loc.country_code, loc.telephone, loc.fax_number,
	ptx.code, ptx.classification, ptx.specialization, ppt.license_number, pls.code`

// Both joins match at most one row: one location per provider and one
// primary taxonomy per provider.
const providerFrom = `
	FROM providers p
	LEFT JOIN addresses loc ON loc.provider_id = p.id AND loc.address_purpose = 'LOCATION'
	LEFT JOIN states ls ON ls.id = loc.state_id
	LEFT JOIN provider_taxonomies ppt ON ppt.provider_id = p.id AND ppt.is_primary
	LEFT JOIN taxonomies ptx ON ptx.id = ppt.taxonomy_id
	LEFT JOIN states pls ON pls.id = ppt.license_state_id`

type providerRepoPG struct{ q db.Querier }

func NewProviderRepoPG(q db.Querier) ProviderRepository {
	return &providerRepoPG{q: q}
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var (
		purpose, addrType, country *string
		taxCode                    *string
		loc                        Address
		tax                        ProviderTaxonomy
	)
	err := row.Scan(&p.ID, &p.NPI, &p.EntityType, &p.FirstName, &p.LastName, &p.MiddleName,
		&p.NamePrefix, &p.NameSuffix, &p.Credential, &p.Gender, &p.OrganizationName,
		&p.SoleProprietor, &p.OrgSubpart, &p.EnumerationDate, &p.LastUpdateDate,
		&p.DeactivationDate, &p.DeactivationReason, &p.ReactivationDate,
		&purpose, &addrType, &loc.Line1, &loc.Line2, &loc.City,
		&loc.State, &loc.PostalCode, &country, &loc.Telephone, &loc.Fax,
		&taxCode, &tax.Classification, &tax.Specialization, &tax.License, &tax.LicenseState)
	if err != nil {
		return nil, err
	}
	p.Active = p.DeactivationDate == nil
	if purpose != nil {
		loc.Purpose = *purpose
		loc.Type = deref(addrType)
		loc.Country = deref(country)
		p.Location = &loc
	}
	if taxCode != nil {
		tax.Code = *taxCode
		tax.Primary = true
		p.PrimaryTaxonomy = &tax
	}
	return &p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// likePattern wraps s for a substring ILIKE, escaping its wildcards.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// searchQuery builds the provider search statement. It fetches one row
// beyond the limit so the caller can tell whether more rows matched.
func searchQuery(f ProviderFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.NPI != "" {
		where = append(where, "p.npi = "+arg(f.NPI))
	}
	if f.Name != "" {
		n := arg(likePattern(f.Name))
		where = append(where, fmt.Sprintf(
			"(p.first_name ILIKE %[1]s OR p.last_name ILIKE %[1]s OR p.organization_name ILIKE %[1]s)", n))
	}
	if f.Specialty != "" {
		s := arg(likePattern(f.Specialty))
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM provider_taxonomies spt
			JOIN taxonomies st ON st.id = spt.taxonomy_id
			WHERE spt.provider_id = p.id
			  AND (st.classification ILIKE %[1]s OR st.specialization ILIKE %[1]s OR st.description ILIKE %[1]s))`, s))
	}
	if f.State != "" {
		where = append(where, "ls.code = UPPER("+arg(f.State)+")")
	}
	if f.City != "" {
		where = append(where, "loc.city_name ILIKE "+arg(likePattern(f.City)))
	}
	if f.InsuranceCarrier != "" {
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM provider_insurance_plans pip
			JOIN insurance_plans ip ON ip.id = pip.insurance_plan_id
			WHERE pip.npi = p.npi AND ip.carrier_name ILIKE %s)`, arg(likePattern(f.InsuranceCarrier))))
	}
	if f.ActiveOnly {
		where = append(where, "p.deactivation_date IS NULL")
	}

	sql := "SELECT " + providerCols + providerFrom
	if len(where) > 0 {
		sql += "\n\tWHERE " + strings.Join(where, "\n\t  AND ")
	}
	sql += fmt.Sprintf("\n\tORDER BY p.npi\n\tLIMIT %s OFFSET %s", arg(f.Limit+1), arg(f.Offset))
	return sql, args
}

func (r *providerRepoPG) Search(ctx context.Context, f ProviderFilter) ([]*Provider, bool, error) {
	sql, args := searchQuery(f)
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, false, fmt.Errorf("search providers: %w", err)
	}
	defer rows.Close()

	var items []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, false, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(items) > f.Limit {
		return items[:f.Limit], true, nil
	}
	return items, false, nil
}

func (r *providerRepoPG) GetByID(ctx context.Context, id int64) (*Provider, error) {
	return r.getDetail(ctx, "p.id = $1", id)
}

func (r *providerRepoPG) GetByNPI(ctx context.Context, npi string) (*Provider, error) {
	return r.getDetail(ctx, "p.npi = $1", npi)
}

func (r *providerRepoPG) getDetail(ctx context.Context, cond string, arg any) (*Provider, error) {
	p, err := scanProvider(r.q.QueryRow(ctx, "SELECT "+providerCols+providerFrom+" WHERE "+cond, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	if p.Addresses, err = r.addresses(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Taxonomies, err = r.taxonomies(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Identifiers, err = r.identifiers(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Official, err = r.official(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *providerRepoPG) addresses(ctx context.Context, providerID int64) ([]Address, error) {
	rows, err := r.q.Query(ctx, `
		SELECT a.address_purpose, a.address_type, a.address_1, a.address_2,
			COALESCE(c.name, a.city_name), s.code, a.postal_code, a.country_code,
			a.telephone, a.fax_number
		FROM addresses a
		LEFT JOIN cities c ON c.id = a.city_id
		LEFT JOIN states s ON s.id = a.state_id
		WHERE a.provider_id = $1
		ORDER BY a.address_purpose`, providerID)
	if err != nil {
		return nil, fmt.Errorf("load addresses: %w", err)
	}
	defer rows.Close()
	var out []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.Purpose, &a.Type, &a.Line1, &a.Line2, &a.City, &a.State,
			&a.PostalCode, &a.Country, &a.Telephone, &a.Fax); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *providerRepoPG) taxonomies(ctx context.Context, providerID int64) ([]ProviderTaxonomy, error) {
	rows, err := r.q.Query(ctx, `
		SELECT t.code, t.classification, t.specialization, pt.license_number, s.code, pt.is_primary
		FROM provider_taxonomies pt
		JOIN taxonomies t ON t.id = pt.taxonomy_id
		LEFT JOIN states s ON s.id = pt.license_state_id
		WHERE pt.provider_id = $1
		ORDER BY pt.is_primary DESC, t.code`, providerID)
	if err != nil {
		return nil, fmt.Errorf("load taxonomies: %w", err)
	}
	defer rows.Close()
	var out []ProviderTaxonomy
	for rows.Next() {
		var t ProviderTaxonomy
		if err := rows.Scan(&t.Code, &t.Classification, &t.Specialization, &t.License,
			&t.LicenseState, &t.Primary); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *providerRepoPG) identifiers(ctx context.Context, providerID int64) ([]Identifier, error) {
	rows, err := r.q.Query(ctx, `
		SELECT i.identifier_type, i.identifier_value, s.code, i.issuer
		FROM identifiers i
		LEFT JOIN states s ON s.id = i.state_id
		WHERE i.provider_id = $1
		ORDER BY i.identifier_type, i.identifier_value`, providerID)
	if err != nil {
		return nil, fmt.Errorf("load identifiers: %w", err)
	}
	defer rows.Close()
	var out []Identifier
	for rows.Next() {
		var i Identifier
		if err := rows.Scan(&i.Type, &i.Value, &i.State, &i.Issuer); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *providerRepoPG) official(ctx context.Context, providerID int64) (*Official, error) {
	var o Official
	err := r.q.QueryRow(ctx, `
		SELECT first_name, last_name, middle_name, title_or_position, telephone,
			name_prefix, name_suffix, credential
		FROM authorized_officials WHERE provider_id = $1`, providerID).
		Scan(&o.FirstName, &o.LastName, &o.MiddleName, &o.Title, &o.Telephone,
			&o.Prefix, &o.Suffix, &o.Credential)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load authorized official: %w", err)
	}
	return &o, nil
}

type taxonomyRepoPG struct{ q db.Querier }

func NewTaxonomyRepoPG(q db.Querier) TaxonomyRepository {
	return &taxonomyRepoPG{q: q}
}

const taxonomyCols = `id, code, classification, specialization, description`

func scanTaxonomy(row pgx.Row) (*Taxonomy, error) {
	var t Taxonomy
	err := row.Scan(&t.ID, &t.Code, &t.Classification, &t.Specialization, &t.Description)
	return &t, err
}

func (r *taxonomyRepoPG) List(ctx context.Context, f TaxonomyFilter) ([]*Taxonomy, int, error) {
	where := ""
	args := []any{}
	if f.Classification != "" {
		where = " WHERE classification ILIKE $1"
		args = append(args, likePattern(f.Classification))
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM taxonomies`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count taxonomies: %w", err)
	}

	n := len(args)
	args = append(args, f.Limit, f.Offset)
	rows, err := r.q.Query(ctx, fmt.Sprintf(`SELECT %s FROM taxonomies%s ORDER BY code LIMIT $%d OFFSET $%d`,
		taxonomyCols, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list taxonomies: %w", err)
	}
	defer rows.Close()
	var items []*Taxonomy
	for rows.Next() {
		t, err := scanTaxonomy(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

func (r *taxonomyRepoPG) GetByCode(ctx context.Context, code string) (*Taxonomy, error) {
	t, err := scanTaxonomy(r.q.QueryRow(ctx, `SELECT `+taxonomyCols+` FROM taxonomies WHERE code = UPPER($1)`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}
