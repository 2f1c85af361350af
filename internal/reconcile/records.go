package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/npiregistry/npiregistry/internal/nppes"
	"github.com/npiregistry/npiregistry/internal/platform/db"
)

func upsertProvider(ctx context.Context, q db.Querier, e *nppes.Entry) (int64, bool, error) {
	var (
		id       int64
		inserted bool
	)
	var gender *string
	if e.Gender != "" {
		gender = &e.Gender
	}
	err := q.QueryRow(ctx, `
		INSERT INTO providers (
			npi, entity_type, replacement_npi, ein,
			first_name, last_name, middle_name, name_prefix, name_suffix, credential,
			gender, organization_name, sole_proprietor, org_subpart,
			enumeration_date, last_update_date, deactivation_date, deactivation_reason,
			reactivation_date, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, NOW(), NOW()
		)
		ON CONFLICT (npi) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			replacement_npi = EXCLUDED.replacement_npi,
			ein = EXCLUDED.ein,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			middle_name = EXCLUDED.middle_name,
			name_prefix = EXCLUDED.name_prefix,
			name_suffix = EXCLUDED.name_suffix,
			credential = EXCLUDED.credential,
			gender = EXCLUDED.gender,
			organization_name = EXCLUDED.organization_name,
			sole_proprietor = EXCLUDED.sole_proprietor,
			org_subpart = EXCLUDED.org_subpart,
			enumeration_date = EXCLUDED.enumeration_date,
			last_update_date = EXCLUDED.last_update_date,
			deactivation_date = EXCLUDED.deactivation_date,
			deactivation_reason = EXCLUDED.deactivation_reason,
			reactivation_date = EXCLUDED.reactivation_date,
			updated_at = NOW()
		RETURNING id, (xmax = 0)`,
		e.NPI, e.EntityType, nppes.Nullable(e.ReplacementNPI), nppes.Nullable(e.EIN),
		nppes.Nullable(e.FirstName), nppes.Nullable(e.LastName), nppes.Nullable(e.MiddleName),
		nppes.Nullable(e.NamePrefix), nppes.Nullable(e.NameSuffix), nppes.Nullable(e.Credential),
		gender, nppes.Nullable(e.OrganizationName), e.SoleProprietor, e.OrgSubpart,
		e.EnumerationDate, e.LastUpdateDate, e.DeactivationDate, nppes.Nullable(e.DeactivationReason),
		e.ReactivationDate,
	).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("upsert provider: %w", err)
	}
	return id, inserted, nil
}

// replaceAddresses deletes every address of the provider and recreates the
// ones present in the record. Unknown cities are created under their state.
func replaceAddresses(ctx context.Context, q db.Querier, ref *reference, providerID int64, addrs []nppes.Address) error {
	if _, err := q.Exec(ctx, `DELETE FROM addresses WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("delete addresses: %w", err)
	}
	for _, a := range addrs {
		stateID := ref.state(a.State)
		cityID, err := findOrCreateCity(ctx, q, a.City, stateID)
		if err != nil {
			return err
		}
		country := strings.ToUpper(a.Country)
		if country == "" {
			country = "US"
		}
		addressType := "DOM"
		if country != "US" {
			addressType = "FGN"
		}
		_, err = q.Exec(ctx, `
			INSERT INTO addresses (
				provider_id, address_purpose, address_type, address_1, address_2,
				city_id, city_name, state_id, postal_code, country_code,
				telephone, fax_number, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`,
			providerID, a.Purpose, addressType, a.Line1, nppes.Nullable(a.Line2),
			cityID, nppes.Nullable(a.City), stateID, nppes.Nullable(a.PostalCode), country[:min(2, len(country))],
			nppes.Nullable(a.Phone), nppes.Nullable(a.Fax),
		)
		if err != nil {
			return fmt.Errorf("insert %s address: %w", strings.ToLower(a.Purpose), err)
		}
	}
	return nil
}

// findOrCreateCity returns nil when either the name or the state is missing.
func findOrCreateCity(ctx context.Context, q db.Querier, name string, stateID *int64) (*int64, error) {
	if name == "" || stateID == nil {
		return nil, nil
	}
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO cities (name, state_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (state_id, (UPPER(name))) DO UPDATE SET name = cities.name
		RETURNING id`, name, *stateID).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("find or create city %q: %w", name, err)
	}
	return &id, nil
}

type taxonomyLink struct {
	taxonomyID     int64
	license        string
	licenseStateID *int64
	primary        bool
}

// taxonomyLinks resolves slots to one link per known taxonomy, in slot
// order. The first slot claiming primary keeps it; later claims for other
// taxonomies are stored as non-primary.
func taxonomyLinks(ref *reference, slots []nppes.Taxonomy) []taxonomyLink {
	var links []taxonomyLink
	seen := make(map[int64]int)
	primaryTaken := false
	for _, s := range slots {
		id, ok := ref.taxonomy(s.Code)
		if !ok {
			continue
		}
		if i, dup := seen[id]; dup {
			if s.Primary && !primaryTaken {
				links[i].primary = true
				primaryTaken = true
			}
			continue
		}
		primary := s.Primary && !primaryTaken
		if primary {
			primaryTaken = true
		}
		seen[id] = len(links)
		links = append(links, taxonomyLink{
			taxonomyID:     id,
			license:        s.License,
			licenseStateID: ref.state(s.State),
			primary:        primary,
		})
	}
	return links
}

func replaceTaxonomies(ctx context.Context, q db.Querier, ref *reference, providerID int64, slots []nppes.Taxonomy) error {
	if _, err := q.Exec(ctx, `DELETE FROM provider_taxonomies WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("delete taxonomy links: %w", err)
	}
	for _, l := range taxonomyLinks(ref, slots) {
		_, err := q.Exec(ctx, `
			INSERT INTO provider_taxonomies (
				provider_id, taxonomy_id, license_number, license_state_id, is_primary,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
			providerID, l.taxonomyID, nppes.Nullable(l.license), l.licenseStateID, l.primary)
		if err != nil {
			return fmt.Errorf("insert taxonomy link %d: %w", l.taxonomyID, err)
		}
	}
	return nil
}

// replaceOfficial swaps the provider's authorized official for o. Callers
// skip it when the record carries no official, leaving the stored one alone.
func replaceOfficial(ctx context.Context, q db.Querier, providerID int64, o *nppes.Official) error {
	if _, err := q.Exec(ctx, `DELETE FROM authorized_officials WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("delete authorized official: %w", err)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO authorized_officials (
			provider_id, first_name, last_name, middle_name, title_or_position,
			telephone, name_prefix, name_suffix, credential, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`,
		providerID, nppes.Nullable(o.FirstName), o.LastName, nppes.Nullable(o.MiddleName),
		nppes.Nullable(o.Title), nppes.Nullable(o.Phone), nppes.Nullable(o.Prefix),
		nppes.Nullable(o.Suffix), nppes.Nullable(o.Credential))
	if err != nil {
		return fmt.Errorf("insert authorized official: %w", err)
	}
	return nil
}

func replaceIdentifiers(ctx context.Context, q db.Querier, ref *reference, providerID int64, ids []nppes.Identifier) error {
	if _, err := q.Exec(ctx, `DELETE FROM identifiers WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("delete identifiers: %w", err)
	}
	for _, id := range ids {
		_, err := q.Exec(ctx, `
			INSERT INTO identifiers (
				provider_id, identifier_type, identifier_value, state_id, issuer,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			ON CONFLICT (provider_id, identifier_type, identifier_value) DO NOTHING`,
			providerID, id.Type, id.Value, ref.state(id.State), nppes.Nullable(id.Issuer))
		if err != nil {
			return fmt.Errorf("insert identifier slot %d: %w", id.Slot, err)
		}
	}
	return nil
}
