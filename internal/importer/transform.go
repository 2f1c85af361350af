package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/npiregistry/npiregistry/internal/nppes"
	"github.com/npiregistry/npiregistry/internal/platform/db"
	"github.com/npiregistry/npiregistry/internal/platform/metrics"
)

// dedupTable holds one staging row per trimmed NPI for the duration of a
// transform. It is a temporary table, so the transform must run on a single
// session (a pinned connection or a transaction).
const dedupTable = "staging_dedup"

// TransformResult counts rows written per shadow table. Re-running a
// transform against populated shadow tables counts upserted rows again.
type TransformResult struct {
	StagingRows int64
	Providers   int64
	Addresses   int64
	Taxonomies  int64
	Identifiers int64
	Officials   int64
	Duration    time.Duration
}

// Transformer populates shadow tables from staging with set-based SQL.
type Transformer struct {
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	slotBatch int
}

func NewTransformer(logger zerolog.Logger, m *metrics.Metrics, identifierSlotBatch int) *Transformer {
	if identifierSlotBatch <= 0 {
		identifierSlotBatch = 10
	}
	return &Transformer{logger: logger, metrics: m, slotBatch: identifierSlotBatch}
}

// Transform runs every extraction in dependency order and refreshes planner
// statistics on the shadow tables. q must be a single session.
func (t *Transformer) Transform(ctx context.Context, q db.Querier) (*TransformResult, error) {
	start := time.Now()
	res := &TransformResult{}

	present, err := tablePresence(ctx, q, shadowNames())
	if err != nil {
		return nil, err
	}
	for name, ok := range present {
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrShadowMissing, name)
		}
	}

	steps := []struct {
		name  string
		table string
		dst   *int64
		run   func(context.Context, db.Querier) (int64, error)
	}{
		{"dedup staging", dedupTable, &res.StagingRows, t.prepareStaging},
		{"providers", ShadowName("providers"), &res.Providers, t.importProviders},
		{"addresses", ShadowName("addresses"), &res.Addresses, t.importAddresses},
		{"taxonomy links", ShadowName("provider_taxonomies"), &res.Taxonomies, t.importTaxonomies},
		{"identifiers", ShadowName("identifiers"), &res.Identifiers, t.importIdentifiers},
		{"authorized officials", ShadowName("authorized_officials"), &res.Officials, t.importOfficials},
	}
	for _, step := range steps {
		stepStart := time.Now()
		n, err := step.run(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", step.name, err)
		}
		*step.dst = n
		if step.table != dedupTable {
			t.metrics.AddRows(step.table, n)
		}
		t.logger.Info().
			Str("stage", "transform").
			Str("table", step.table).
			Int64("rows", n).
			Dur("duration", time.Since(stepStart)).
			Msg(step.name)
	}

	analyzeStart := time.Now()
	for _, name := range shadowNames() {
		if _, err := q.Exec(ctx, "ANALYZE "+db.QuoteIdent(name)); err != nil {
			return nil, fmt.Errorf("analyze %s: %w", name, err)
		}
	}
	if _, err := q.Exec(ctx, "DROP TABLE IF EXISTS pg_temp."+dedupTable); err != nil {
		return nil, fmt.Errorf("drop %s: %w", dedupTable, err)
	}
	t.logger.Info().Str("stage", "transform").Dur("duration", time.Since(analyzeStart)).Msg("statistics refreshed")

	res.Duration = time.Since(start)
	return res, nil
}

func shadowNames() []string {
	names := TableNames()
	for i, n := range names {
		names[i] = ShadowName(n)
	}
	return names
}

// trimmed is the SQL for a staging text column with blanks mapped to NULL.
func trimmed(alias string, f nppes.Field) string {
	return fmt.Sprintf("NULLIF(TRIM(%s.%s), '')", alias, f.Column)
}

func flag(alias string, f nppes.Field) string {
	return fmt.Sprintf("COALESCE(UPPER(TRIM(%s.%s)) = 'Y', FALSE)", alias, f.Column)
}

func date(alias string, f nppes.Field) string {
	return fmt.Sprintf("nppes_to_date(%s.%s)", alias, f.Column)
}

// prepareStaging keeps the last staging row per trimmed NPI. Rows with a
// blank NPI, or one too long for the providers table, are dropped here.
func (t *Transformer) prepareStaging(ctx context.Context, q db.Querier) (int64, error) {
	stmts := []string{
		"DROP TABLE IF EXISTS pg_temp." + dedupTable,
		`CREATE TEMP TABLE ` + dedupTable + ` AS
		SELECT DISTINCT ON (TRIM(s.npi)) TRIM(s.npi) AS npi_key, s.*
		FROM staging_providers s
		WHERE NULLIF(TRIM(s.npi), '') IS NOT NULL
		  AND LENGTH(TRIM(s.npi)) <= 10
		ORDER BY TRIM(s.npi), s.staging_id DESC`,
		"CREATE INDEX ON pg_temp." + dedupTable + " (npi_key)",
		"ANALYZE pg_temp." + dedupTable,
	}
	for _, sql := range stmts {
		if _, err := q.Exec(ctx, sql); err != nil {
			return 0, err
		}
	}
	return db.Count(ctx, q, "SELECT COUNT(*) FROM pg_temp."+dedupTable)
}

var providerUpdateColumns = []string{
	"entity_type", "replacement_npi", "ein", "first_name", "last_name", "middle_name",
	"name_prefix", "name_suffix", "credential", "gender", "organization_name",
	"sole_proprietor", "org_subpart", "enumeration_date", "last_update_date",
	"deactivation_date", "deactivation_reason", "reactivation_date",
}

// importProviders upserts one provider per NPI. Rows whose entity type is not
// 1 or 2 are skipped, which also keeps their children out of the shadow set.
func (t *Transformer) importProviders(ctx context.Context, q db.Querier) (int64, error) {
	set := make([]string, 0, len(providerUpdateColumns)+1)
	for _, c := range providerUpdateColumns {
		set = append(set, c+" = EXCLUDED."+c)
	}
	set = append(set, "updated_at = NOW()")

	sql := fmt.Sprintf(`
		INSERT INTO providers_new (
			npi, %s, created_at, updated_at
		)
		SELECT
			s.npi_key,
			TRIM(s.%s)::SMALLINT,
			%s, %s,
			%s, %s, %s, %s, %s, %s,
			CASE UPPER(TRIM(s.%s)) WHEN 'M' THEN 'M' WHEN 'F' THEN 'F' WHEN 'X' THEN 'X' END,
			%s,
			%s, %s,
			%s, %s, %s, %s, %s,
			NOW(), NOW()
		FROM pg_temp.%s s
		WHERE TRIM(s.%s) IN ('1', '2')
		ON CONFLICT (npi) DO UPDATE SET %s`,
		strings.Join(providerUpdateColumns, ", "),
		nppes.FieldEntityType.Column,
		trimmed("s", nppes.FieldReplacementNPI), trimmed("s", nppes.FieldEIN),
		trimmed("s", nppes.FieldFirstName), trimmed("s", nppes.FieldLastName), trimmed("s", nppes.FieldMiddleName),
		trimmed("s", nppes.FieldNamePrefix), trimmed("s", nppes.FieldNameSuffix), trimmed("s", nppes.FieldCredential),
		nppes.FieldGender.Column,
		trimmed("s", nppes.FieldOrgName),
		flag("s", nppes.FieldSoleProprietor), flag("s", nppes.FieldOrgSubpart),
		date("s", nppes.FieldEnumerationDate), date("s", nppes.FieldLastUpdateDate),
		date("s", nppes.FieldDeactivationDate), trimmed("s", nppes.FieldDeactivationCode),
		date("s", nppes.FieldReactivationDate),
		dedupTable,
		nppes.FieldEntityType.Column,
		strings.Join(set, ", "),
	)
	tag, err := q.Exec(ctx, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// importAddresses runs one extraction per address purpose. City and state
// resolve against reference data and stay NULL when nothing matches.
func (t *Transformer) importAddresses(ctx context.Context, q db.Querier) (int64, error) {
	var total int64
	for _, g := range nppes.AddressGroups {
		country := fmt.Sprintf("COALESCE(UPPER(%s), 'US')", trimmed("s", g.Country))
		sql := fmt.Sprintf(`
			INSERT INTO addresses_new (
				provider_id, address_purpose, address_type, address_1, address_2,
				city_id, city_name, state_id, postal_code, country_code,
				telephone, fax_number, created_at, updated_at
			)
			SELECT
				p.id, $1,
				CASE WHEN %[1]s = 'US' THEN 'DOM' ELSE 'FGN' END,
				%[2]s, %[3]s,
				c.id, %[4]s, st.id, %[5]s, LEFT(%[1]s, 2),
				%[6]s, %[7]s, NOW(), NOW()
			FROM pg_temp.%[8]s s
			JOIN providers_new p ON p.npi = s.npi_key
			LEFT JOIN states st ON st.code = UPPER(TRIM(s.%[9]s))
			LEFT JOIN cities c ON c.state_id = st.id AND UPPER(c.name) = UPPER(TRIM(s.%[10]s))
			WHERE %[2]s IS NOT NULL
			ON CONFLICT (provider_id, address_purpose) DO UPDATE SET
				address_type = EXCLUDED.address_type,
				address_1 = EXCLUDED.address_1,
				address_2 = EXCLUDED.address_2,
				city_id = EXCLUDED.city_id,
				city_name = EXCLUDED.city_name,
				state_id = EXCLUDED.state_id,
				postal_code = EXCLUDED.postal_code,
				country_code = EXCLUDED.country_code,
				telephone = EXCLUDED.telephone,
				fax_number = EXCLUDED.fax_number,
				updated_at = NOW()`,
			country,
			trimmed("s", g.Line1), trimmed("s", g.Line2),
			trimmed("s", g.City), trimmed("s", g.PostalCode),
			trimmed("s", g.Phone), trimmed("s", g.Fax),
			dedupTable,
			g.State.Column, g.City.Column,
		)
		tag, err := q.Exec(ctx, sql, g.Purpose)
		if err != nil {
			return total, fmt.Errorf("%s addresses: %w", strings.ToLower(g.Purpose), err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// importTaxonomies walks the slots in order. A slot's primary switch is only
// honoured when no earlier slot already made a different taxonomy primary
// for the provider, so at most one link per provider is primary.
func (t *Transformer) importTaxonomies(ctx context.Context, q db.Querier) (int64, error) {
	var total int64
	for _, slot := range nppes.TaxonomySlots {
		sql := fmt.Sprintf(`
			INSERT INTO provider_taxonomies_new AS pt (
				provider_id, taxonomy_id, license_number, license_state_id,
				is_primary, created_at, updated_at
			)
			SELECT
				p.id, tx.id, %[1]s, st.id,
				%[2]s AND NOT EXISTS (
					SELECT 1 FROM provider_taxonomies_new other
					WHERE other.provider_id = p.id
					  AND other.is_primary
					  AND other.taxonomy_id <> tx.id
				),
				NOW(), NOW()
			FROM pg_temp.%[3]s s
			JOIN providers_new p ON p.npi = s.npi_key
			JOIN taxonomies tx ON tx.code = UPPER(TRIM(s.%[4]s))
			LEFT JOIN states st ON st.code = UPPER(TRIM(s.%[5]s))
			WHERE %[6]s IS NOT NULL
			ON CONFLICT (provider_id, taxonomy_id) DO UPDATE SET
				is_primary = pt.is_primary OR EXCLUDED.is_primary,
				license_number = COALESCE(pt.license_number, EXCLUDED.license_number),
				license_state_id = COALESCE(pt.license_state_id, EXCLUDED.license_state_id),
				updated_at = NOW()`,
			trimmed("s", slot.License),
			flag("s", slot.Primary),
			dedupTable,
			slot.Code.Column,
			slot.State.Column,
			trimmed("s", slot.Code),
		)
		tag, err := q.Exec(ctx, sql)
		if err != nil {
			return total, fmt.Errorf("taxonomy slot %d: %w", slot.Slot, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// importIdentifiers unpivots identifier slots in sub-batches. A value with no
// type code is stored as type 01 (other).
func (t *Transformer) importIdentifiers(ctx context.Context, q db.Querier) (int64, error) {
	var total int64
	slots := nppes.IdentifierSlots
	for first := 0; first < len(slots); first += t.slotBatch {
		last := min(first+t.slotBatch, len(slots))

		values := make([]string, 0, last-first)
		for _, s := range slots[first:last] {
			values = append(values, fmt.Sprintf("(s.%s, s.%s, s.%s, s.%s)",
				s.Value.Column, s.Type.Column, s.State.Column, s.Issuer.Column))
		}

		sql := fmt.Sprintf(`
			INSERT INTO identifiers_new (
				provider_id, identifier_type, identifier_value, state_id, issuer,
				created_at, updated_at
			)
			SELECT
				p.id,
				COALESCE(NULLIF(TRIM(v.typ), ''), '%s'),
				TRIM(v.val),
				st.id,
				NULLIF(TRIM(v.issuer), ''),
				NOW(), NOW()
			FROM pg_temp.%s s
			JOIN providers_new p ON p.npi = s.npi_key
			CROSS JOIN LATERAL (VALUES %s) AS v(val, typ, state, issuer)
			LEFT JOIN states st ON st.code = UPPER(TRIM(v.state))
			WHERE NULLIF(TRIM(v.val), '') IS NOT NULL
			ON CONFLICT (provider_id, identifier_type, identifier_value) DO NOTHING`,
			nppes.DefaultIdentifierType,
			dedupTable,
			strings.Join(values, ",\n\t\t\t\t"),
		)
		batchStart := time.Now()
		tag, err := q.Exec(ctx, sql)
		if err != nil {
			return total, fmt.Errorf("identifier slots %d-%d: %w", slots[first].Slot, slots[last-1].Slot, err)
		}
		total += tag.RowsAffected()
		t.logger.Debug().
			Int("first_slot", slots[first].Slot).
			Int("last_slot", slots[last-1].Slot).
			Int64("rows", tag.RowsAffected()).
			Dur("duration", time.Since(batchStart)).
			Msg("identifier slot batch")
	}
	return total, nil
}

func (t *Transformer) importOfficials(ctx context.Context, q db.Querier) (int64, error) {
	sql := fmt.Sprintf(`
		INSERT INTO authorized_officials_new (
			provider_id, first_name, last_name, middle_name, title_or_position,
			telephone, name_prefix, name_suffix, credential, created_at, updated_at
		)
		SELECT
			p.id, %s, TRIM(s.%s), %s, %s,
			%s, %s, %s, %s, NOW(), NOW()
		FROM pg_temp.%s s
		JOIN providers_new p ON p.npi = s.npi_key
		WHERE p.entity_type = %d
		  AND %s IS NOT NULL
		ON CONFLICT (provider_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			middle_name = EXCLUDED.middle_name,
			title_or_position = EXCLUDED.title_or_position,
			telephone = EXCLUDED.telephone,
			name_prefix = EXCLUDED.name_prefix,
			name_suffix = EXCLUDED.name_suffix,
			credential = EXCLUDED.credential,
			updated_at = NOW()`,
		trimmed("s", nppes.FieldOfficialFirstName), nppes.FieldOfficialLastName.Column,
		trimmed("s", nppes.FieldOfficialMiddleName), trimmed("s", nppes.FieldOfficialTitle),
		trimmed("s", nppes.FieldOfficialPhone), trimmed("s", nppes.FieldOfficialPrefix),
		trimmed("s", nppes.FieldOfficialSuffix), trimmed("s", nppes.FieldOfficialCredential),
		dedupTable,
		nppes.EntityOrganization,
		trimmed("s", nppes.FieldOfficialLastName),
	)
	tag, err := q.Exec(ctx, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
