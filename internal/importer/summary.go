package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/npiregistry/npiregistry/internal/platform/db"
)

// Summary holds the headline counts of the production registry tables.
type Summary struct {
	Providers           int64 `json:"providers"`
	Individuals         int64 `json:"individuals"`
	Organizations       int64 `json:"organizations"`
	Active              int64 `json:"active"`
	Deactivated         int64 `json:"deactivated"`
	Addresses           int64 `json:"addresses"`
	LocationAddresses   int64 `json:"location_addresses"`
	MailingAddresses    int64 `json:"mailing_addresses"`
	ProviderTaxonomies  int64 `json:"provider_taxonomies"`
	PrimaryTaxonomies   int64 `json:"primary_taxonomies"`
	Identifiers         int64 `json:"identifiers"`
	AuthorizedOfficials int64 `json:"authorized_officials"`
}

// Summarize counts rows in the production tables.
func Summarize(ctx context.Context, q db.Querier) (*Summary, error) {
	s := &Summary{}
	err := q.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE entity_type = 1),
			COUNT(*) FILTER (WHERE entity_type = 2),
			COUNT(*) FILTER (WHERE deactivation_date IS NULL),
			COUNT(*) FILTER (WHERE deactivation_date IS NOT NULL)
		FROM providers`).Scan(&s.Providers, &s.Individuals, &s.Organizations, &s.Active, &s.Deactivated)
	if err != nil {
		return nil, fmt.Errorf("summarize providers: %w", err)
	}

	err = q.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE address_purpose = 'LOCATION'),
			COUNT(*) FILTER (WHERE address_purpose = 'MAILING')
		FROM addresses`).Scan(&s.Addresses, &s.LocationAddresses, &s.MailingAddresses)
	if err != nil {
		return nil, fmt.Errorf("summarize addresses: %w", err)
	}

	err = q.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_primary)
		FROM provider_taxonomies`).Scan(&s.ProviderTaxonomies, &s.PrimaryTaxonomies)
	if err != nil {
		return nil, fmt.Errorf("summarize provider taxonomies: %w", err)
	}

	if s.Identifiers, err = db.Count(ctx, q, "SELECT COUNT(*) FROM identifiers"); err != nil {
		return nil, fmt.Errorf("summarize identifiers: %w", err)
	}
	if s.AuthorizedOfficials, err = db.Count(ctx, q, "SELECT COUNT(*) FROM authorized_officials"); err != nil {
		return nil, fmt.Errorf("summarize authorized officials: %w", err)
	}
	return s, nil
}

// WriteTo prints the summary as an aligned table with grouped digits.
func (s *Summary) WriteTo(w io.Writer) (int64, error) {
	p := message.NewPrinter(language.English)
	rows := []struct {
		label string
		n     int64
	}{
		{"Providers", s.Providers},
		{"Individual Providers", s.Individuals},
		{"Organizations", s.Organizations},
		{"Active Providers", s.Active},
		{"Deactivated Providers", s.Deactivated},
		{"", 0},
		{"Addresses", s.Addresses},
		{"Location Addresses", s.LocationAddresses},
		{"Mailing Addresses", s.MailingAddresses},
		{"", 0},
		{"Provider Taxonomies", s.ProviderTaxonomies},
		{"Primary Taxonomies", s.PrimaryTaxonomies},
		{"", 0},
		{"Identifiers", s.Identifiers},
		{"Authorized Officials", s.AuthorizedOfficials},
	}

	rule := strings.Repeat("=", 70)
	var b strings.Builder
	b.WriteString(rule + "\nIMPORT SUMMARY\n" + rule + "\n")
	for _, r := range rows {
		if r.label == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString(p.Sprintf("%-30s: %20d\n", r.label, r.n))
	}
	b.WriteString(rule + "\n")
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
