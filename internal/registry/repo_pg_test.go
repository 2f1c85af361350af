package registry

import (
	"strings"
	"testing"
)

func TestLikePattern(t *testing.T) {
	tests := map[string]string{
		"smith":   "%smith%",
		"50%":     `%50\%%`,
		"a_b":     `%a\_b%`,
		`back\sl`: `%back\\sl%`,
	}
	for in, want := range tests {
		if got := likePattern(in); got != want {
			t.Errorf("likePattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSearchQuery_NoFilters(t *testing.T) {
	sql, args := searchQuery(ProviderFilter{Limit: 50})
	if strings.Contains(sql, "WHERE") {
		t.Errorf("expected no WHERE clause:\n%s", sql)
	}
	if len(args) != 2 || args[0] != 51 || args[1] != 0 {
		t.Errorf("expected limit+1 and offset args, got %v", args)
	}
}

func TestSearchQuery_AllFilters(t *testing.T) {
	sql, args := searchQuery(ProviderFilter{
		Name:             "smith",
		NPI:              "1234567890",
		Specialty:        "cardio",
		State:            "tx",
		City:             "dallas",
		InsuranceCarrier: "acme",
		ActiveOnly:       true,
		Limit:            10,
		Offset:           20,
	})
	for _, want := range []string{
		"p.npi = $1",
		"p.first_name ILIKE $2 OR p.last_name ILIKE $2 OR p.organization_name ILIKE $2",
		"st.classification ILIKE $3",
		"ls.code = UPPER($4)",
		"loc.city_name ILIKE $5",
		"pip.npi = p.npi AND ip.carrier_name ILIKE $6",
		"p.deactivation_date IS NULL",
		"LIMIT $7 OFFSET $8",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("query missing %q:\n%s", want, sql)
		}
	}
	if len(args) != 8 {
		t.Fatalf("expected 8 args, got %d", len(args))
	}
	if args[1] != "%smith%" || args[6] != 11 {
		t.Errorf("unexpected args %v", args)
	}
}

func TestValidNPI(t *testing.T) {
	for s, want := range map[string]bool{
		"1234567890":  true,
		"123456789":   false,
		"12345678901": false,
		"12345678a0":  false,
		"":            false,
	} {
		if got := ValidNPI(s); got != want {
			t.Errorf("ValidNPI(%q) = %v", s, got)
		}
	}
}

func TestDisplayName(t *testing.T) {
	ind := &Provider{EntityType: 1, FirstName: strPtr("Ada"), MiddleName: strPtr(""), LastName: strPtr("Lovelace")}
	if got := ind.DisplayName(); got != "Ada Lovelace" {
		t.Errorf("DisplayName = %q", got)
	}
	org := &Provider{EntityType: 2, OrganizationName: strPtr("Dallas Clinic")}
	if got := org.DisplayName(); got != "Dallas Clinic" {
		t.Errorf("DisplayName = %q", got)
	}
}
