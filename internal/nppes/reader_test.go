package nppes

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = `"NPI","Entity Type Code","Provider Last Name (Legal Name)","Provider First Name","Provider Gender Code","Provider Enumeration Date","Provider First Line Business Practice Location Address","Provider Business Practice Location Address City Name","Provider Business Practice Location Address State Name","Healthcare Provider Taxonomy Code_1","Healthcare Provider Primary Taxonomy Switch_1","Healthcare Provider Taxonomy Code_2","Healthcare Provider Primary Taxonomy Switch_2","Other Provider Identifier_1","Other Provider Identifier Type Code_1","Unrelated Column"
"1234567890","1","SMITH","JANE","F","05/23/2005","100 MAIN ST","AUSTIN","TX","207Q00000X","Y","UNKNOWN000X","N","ABC123","","ignored"
`

func TestReader_MapsHeadersAndDecodes(t *testing.T) {
	r, err := NewReader(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Columns() != 15 {
		t.Errorf("expected 15 mapped columns, got %d", r.Columns())
	}

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Line != 2 {
		t.Errorf("expected line 2, got %d", rec.Line)
	}

	e, err := Decode(rec)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e.NPI != "1234567890" || e.EntityType != EntityIndividual {
		t.Errorf("unexpected identity: %s/%d", e.NPI, e.EntityType)
	}
	if e.Gender != "F" {
		t.Errorf("expected gender from legacy header, got %q", e.Gender)
	}
	if e.EnumerationDate == nil || e.EnumerationDate.Year() != 2005 {
		t.Errorf("unexpected enumeration date %v", e.EnumerationDate)
	}
	loc, ok := e.Address(PurposeLocation)
	if !ok || loc.City != "AUSTIN" || loc.State != "TX" {
		t.Errorf("unexpected location address %+v", loc)
	}
	if _, ok := e.Address(PurposeMailing); ok {
		t.Error("mailing address should be absent")
	}
	if len(e.Taxonomies) != 2 || !e.Taxonomies[0].Primary || e.Taxonomies[1].Primary {
		t.Errorf("unexpected taxonomies %+v", e.Taxonomies)
	}
	if len(e.Identifiers) != 1 || e.Identifiers[0].Type != DefaultIdentifierType {
		t.Errorf("expected one identifier with default type, got %+v", e.Identifiers)
	}
	if e.Official != nil {
		t.Error("individual should have no official")
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReader_StagingColumnHeaders(t *testing.T) {
	in := "npi,entity_type_code,org_name,ao_last_name,ao_first_name\n" +
		"1999999999,2,ACME CLINIC,DOE,JOHN\n"
	r, err := NewReader(strings.NewReader(in))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	e, err := Decode(rec)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !e.IsOrganization() || e.OrganizationName != "ACME CLINIC" {
		t.Errorf("unexpected organization entry %+v", e)
	}
	if e.Official == nil || e.Official.LastName != "DOE" || e.Official.FirstName != "JOHN" {
		t.Errorf("unexpected official %+v", e.Official)
	}
}

func TestReader_Latin1Fallback(t *testing.T) {
	in := "\xEF\xBB\xBFNPI,Entity Type Code,Provider Last Name (Legal Name)\n" +
		"1234567890,1,MU\xD1OZ\n" +
		"1234567891,1,ZO\xC3\xAB\n"
	r, err := NewReader(strings.NewReader(in))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := rec.Get(FieldLastName); got != "MUÑOZ" {
		t.Errorf("expected MUÑOZ, got %q", got)
	}
	rec, err = r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := rec.Get(FieldLastName); got != "ZOë" {
		t.Errorf("expected valid UTF-8 to pass through, got %q", got)
	}
	if r.Latin1Bytes() != 1 {
		t.Errorf("expected 1 byte decoded as latin-1, got %d", r.Latin1Bytes())
	}
}

func TestReader_Errors(t *testing.T) {
	if _, err := NewReader(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := NewReader(strings.NewReader("Name,City\nA,B\n")); !errors.Is(err, ErrMissingNPIColumn) {
		t.Errorf("expected ErrMissingNPIColumn, got %v", err)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		row  string
		want error
	}{
		{"blank npi", " ,1", ErrBlankNPI},
		{"long npi", "12345678901,1", ErrInvalidNPI},
		{"bad entity", "1234567890,3", ErrInvalidEntityType},
		{"missing entity", "1234567890,", ErrInvalidEntityType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(strings.NewReader("NPI,Entity Type Code\n" + tt.row + "\n"))
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			rec, err := r.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if _, err := Decode(rec); !errors.Is(err, tt.want) {
				t.Errorf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCountRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	content := "NPI,Provider Last Name (Legal Name)\n" +
		"1,\"MULTI\nLINE\"\n" +
		"2,PLAIN\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	n, err := CountRows(path)
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}
