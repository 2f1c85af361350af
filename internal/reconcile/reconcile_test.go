package reconcile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/npiregistry/npiregistry/internal/nppes"
)

func testReference() *reference {
	return &reference{
		states: map[string]int64{"TX": 44, "CA": 5},
		taxonomies: map[string]int64{
			"207Q00000X": 1,
			"208D00000X": 2,
			"363L00000X": 3,
		},
	}
}

func TestTaxonomyLinks(t *testing.T) {
	ref := testReference()
	tests := []struct {
		name        string
		slots       []nppes.Taxonomy
		wantIDs     []int64
		wantPrimary int64
	}{
		{
			name: "unknown code skipped",
			slots: []nppes.Taxonomy{
				{Slot: 1, Code: "207Q00000X", Primary: true},
				{Slot: 2, Code: "UNKNOWN000X"},
			},
			wantIDs:     []int64{1},
			wantPrimary: 1,
		},
		{
			name: "first primary claim wins",
			slots: []nppes.Taxonomy{
				{Slot: 1, Code: "208D00000X"},
				{Slot: 2, Code: "207Q00000X", Primary: true},
				{Slot: 3, Code: "363L00000X", Primary: true},
			},
			wantIDs:     []int64{2, 1, 3},
			wantPrimary: 1,
		},
		{
			name: "unknown primary claim does not block later slot",
			slots: []nppes.Taxonomy{
				{Slot: 1, Code: "UNKNOWN000X", Primary: true},
				{Slot: 2, Code: "363L00000X", Primary: true},
			},
			wantIDs:     []int64{3},
			wantPrimary: 3,
		},
		{
			name: "duplicate code collapses to one link",
			slots: []nppes.Taxonomy{
				{Slot: 1, Code: "207Q00000X"},
				{Slot: 2, Code: "207q00000x", Primary: true},
			},
			wantIDs:     []int64{1},
			wantPrimary: 1,
		},
		{
			name:    "no primary claimed",
			slots:   []nppes.Taxonomy{{Slot: 1, Code: "207Q00000X"}},
			wantIDs: []int64{1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := taxonomyLinks(ref, tt.slots)
			if len(links) != len(tt.wantIDs) {
				t.Fatalf("expected %d links, got %d", len(tt.wantIDs), len(links))
			}
			var primaries int
			var primary int64
			for i, l := range links {
				if l.taxonomyID != tt.wantIDs[i] {
					t.Errorf("link %d: taxonomy %d, want %d", i, l.taxonomyID, tt.wantIDs[i])
				}
				if l.primary {
					primaries++
					primary = l.taxonomyID
				}
			}
			if primaries > 1 {
				t.Fatalf("expected at most one primary, got %d", primaries)
			}
			if primary != tt.wantPrimary {
				t.Errorf("primary taxonomy %d, want %d", primary, tt.wantPrimary)
			}
		})
	}
}

func TestTaxonomyLinks_LicenseState(t *testing.T) {
	links := taxonomyLinks(testReference(), []nppes.Taxonomy{
		{Slot: 1, Code: "207Q00000X", License: "Q1234", State: "tx"},
		{Slot: 2, Code: "208D00000X", State: "ZZ"},
	})
	if links[0].licenseStateID == nil || *links[0].licenseStateID != 44 {
		t.Errorf("expected TX license state, got %v", links[0].licenseStateID)
	}
	if links[1].licenseStateID != nil {
		t.Errorf("expected unknown state to resolve to nil, got %d", *links[1].licenseStateID)
	}
}

func TestProgress(t *testing.T) {
	rate, eta := progress(1000, 3000, 10*time.Second)
	if rate != 100 {
		t.Errorf("rate = %v, want 100", rate)
	}
	if eta != 20*time.Second {
		t.Errorf("eta = %v, want 20s", eta)
	}

	if _, eta := progress(3000, 3000, time.Second); eta != 0 {
		t.Errorf("expected zero eta when done, got %v", eta)
	}
	if _, eta := progress(10, 0, time.Second); eta != 0 {
		t.Errorf("expected zero eta when total unknown, got %v", eta)
	}
	if rate, _ := progress(0, 10, 0); rate != 0 {
		t.Errorf("expected zero rate before any record, got %v", rate)
	}
}

func TestRecordError(t *testing.T) {
	err := &RecordError{Line: 12, NPI: "1234567890", Err: nppes.ErrInvalidEntityType}
	if !errors.Is(err, nppes.ErrInvalidEntityType) {
		t.Error("expected RecordError to unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "NPI 1234567890") {
		t.Errorf("unexpected message %q", err.Error())
	}

	wrapped := fmt.Errorf("reconcile: %w", err)
	var re *RecordError
	if !errors.As(wrapped, &re) || re.Line != 12 {
		t.Errorf("errors.As failed on %v", wrapped)
	}

	noNPI := &RecordError{Line: 3, Err: nppes.ErrBlankNPI}
	if strings.Contains(noNPI.Error(), "NPI ") {
		t.Errorf("blank NPI should not be printed: %q", noNPI.Error())
	}
}

func TestParseErrorLine(t *testing.T) {
	pe := &csv.ParseError{StartLine: 7, Line: 8, Err: csv.ErrQuote}
	if got := parseErrorLine(pe); got != 7 {
		t.Errorf("parseErrorLine = %d, want 7", got)
	}
	if got := parseErrorLine(errors.New("other")); got != 0 {
		t.Errorf("parseErrorLine = %d, want 0", got)
	}
}

func TestResult_WriteTo(t *testing.T) {
	r := &Result{Processed: 12345, Created: 45, Updated: 12290, Errors: 10, Duration: 1500 * time.Millisecond}
	var b strings.Builder
	if _, err := r.WriteTo(&b); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	for _, want := range []string{"Processed: 12,345", "Updated:   12,290", "Errors:    10", "1.5s"} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("output missing %q:\n%s", want, b.String())
		}
	}
}

func TestNew_DefaultProgress(t *testing.T) {
	r := New(testLogger(), nil, Options{})
	if r.opts.ProgressEvery != 10000 {
		t.Errorf("ProgressEvery = %d, want 10000", r.opts.ProgressEvery)
	}
}

func testLogger() zerolog.Logger { return zerolog.Nop() }
