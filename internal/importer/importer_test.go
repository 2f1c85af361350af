package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestCheckPolicy(t *testing.T) {
	yes, no := true, false
	validated := &Run{ID: uuid.New(), Stage: StageValidated, ValidationPassed: &yes}
	failed := &Run{ID: uuid.New(), Stage: StageValidated, ValidationPassed: &no}
	transformed := &Run{ID: uuid.New(), Stage: StageTransformed}

	tests := []struct {
		name    string
		require bool
		run     *Run
		force   bool
		wantErr bool
	}{
		{"manual allows unvalidated", false, transformed, false, false},
		{"manual allows failed", false, failed, false, false},
		{"required passes validated", true, validated, false, false},
		{"required refuses failed", true, failed, false, true},
		{"required refuses unvalidated", true, transformed, false, true},
		{"required refuses missing run", true, nil, false, true},
		{"force overrides", true, failed, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := New(zerolog.Nop(), nil, Options{RequireValidation: tt.require})
			err := im.checkPolicy(tt.run, tt.force)
			if tt.wantErr {
				if !errors.Is(err, ErrValidationRequired) {
					t.Fatalf("expected ErrValidationRequired, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckPolicy_FailedReason(t *testing.T) {
	no := false
	im := New(zerolog.Nop(), nil, Options{RequireValidation: true})
	err := im.checkPolicy(&Run{ID: uuid.New(), Stage: StageValidated, ValidationPassed: &no}, false)
	if err == nil || !strings.Contains(err.Error(), "failed validation") {
		t.Errorf("expected failed-validation reason, got %v", err)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("zero grace: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled sleep did not return promptly")
	}
}

func TestSummary_WriteTo(t *testing.T) {
	s := &Summary{
		Providers:         7000000,
		Individuals:       5200000,
		Organizations:     1800000,
		Active:            6500000,
		Deactivated:       500000,
		PrimaryTaxonomies: 6900000,
	}
	var b strings.Builder
	if _, err := s.WriteTo(&b); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	out := b.String()
	for _, want := range []string{"IMPORT SUMMARY", "7,000,000", "Primary Taxonomies", "Authorized Officials"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
