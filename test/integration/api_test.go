package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/npiregistry/npiregistry/internal/export"
	"github.com/npiregistry/npiregistry/internal/health"
	"github.com/npiregistry/npiregistry/internal/platform/metrics"
	"github.com/npiregistry/npiregistry/internal/registry"
	"github.com/npiregistry/npiregistry/pkg/pagination"
)

func get(t *testing.T, e *echo.Echo, target string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (body %s)", target, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestHealthHandler(t *testing.T) {
	pool := newDB(t)
	e := echo.New()
	e.GET("/health/import", health.NewReporter(zerolog.Nop(), 1).Handler(pool))

	var empty health.Report
	if code := get(t, e, "/health/import", &empty); code != http.StatusServiceUnavailable {
		t.Errorf("empty registry: expected 503, got %d", code)
	}
	if empty.Healthy {
		t.Error("empty registry should not be healthy")
	}

	importAndSwap(t, pool, false, sampleFeed()...)

	var report health.Report
	if code := get(t, e, "/health/import", &report); code != http.StatusOK {
		t.Errorf("expected 200, got %d: %+v", code, report.Checks)
	}
	checks := report.Map()
	for _, name := range []string{"provider_count", "search_index", "states_seeded", "taxonomies_seeded", "duplicate_npis"} {
		if !checks[name] {
			t.Errorf("check %s failed", name)
		}
	}
	if report.Stats.Providers != 3 {
		t.Errorf("expected 3 providers in stats, got %d", report.Stats.Providers)
	}
}

func TestRegistryAPI(t *testing.T) {
	pool := newDB(t)
	ctx := context.Background()
	importAndSwap(t, pool, false, sampleFeed()...)

	_, err := pool.Exec(ctx, `
		WITH plan AS (
			INSERT INTO insurance_plans (plan_name, carrier_name, plan_type)
			VALUES ('Gold PPO', 'Acme Health', 'PPO') RETURNING id
		)
		INSERT INTO provider_insurance_plans (npi, insurance_plan_id, accepts_new_patients)
		SELECT '1234567891', id, TRUE FROM plan`)
	if err != nil {
		t.Fatalf("seed insurance: %v", err)
	}

	svc := registry.NewService(
		registry.NewProviderRepoPG(pool),
		registry.NewTaxonomyRepoPG(pool),
		registry.NewDirectoryRepoPG(pool),
		pagination.DefaultLimits,
	)
	e := echo.New()
	registry.NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	type page struct {
		Data    []registry.Provider `json:"data"`
		Count   int                 `json:"count"`
		HasMore bool                `json:"has_more"`
	}
	search := func(query string) page {
		t.Helper()
		var p page
		if code := get(t, e, "/api/v1/providers?"+query, &p); code != http.StatusOK {
			t.Fatalf("search %q: status %d", query, code)
		}
		return p
	}

	if p := search("state=tx"); p.Count != 2 {
		t.Errorf("state=tx: expected 2 providers, got %d", p.Count)
	}
	if p := search("specialty=family"); p.Count != 1 || p.Data[0].NPI != "1234567890" {
		t.Errorf("specialty=family: unexpected %+v", p.Data)
	}
	if p := search("insurance_carrier=acme"); p.Count != 1 || p.Data[0].NPI != "1234567891" {
		t.Errorf("insurance_carrier=acme: unexpected %+v", p.Data)
	}
	if p := search("limit=2"); p.Count != 2 || !p.HasMore {
		t.Errorf("limit=2: expected a partial page with more, got count=%d has_more=%v", p.Count, p.HasMore)
	}

	var detail registry.Provider
	if code := get(t, e, "/api/v1/providers/npi/1234567890", &detail); code != http.StatusOK {
		t.Fatalf("get by npi: status %d", code)
	}
	if len(detail.Addresses) != 2 || len(detail.Taxonomies) != 1 || len(detail.Identifiers) != 1 {
		t.Errorf("unexpected detail collections: %d addresses, %d taxonomies, %d identifiers",
			len(detail.Addresses), len(detail.Taxonomies), len(detail.Identifiers))
	}
	if detail.PrimaryTaxonomy == nil || detail.PrimaryTaxonomy.Code != "207Q00000X" {
		t.Errorf("unexpected primary taxonomy %+v", detail.PrimaryTaxonomy)
	}

	if code := get(t, e, "/api/v1/providers/npi/9999999999", nil); code != http.StatusNotFound {
		t.Errorf("unknown npi: expected 404, got %d", code)
	}
	if code := get(t, e, "/api/v1/providers?npi=12ab", nil); code != http.StatusBadRequest {
		t.Errorf("malformed npi: expected 400, got %d", code)
	}
}

func TestExportParquet(t *testing.T) {
	pool := newDB(t)
	importAndSwap(t, pool, false, sampleFeed()...)

	path := filepath.Join(t.TempDir(), "providers.parquet")
	n, err := export.NewExporter(zerolog.Nop(), metrics.New()).ExportFile(context.Background(), pool, path)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows exported, got %d", n)
	}

	rows, err := parquet.ReadFile[export.ProviderRow](path)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(rows) != 3 || rows[0].NPI != "1234567890" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if rows[0].TaxonomyCode != "207Q00000X" || rows[0].LocationCity != "AUSTIN" || rows[0].LocationState != "TX" {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[2].AuthorizedOfficialLastName != "ROE" {
		t.Errorf("expected the organization's official, got %q", rows[2].AuthorizedOfficialLastName)
	}
}
