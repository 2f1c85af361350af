package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c, DefaultLimits)

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&offset=10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c, DefaultLimits)

	if p.Limit != 25 {
		t.Errorf("expected limit 25, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		limit      string
		offset     string
		l          Limits
		wantLimit  int
		wantOffset int
	}{
		{"capped at max", "1000", "", Limits{Default: 50, Max: 200}, 200, 0},
		{"configured default", "", "", Limits{Default: 100, Max: 200}, 100, 0},
		{"garbage limit", "abc", "7", DefaultLimits, DefaultLimit, 7},
		{"negative offset", "10", "-5", DefaultLimits, 10, 0},
		{"zero limits use package defaults", "", "", Limits{}, DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(tt.limit, tt.offset, tt.l)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("Parse = %+v, want limit %d offset %d", p, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 2, 10, Params{Limit: 2, Offset: 0})
	if !resp.HasMore {
		t.Error("expected has_more with 10 total and a page of 2")
	}
	if resp.Total == nil || *resp.Total != 10 {
		t.Errorf("expected total 10, got %v", resp.Total)
	}

	last := NewResponse([]string{"a"}, 1, 3, Params{Limit: 2, Offset: 2})
	if last.HasMore {
		t.Error("expected no more results on the last page")
	}
}

func TestNewWindowResponse_OmitsTotal(t *testing.T) {
	resp := NewWindowResponse([]int{1, 2, 3}, 3, Params{Limit: 3}, true)
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), `"total"`) {
		t.Errorf("expected total to be omitted: %s", b)
	}
	if !strings.Contains(string(b), `"has_more":true`) {
		t.Errorf("expected has_more true: %s", b)
	}
}

func TestParams_NextOffset(t *testing.T) {
	p := Params{Limit: 50, Offset: 100}
	if p.NextOffset() != 150 {
		t.Errorf("expected 150, got %d", p.NextOffset())
	}
	if !p.HasNext(151) || p.HasNext(150) {
		t.Error("HasNext boundary wrong")
	}
}
