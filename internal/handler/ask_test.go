package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/queryhawk/queryhawk/internal/catalog"
	"github.com/queryhawk/queryhawk/internal/compiler"
	"github.com/queryhawk/queryhawk/internal/diagnostics"
	"github.com/queryhawk/queryhawk/internal/handler"
	"github.com/queryhawk/queryhawk/internal/pipeline"
	"github.com/queryhawk/queryhawk/internal/planner"
	"github.com/queryhawk/queryhawk/internal/quota"
	"github.com/queryhawk/queryhawk/internal/resolver"
	"github.com/queryhawk/queryhawk/internal/results"
	"github.com/queryhawk/queryhawk/internal/safety"
	"github.com/queryhawk/queryhawk/internal/warehouse"
)

func newAskHandler(wh *warehouse.Fake) *handler.AskHandler {
	cat := catalog.Default()
	orch := pipeline.New(
		resolver.New(cat),
		planner.New(cat, nil, planner.Options{}),
		compiler.New(nil, compiler.NewValidator(nil)),
		safety.New(wh, quota.NewMemory(1000, 24*time.Hour), safety.Limits{}),
		diagnostics.New(wh, nil, cat),
		wh,
		results.NewProcessor(""),
	)
	return handler.NewAskHandler(orch)
}

func postAsk(t *testing.T, h *handler.AskHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.Ask(rr, req)
	return rr
}

// ─── Request Handling ─────────────────────────────────────────────────────────

func TestAskSuccess(t *testing.T) {
	wh := warehouse.NewFake()
	wh.StubResult("GROUP BY sales.orders.region", []warehouse.Row{
		{"region": "EMEA", "revenue": 1200.0},
	})
	h := newAskHandler(wh)

	rr := postAsk(t, h, `{"query": "show me revenue by region", "user_id": "alice"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Status string         `json:"status"`
		Result map[string]any `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Result["data"] == nil {
		t.Error("result missing data")
	}
}

func TestAskInvalidJSON(t *testing.T) {
	h := newAskHandler(warehouse.NewFake())

	rr := postAsk(t, h, "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestAskEmptyQuery(t *testing.T) {
	h := newAskHandler(warehouse.NewFake())

	rr := postAsk(t, h, `{"query": ""}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "query is required") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestAskQueryTooLong(t *testing.T) {
	h := newAskHandler(warehouse.NewFake())

	rr := postAsk(t, h, `{"query": "`+strings.Repeat("a", 2001)+`"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

// ─── Error Mapping ────────────────────────────────────────────────────────────

func TestAskUngroundableMapsTo422(t *testing.T) {
	h := newAskHandler(warehouse.NewFake())

	rr := postAsk(t, h, `{"query": "tell me a joke"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rr.Code)
	}
}

func TestAskSafetyRejectionMapsTo403(t *testing.T) {
	wh := warehouse.NewFake()
	wh.Plan = &warehouse.PlanEstimate{EstimatedRows: 2_000_000, EstimatedCostUnits: 1.0}
	h := newAskHandler(wh)

	rr := postAsk(t, h, `{"query": "show me revenue by region"}`)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestAskUpstreamOutageMapsTo503(t *testing.T) {
	wh := warehouse.NewFake()
	wh.PlanErr = errors.New("connection refused")
	h := newAskHandler(wh)

	rr := postAsk(t, h, `{"query": "show me revenue by region"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

// ─── Health ───────────────────────────────────────────────────────────────────

func TestHealthAllOK(t *testing.T) {
	h := handler.NewHealthHandler(map[string]handler.HealthChecker{
		"warehouse": func(ctx context.Context) error { return nil },
	})

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"healthy"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestHealthDegraded(t *testing.T) {
	h := handler.NewHealthHandler(map[string]handler.HealthChecker{
		"warehouse": func(ctx context.Context) error { return errors.New("down") },
	})

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"degraded"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}
