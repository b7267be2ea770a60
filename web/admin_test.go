package web

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func TestAdminBlocks(t *testing.T) {
	ts := setupTestServer(t)
	admin := bearer(testAdmin)

	w := ts.do(t, "POST", "/api/v1/admin/federation/blocks", []byte(`{"domain":"Spam.Example","reason":"spam"}`), admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	block := decode[blockView](t, w.Body.Bytes())
	if block.Domain != "spam.example" || block.Reason != "spam" {
		t.Errorf("Expected normalized block, got %+v", block)
	}

	w = ts.do(t, "GET", "/api/v1/admin/federation/blocks", nil, admin)
	list := decode[struct {
		Blocks []blockView `json:"blocks"`
	}](t, w.Body.Bytes())
	if len(list.Blocks) != 1 || list.Blocks[0].Domain != "spam.example" {
		t.Fatalf("Expected one block, got %+v", list.Blocks)
	}

	for i, expected := range []bool{true, false} {
		w = ts.do(t, "DELETE", "/api/v1/admin/federation/blocks/spam.example", nil, admin)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		res := decode[map[string]bool](t, w.Body.Bytes())
		if res["removed"] != expected {
			t.Errorf("Delete %d: expected removed=%t, got %t", i, expected, res["removed"])
		}
	}
}

func TestAdminBlocksValidation(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, "POST", "/api/v1/admin/federation/blocks", []byte(`{"domain":"not a domain"}`), bearer(testAdmin))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", w.Code)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	ts := setupTestServer(t)

	for _, path := range []string{"/api/v1/admin/federation/blocks", "/api/v1/admin/federation/health"} {
		if w := ts.do(t, "GET", path, nil); w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 for %s, got %d", path, w.Code)
		}
		if w := ts.do(t, "GET", path, nil, bearer("wrong")); w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 for %s with a wrong token, got %d", path, w.Code)
		}
	}
}

func TestAdminHealth(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	if err := ts.services.Health.RecordDeliveryResult(ctx, "down.example", false); err != nil {
		t.Fatalf("Failed to record failure: %v", err)
	}
	if err := ts.services.Health.RecordDeliveryResult(ctx, "up.example", true); err != nil {
		t.Fatalf("Failed to record success: %v", err)
	}

	w := ts.do(t, "GET", "/api/v1/admin/federation/health", nil, bearer(testAdmin))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	res := decode[struct {
		Domains []healthView `json:"domains"`
	}](t, w.Body.Bytes())
	if len(res.Domains) != 2 {
		t.Fatalf("Expected 2 domains, got %d", len(res.Domains))
	}
	for _, d := range res.Domains {
		switch d.Domain {
		case "down.example":
			if d.ConsecutiveFailures != 1 || d.BackoffUntil == nil {
				t.Errorf("Expected one failure with backoff, got %+v", d)
			}
		case "up.example":
			if d.ConsecutiveFailures != 0 || d.LastSuccessAt == nil {
				t.Errorf("Expected a healthy domain, got %+v", d)
			}
		default:
			t.Errorf("Unexpected domain %s", d.Domain)
		}
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	ts := setupTestServer(t)

	if w := ts.do(t, "GET", "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200 from /healthz, got %d", w.Code)
	}

	// one processed activity so the inbox counter has a sample
	ts.do(t, "POST", "/inbox", []byte(`{"type":"Like","actor":"https://remote.example/users/bob","object":"x"}`))
	w := ts.do(t, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from /metrics, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "mangafedi_") {
		t.Error("Expected mangafedi metrics in the exposition")
	}
}
