package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPricingCheckPassesAndRestoresBody(t *testing.T) {
	var bodySeen string
	var amountSeen int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodySeen = string(b)
		amountSeen = PricingFromCtx(r.Context())
	})

	body := `{"amount_cents":2500,"currency":"USD","title":"weld the frame"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	PricingCheck()(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if bodySeen != body {
		t.Errorf("handler must see the full body, got %q", bodySeen)
	}
	if amountSeen != 2500 {
		t.Errorf("amount in context: got %d, want 2500", amountSeen)
	}
}

func TestPricingCheckRejectsBadMoney(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	})

	cases := map[string]string{
		"zero amount":      `{"amount_cents":0,"currency":"USD"}`,
		"negative amount":  `{"amount_cents":-50,"currency":"USD"}`,
		"unknown currency": `{"amount_cents":100,"currency":"DOGE"}`,
	}
	for name, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
		rec := httptest.NewRecorder()
		PricingCheck()(next).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: got %d, want 422", name, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	PricingCheck()(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid json: got %d, want 400", rec.Code)
	}
}
