package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const ctxPricingKey contextKey = "parsed_pricing"

// AllowedCurrencies is the set of currencies the engine settles in.
// PricingCheck rejects requests with unknown currencies early.
var AllowedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
}

// parsedPricing is stored in context so the handler can read the amount
// without re-parsing the body.
type parsedPricing struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// PricingFromCtx returns the amount parsed by PricingCheck, or 0 if not set.
func PricingFromCtx(ctx context.Context) int64 {
	if p, ok := ctx.Value(ctxPricingKey).(*parsedPricing); ok {
		return p.AmountCents
	}
	return 0
}

// PricingCheck validates monetary fields on write requests before they reach
// the handler. Reads the body to extract "amount_cents" and "currency", then
// replaces r.Body so downstream handlers can re-read it.
func PricingCheck() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedPricing
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.AmountCents <= 0 {
				http.Error(w, `{"error":"amount_cents must be > 0"}`, http.StatusUnprocessableEntity)
				return
			}
			if peek.Currency != "" && !AllowedCurrencies[peek.Currency] {
				http.Error(w, fmt.Sprintf(`{"error":"currency %q is not supported"}`, peek.Currency), http.StatusUnprocessableEntity)
				return
			}

			ctx := context.WithValue(r.Context(), ctxPricingKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
