package middleware

import (
	"context"
	"net/http"

	"github.com/pborman/uuid"

	"github.com/carenexus/ehrc-app/ehrc/constants"
	"github.com/carenexus/ehrc-app/ehrc/servicemux"
)

// type to create context.Context key
type CtxTransactionKeyType string

// context.Context key to get the transaction ID from the request context
const CtxTransactionKey CtxTransactionKeyType = "ctxTransaction"

// NewTransactionID adds a transaction ID to the request context. Incoming IDs
// from the client are honored so a retried request keeps one ID end to end.
func NewTransactionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transactionID := r.Header.Get(constants.TransactionIDHeader)
		if transactionID == "" {
			transactionID = uuid.New()
		}
		w.Header().Set(constants.TransactionIDHeader, transactionID)
		r = r.WithContext(context.WithValue(r.Context(), CtxTransactionKey, transactionID))
		next.ServeHTTP(w, r)
	})
}

// TransactionID returns the transaction ID stored in ctx, or "" when absent.
func TransactionID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxTransactionKey).(string); ok {
		return id
	}
	return ""
}

func ConnectionClose(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		next.ServeHTTP(w, r)
	})
}

func SecurityHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if servicemux.IsHTTPS(r) {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			w.Header().Set("Cache-Control", "no-cache; no-store; must-revalidate; max-age=0")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("X-Content-Type-Options", "nosniff")
		}
		next.ServeHTTP(w, r)
	})
}
