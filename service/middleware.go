package service

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/veskar/trialkit/idgen"
	"github.com/veskar/trialkit/kit"
)

// requestIDMiddleware tags every request with an ID for audit correlation
// and echoes it back in the X-Request-ID header.
func requestIDMiddleware(gen idgen.Generator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = gen()
			}
			ctx := kit.WithRequestID(r.Context(), reqID)
			ctx = kit.WithTraceID(ctx, reqID)
			ctx = kit.WithTransport(ctx, "http")
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)

			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authMiddleware checks the X-API-Key header against the configured bcrypt
// hashes. An empty key list disables auth entirely (dev mode).
func authMiddleware(keys []APIKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-API-Key")
			if presented == "" {
				http.Error(w, "missing API key", http.StatusUnauthorized)
				return
			}
			for _, k := range keys {
				if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(presented)) == nil {
					ctx := kit.WithUserID(r.Context(), k.Name)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			http.Error(w, "invalid API key", http.StatusUnauthorized)
		})
	}
}
