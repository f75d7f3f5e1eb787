package middleware

import "net/http"

// CORS returns an HTTP middleware that handles CORS preflight requests and
// sets CORS headers. This is an HTTP middleware, not an RPC interceptor, so
// it wraps the entire http.Handler.
//
// Beacon's wire contract (spec.md §6) is fixed: every origin is allowed, no
// credentials are ever sent, and the allowed methods are always
// "OPTIONS, GET, POST". There's no per-deployment configuration to thread
// through, so unlike the teacher's generic CORS middleware this one takes
// no CORSConfig.
func CORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")

			if r.Method == "OPTIONS" {
				w.Header().Set("Allow", "OPTIONS, GET, POST")
				w.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET, POST")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
