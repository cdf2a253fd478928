// Package recovery keeps a panicking API handler from taking the process down.
package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/api/respond"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/metrics"
)

// Middleware answers a handler panic with the API's JSON 500 body. Aborts
// requested through http.ErrAbortHandler propagate to net/http untouched.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			metrics.HTTPPanics.Inc()
			log.Error().
				Interface("panic", rec).
				Str("route", r.Method+" "+r.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("API handler panicked")
			respond.WriteError(w, http.StatusInternalServerError, "")
		}()
		next.ServeHTTP(w, r)
	})
}
