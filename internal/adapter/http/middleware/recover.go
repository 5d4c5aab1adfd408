package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
)

const panicMessage = "the server encountered a problem and could not process your request"

// Recover turns a handler panic into a 500 that echoes the request ID.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}

			requestID := w.Header().Get(requestIDHeader)
			ctx := wrap.WithRequestID(wrap.WithAction(r.Context(), "panic_recover"), requestID)
			m.log.Error(ctx, "recovered from panic", fmt.Errorf("%v", p), "method", r.Method, "URL", r.URL.Path)

			body, _ := json.Marshal(map[string]string{
				"error":      panicMessage,
				"request_id": requestID,
			})
			w.Header().Set("Connection", "close")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write(body)
		}()

		next.ServeHTTP(w, r)
	})
}
