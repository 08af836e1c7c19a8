package portalstub

import (
	"net/http"
)

// NewRouter creates the stub's HTTP handler. token is the expected bearer
// token; empty disables authentication.
func NewRouter(store *Store, token string) http.Handler {
	handler := NewHandler(store)
	auth := AuthMiddleware(token)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("POST /api/v1/publisher/upload", auth(http.HandlerFunc(handler.Upload)))
	mux.Handle("POST /api/v1/publisher/status", auth(http.HandlerFunc(handler.Status)))
	mux.Handle("POST /api/v1/publisher/deployment/{deploymentId}", auth(http.HandlerFunc(handler.Publish)))

	var h http.Handler = mux
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
