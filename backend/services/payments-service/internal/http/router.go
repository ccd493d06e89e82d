package httpserver

import "net/http"

// Routes groups service handlers. The webhook endpoint stays outside the
// auth middleware: its caller is the gateway, authenticated by signature.
type Routes struct {
	Webhook    http.HandlerFunc
	Verify     http.HandlerFunc
	Checkout   http.HandlerFunc
	PaymentsMe http.HandlerFunc
	Health     http.HandlerFunc
	Metrics    http.Handler

	Auth func(http.Handler) http.Handler
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.Handler {
		if routes.Auth == nil {
			return h
		}
		return routes.Auth(h)
	}

	if routes.Webhook != nil {
		mux.Handle("/webhooks/paystack", method(http.MethodPost, routes.Webhook))
	}
	if routes.Verify != nil {
		mux.Handle("/payments/verify", method(http.MethodPost, authed(routes.Verify).ServeHTTP))
	}
	if routes.Checkout != nil {
		mux.Handle("/payments/checkout", method(http.MethodPost, authed(routes.Checkout).ServeHTTP))
	}
	if routes.PaymentsMe != nil {
		mux.Handle("/payments/me", method(http.MethodGet, authed(routes.PaymentsMe).ServeHTTP))
	}
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", method(http.MethodGet, routes.Metrics.ServeHTTP))
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
