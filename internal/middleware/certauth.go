// Package middleware provides HTTP middlewares for station identity and
// request logging.
package middleware

import (
	"context"
	"net/http"
)

type ctxKey string

const stationKey ctxKey = "station"

// StationIdentity records which station sent a request.
//
// When the connection carries a verified client certificate its Common Name
// is stored in the request context. Requests without one pass through with
// no identity; the listener's TLS config decides whether certificates are
// mandatory.
func StationIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		cert := r.TLS.PeerCertificates[0]
		ctx := context.WithValue(r.Context(), stationKey, cert.Subject.CommonName)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StationFromContext returns the station name stored by StationIdentity,
// or an empty string.
func StationFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(stationKey).(string); ok {
		return s
	}
	return ""
}
