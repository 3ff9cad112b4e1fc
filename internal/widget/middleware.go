package widget

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// clientContextKey stores the parsed Client in the request context.
const clientContextKey contextKey = "widget_client"

// Middleware identifies the widget client on each request and stores it in
// the request context.
//
// A missing header is not an error: the request is simply not widget-routed
// and downstream handlers treat it as native storefront traffic. A malformed
// header or an unsupported script version is logged and likewise demoted to
// native traffic, never rejected, so a broken widget build degrades to the
// page behaving as if the widget were absent.
func Middleware(minVersion string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(Header)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			client, err := ParseHeader(header)
			if err != nil {
				logger.Warn("invalid widget header, treating as native traffic",
					slog.String("header", header),
					slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			if !client.Supported(minVersion) {
				logger.Warn("unsupported widget version, treating as native traffic",
					slog.String("session_id", client.SessionID),
					slog.String("version", client.Version),
					slog.String("min_version", minVersion))
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), clientContextKey, &client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves the widget client, or nil for native traffic.
func FromContext(ctx context.Context) *Client {
	v := ctx.Value(clientContextKey)
	if v == nil {
		return nil
	}
	return v.(*Client)
}
