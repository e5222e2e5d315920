package middleware

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the storefront origins to call the gateway from a browser.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	slog.Info("cors configured", "allowedOrigins", allowedOrigins)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Cache-Control"},
		MaxAge:         3600,
	})
	return c.Handler
}
