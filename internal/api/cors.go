package api

import (
	"net/http"

	"github.com/rs/cors"
)

// Every origin is accepted and reflected back, so browsers also honour
// credentialed requests, which a literal "*" would not allow. Methods are the
// registered standard set; extension methods fail preflight.
var corsPolicy = cors.Options{
	AllowOriginFunc: func(string) bool { return true },
	AllowedMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
		http.MethodConnect,
		http.MethodTrace,
	},
	AllowedHeaders:   []string{"*"},
	ExposedHeaders:   []string{requestIDHeader, "Retry-After", "X-RateLimit-Remaining"},
	AllowCredentials: true,
}

func withCORS(next http.Handler) http.Handler {
	return cors.New(corsPolicy).Handler(next)
}
