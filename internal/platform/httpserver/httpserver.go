// Package httpserver configures the API's http.Server.
package httpserver

import (
	"net/http"
	"time"
)

// Timeouts sized for a JSON API: headers arrive fast, listing payloads with
// amenity arrays stay small, and idle keep-alives are bounded so load
// balancers recycle connections predictably.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
