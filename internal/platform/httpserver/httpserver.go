package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with timeouts suited to this API: requests are
// small JSON bodies, nothing streams.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
