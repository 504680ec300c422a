package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// New builds the gateway's HTTP server. Write timeout leaves room for the
// exchange call plus the per-subject fan-out. Server-level errors (TLS
// handshakes, malformed requests) go to logger at warn level.
func New(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    64 << 10,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}
