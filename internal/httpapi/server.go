package httpapi

import (
	"net/http"
	"time"

	"plcdash-server/internal/config"
)

// NewServer has no write timeout so event streams stay open.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
