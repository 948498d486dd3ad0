package httpapi

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewMux returns the root router with request ids, panic recovery, request
// logging, /healthz and, if staticDir exists, /static/.
func NewMux(status StatusReporter, staticDir string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	registerHealthcheck(r, status)
	registerStatic(r, staticDir)
	return r
}

func registerStatic(r chi.Router, dir string) {
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		slog.Warn("static dir not found, /static/ disabled", "dir", dir)
		return
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
}
