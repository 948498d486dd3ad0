package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Every response reflects the latest poll, so none of them may be cached.
const cacheControl = "no-store"

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to write JSON", "error", err)
	}
}

// WriteError writes {error, message} and, when the request carries a chi
// request id, echoes it as request_id so the log line can be found.
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	body := map[string]any{
		"error":   http.StatusText(status),
		"message": msg,
	}
	reqID := middleware.GetReqID(r.Context())
	if reqID != "" {
		body["request_id"] = reqID
	}
	slog.Warn("http error response",
		"status", status,
		"message", msg,
		"path", r.URL.Path,
		"request_id", reqID,
	)
	WriteJSON(w, status, body)
}

// WriteHTML writes a fully rendered page or fragment.
func WriteHTML(w http.ResponseWriter, r *http.Request, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", cacheControl)
	if _, err := w.Write(body); err != nil {
		slog.Error("write response failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
}
