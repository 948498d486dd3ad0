package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"plcdash-server/internal/modules/dashboard/service"
	"plcdash-server/internal/utils"
)

type StatusReporter interface {
	Status() service.Status
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	status StatusReporter
}

func NewHealthchecker(status StatusReporter) healthchecker {
	return &healthcheckerImpl{status: status}
}

type healthResponse struct {
	Status   string         `json:"status"`
	SourceOK bool           `json:"source_ok"`
	Source   service.Status `json:"source"`
}

// handleHealthz reports liveness. Source failures are informational; the
// process stays healthy while the fetcher falls back.
func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	utils.WriteJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		SourceOK: st.Cycles > 0 && st.ConsecutiveFailures == 0,
		Source:   st,
	})
}

func registerHealthcheck(r chi.Router, status StatusReporter) {
	healthchecker := NewHealthchecker(status)
	r.Get("/healthz", healthchecker.handleHealthz)
}
