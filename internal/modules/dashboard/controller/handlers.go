package controller

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"plcdash-server/internal/modules/dashboard/views"
	"plcdash-server/internal/sse"
	"plcdash-server/internal/utils"
)

func (c *dashboardControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := views.NewDashboardData(c.snapshots.Snapshot(r.Context()), c.refresh)

	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, data); err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, r, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, r, buf.Bytes())
}

func (c *dashboardControllerImpl) handleStatsPartial(w http.ResponseWriter, r *http.Request) {
	data := views.NewDashboardData(c.snapshots.Snapshot(r.Context()), c.refresh)

	var buf bytes.Buffer
	if err := views.RenderStatsPartial(&buf, data); err != nil {
		slog.Error("stats partial render failed", "error", err)
		utils.WriteError(w, r, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, r, buf.Bytes())
}

func (c *dashboardControllerImpl) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.snapshots.Snapshot(r.Context()))
}

func (c *dashboardControllerImpl) handleStream(w http.ResponseWriter, r *http.Request) {
	err := c.stream.Subscribe(w, r)
	switch {
	case err == nil:
	case errors.Is(err, sse.ErrStreamingUnsupported):
		utils.WriteError(w, r, http.StatusInternalServerError, "streaming unsupported")
	default:
		slog.Debug("stream closed", "error", err)
	}
}
