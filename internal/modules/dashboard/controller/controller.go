package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"plcdash-server/internal/modules/dashboard/snapshot"
)

// SnapshotProvider returns the dashboard view for one request.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) snapshot.Snapshot
}

// StreamSubscriber serves a long-lived event stream until the client leaves.
type StreamSubscriber interface {
	Subscribe(w http.ResponseWriter, r *http.Request) error
}

type DashboardController interface {
	RegisterRoutes(r chi.Router)
}

type dashboardControllerImpl struct {
	snapshots SnapshotProvider
	stream    StreamSubscriber
	refresh   time.Duration
}

func NewDashboardController(snapshots SnapshotProvider, stream StreamSubscriber, refresh time.Duration) DashboardController {
	return &dashboardControllerImpl{snapshots: snapshots, stream: stream, refresh: refresh}
}

func (c *dashboardControllerImpl) RegisterRoutes(r chi.Router) {
	r.Get("/", c.handleDashboard)
	r.Get("/partials/stats", c.handleStatsPartial)
	r.Get("/api/v1/snapshot", c.handleSnapshot)
	if c.stream != nil {
		r.Get("/api/v1/stream", c.handleStream)
	}
}
