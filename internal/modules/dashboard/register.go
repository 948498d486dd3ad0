package dashboard

import (
	"time"

	"github.com/go-chi/chi/v5"

	"plcdash-server/internal/modules/dashboard/controller"
	"plcdash-server/internal/modules/dashboard/service"
	"plcdash-server/internal/sse"
)

// RegisterFeature mounts the dashboard page, snapshot API and event stream.
// A nil hub disables the stream endpoint.
func RegisterFeature(r chi.Router, svc *service.Service, hub *sse.Hub, refresh time.Duration) {
	var stream controller.StreamSubscriber
	if hub != nil {
		stream = hub
	}
	dashboardController := controller.NewDashboardController(svc, stream, refresh)
	dashboardController.RegisterRoutes(r)
}
