package service

import (
	"encoding/json"
	"log/slog"

	"plcdash-server/internal/modules/dashboard/fetcher"
	"plcdash-server/internal/modules/dashboard/snapshot"
)

// SnapshotEvent is the SSE event type carrying a snapshot document.
const SnapshotEvent = "snapshot"

type Broadcaster interface {
	Publish(eventType string, data []byte)
}

// RegisterBroadcast pushes every assembled snapshot to b as JSON.
func RegisterBroadcast(s *Service, b Broadcaster, logger *slog.Logger) {
	s.OnCycle(func(snap snapshot.Snapshot, _ fetcher.Result) {
		data, err := json.Marshal(snap)
		if err != nil {
			logger.Error("failed to encode snapshot event", "error", err)
			return
		}
		b.Publish(SnapshotEvent, data)
	})
}
