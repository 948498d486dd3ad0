package service

import (
	"context"
	"log/slog"

	"plcdash-server/internal/modules/dashboard/fetcher"
	"plcdash-server/internal/modules/dashboard/snapshot"
	"plcdash-server/internal/modules/dashboard/types"
)

const relayBuffer = 16

// ReadingPublisher relays acquired readings to a message broker.
type ReadingPublisher interface {
	PublishReading(r types.Reading, fallback bool) error
}

type relayItem struct {
	reading  types.Reading
	fallback bool
}

// RegisterMQTTRelay publishes each cycle's reading from a separate goroutine
// so a slow broker never stalls the poller. It stops when ctx is done.
func RegisterMQTTRelay(ctx context.Context, s *Service, publisher ReadingPublisher, logger *slog.Logger) {
	queue := make(chan relayItem, relayBuffer)

	s.OnCycle(func(_ snapshot.Snapshot, res fetcher.Result) {
		select {
		case queue <- relayItem{reading: res.Reading, fallback: res.Fallback}:
		default:
			logger.Warn("mqtt relay queue full, reading dropped", "time", res.Reading.Time)
		}
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case item := <-queue:
				if err := publisher.PublishReading(item.reading, item.fallback); err != nil {
					logger.Error("failed to relay reading",
						"time", item.reading.Time,
						"error", err,
					)
					continue
				}
				logger.Debug("relayed reading",
					"humidity", item.reading.Humidity,
					"temperature", item.reading.Temperature,
				)
			}
		}
	}()
}
