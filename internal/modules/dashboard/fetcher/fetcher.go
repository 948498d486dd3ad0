// Package fetcher turns telemetry source failures into fallback readings.
// Fetch never fails: the returned Result always carries a usable Reading.
package fetcher

import (
	"context"
	"log/slog"
	"time"

	"plcdash-server/internal/modules/dashboard/source"
	"plcdash-server/internal/modules/dashboard/types"
)

// LatestReader exposes the newest entry of the rolling history.
type LatestReader interface {
	Latest() (types.Reading, bool)
}

// Result is the outcome of one fetch. When Fallback is set, Err holds the
// source failure and Reading is the substituted value.
type Result struct {
	Reading  types.Reading
	Fallback bool
	Err      error
}

type Fetcher struct {
	src     source.Source
	history LatestReader
	logger  *slog.Logger
	now     func() time.Time
}

func New(src source.Source, history LatestReader, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		src:     src,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

// Fetch reads one sample from the source. It does not append to the history.
func (f *Fetcher) Fetch(ctx context.Context) Result {
	sample, err := f.src.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown or a departed client, not a source failure.
			f.logger.Debug("telemetry fetch cancelled", "error", err)
			return f.fallback(err)
		}
		res := f.fallback(err)
		f.logger.Warn("telemetry fetch failed, using fallback reading",
			"error", err,
			"humidity", res.Reading.Humidity,
			"temperature", res.Reading.Temperature,
		)
		return res
	}
	return Result{
		Reading: types.Reading{
			Time:        f.now(),
			Humidity:    sample.Humidity,
			Temperature: sample.Temperature,
		},
	}
}

// fallback is the only place a source failure is absorbed: the newest history
// values stamped now, or a zero reading on a cold start.
func (f *Fetcher) fallback(err error) Result {
	r := types.Reading{Time: f.now()}
	if last, ok := f.history.Latest(); ok {
		r.Humidity = last.Humidity
		r.Temperature = last.Temperature
	}
	return Result{Reading: r, Fallback: true, Err: err}
}
