package snapshot

import (
	"encoding/json"
	"time"

	"plcdash-server/internal/modules/dashboard/types"
)

// ClockLayout formats reading times for tables and chart axes.
const ClockLayout = "15:04:05"

// Document is the JSON form of a Snapshot served to browsers. Raw fields keep
// the PLC's tenths scaling; the *_pct and *_c fields are display values.
type Document struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Current     DocumentReading   `json:"current"`
	Recent      []DocumentReading `json:"recent"`
	Series      Series            `json:"series"`
	Stats       DocumentStats     `json:"stats"`
}

type DocumentReading struct {
	Time         time.Time `json:"time"`
	Humidity     int64     `json:"humidity"`
	Temperature  int64     `json:"temperature"`
	HumidityPct  float64   `json:"humidity_pct"`
	TemperatureC float64   `json:"temperature_c"`
}

// Series holds parallel chart columns in arrival order.
type Series struct {
	Time        []string  `json:"time"`
	Humidity    []float64 `json:"humidity"`
	Temperature []float64 `json:"temperature"`
}

type DocumentQuantity struct {
	types.Quantity
	MinDisplay  float64 `json:"min_display"`
	MaxDisplay  float64 `json:"max_display"`
	MeanDisplay float64 `json:"mean_display"`
}

type DocumentStats struct {
	Humidity    DocumentQuantity `json:"humidity"`
	Temperature DocumentQuantity `json:"temperature"`
}

func (s Snapshot) Document() Document {
	recent := make([]DocumentReading, 0, len(s.Recent))
	for _, r := range s.Recent {
		recent = append(recent, documentReading(r))
	}
	return Document{
		GeneratedAt: s.GeneratedAt,
		Current:     documentReading(s.Current),
		Recent:      recent,
		Series:      s.ChartSeries(),
		Stats: DocumentStats{
			Humidity:    documentQuantity(s.Stats.Humidity),
			Temperature: documentQuantity(s.Stats.Temperature),
		},
	}
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// ChartSeries returns the full window as display-scaled chart columns.
func (s Snapshot) ChartSeries() Series {
	out := Series{
		Time:        make([]string, 0, len(s.Series)),
		Humidity:    make([]float64, 0, len(s.Series)),
		Temperature: make([]float64, 0, len(s.Series)),
	}
	for _, r := range s.Series {
		out.Time = append(out.Time, r.Time.Format(ClockLayout))
		out.Humidity = append(out.Humidity, r.HumidityPct())
		out.Temperature = append(out.Temperature, r.TemperatureC())
	}
	return out
}

func documentReading(r types.Reading) DocumentReading {
	return DocumentReading{
		Time:         r.Time,
		Humidity:     r.Humidity,
		Temperature:  r.Temperature,
		HumidityPct:  r.HumidityPct(),
		TemperatureC: r.TemperatureC(),
	}
}

func documentQuantity(q types.Quantity) DocumentQuantity {
	return DocumentQuantity{
		Quantity:    q,
		MinDisplay:  float64(q.Min) / types.Scale,
		MaxDisplay:  float64(q.Max) / types.Scale,
		MeanDisplay: q.Mean / types.Scale,
	}
}
