// Package stats derives per-quantity summary statistics over a window of readings.
package stats

import "plcdash-server/internal/modules/dashboard/types"

// Compute returns min, max and mean of the raw humidity and temperature values
// in window. An empty window yields all zeros.
func Compute(window []types.Reading) types.Statistics {
	if len(window) == 0 {
		return types.Statistics{}
	}
	return types.Statistics{
		Humidity:    quantity(window, func(r types.Reading) int64 { return r.Humidity }),
		Temperature: quantity(window, func(r types.Reading) int64 { return r.Temperature }),
	}
}

func quantity(window []types.Reading, value func(types.Reading) int64) types.Quantity {
	first := value(window[0])
	q := types.Quantity{Min: first, Max: first}
	// Summed as float64; raw values may be anywhere in the int64 range.
	var sum float64
	for _, r := range window {
		v := value(r)
		if v < q.Min {
			q.Min = v
		}
		if v > q.Max {
			q.Max = v
		}
		sum += float64(v)
	}
	q.Mean = sum / float64(len(window))
	return q
}
