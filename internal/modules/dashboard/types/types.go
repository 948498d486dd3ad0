package types

import "time"

// Scale is the fixed-point factor of raw PLC values (tenths).
const Scale = 10

// Reading is one timestamped humidity/temperature sample. Raw values are
// tenths of a percent and tenths of a degree Celsius.
type Reading struct {
	Time        time.Time `json:"time"`
	Humidity    int64     `json:"humidity"`
	Temperature int64     `json:"temperature"`
}

// HumidityPct returns the display value of the humidity in percent.
func (r Reading) HumidityPct() float64 {
	return float64(r.Humidity) / Scale
}

// TemperatureC returns the display value of the temperature in degrees Celsius.
func (r Reading) TemperatureC() float64 {
	return float64(r.Temperature) / Scale
}

// Quantity holds summary statistics over raw (tenths-scaled) values.
type Quantity struct {
	Min  int64   `json:"min"`
	Max  int64   `json:"max"`
	Mean float64 `json:"mean"`
}

type Statistics struct {
	Humidity    Quantity `json:"humidity"`
	Temperature Quantity `json:"temperature"`
}
