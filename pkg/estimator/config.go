package estimator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FloatList is a per-array configuration field that accepts either a bare
// number or an array of numbers in JSON. A single value broadcasts to every
// configured array.
type FloatList []float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FloatList) UnmarshalJSON(b []byte) error {
	var list []float64
	if err := json.Unmarshal(b, &list); err == nil {
		*f = list
		return nil
	}
	var single float64
	if err := json.Unmarshal(b, &single); err != nil {
		return fmt.Errorf("expected a number or an array of numbers: %w", err)
	}
	*f = FloatList{single}
	return nil
}

// PVArray is the validated configuration of one physical array, built once at
// startup and immutable afterwards.
type PVArray struct {
	Latitude  float64
	Longitude float64
	// Azimuth of the plane: 0 south, -90 east, 90 west.
	Azimuth float64
	// Declination is the tilt of the plane in degrees from horizontal.
	Declination float64
	// DCWatts is the rated DC power of the array.
	DCWatts float64
	// EfficiencyFactor scales the computed power for system losses.
	EfficiencyFactor float64
	// DampingMorning and DampingEvening derate low-sun-angle output. 0 means
	// no damping, 1 means output starts (or ends) at zero.
	DampingMorning float64
	DampingEvening float64
}

// Config is the full forecasting configuration. Per-array fields take a
// scalar or a list; the number of arrays is the length of DCKilowatts.
type Config struct {
	Latitude         FloatList
	Longitude        FloatList
	Azimuth          FloatList
	Declination      FloatList
	DCKilowatts      FloatList
	EfficiencyFactor FloatList
	DampingMorning   FloatList
	DampingEvening   FloatList

	// ACKilowatts is the inverter AC ceiling. 0 means unbounded.
	ACKilowatts float64

	WeatherModel string
	CloudModel   string
	// CloudCorrection is the cloud derating coefficient in [0, 1]. 0.7 means
	// 100% cloud cover costs 70% of the power.
	CloudCorrection float64

	PastDays     int
	ForecastDays int
}

// Arrays validates the configuration and broadcasts scalar fields into one
// PVArray per configured array. Mismatched list lengths, out-of-range
// coordinates and malformed model identifiers are rejected here, before any
// network call.
func (c Config) Arrays() ([]PVArray, error) {
	n := len(c.DCKilowatts)
	if n == 0 {
		return nil, fmt.Errorf("at least one array must be configured via dc-kw")
	}

	broadcast := func(name string, f FloatList) ([]float64, error) {
		switch len(f) {
		case n:
			return f, nil
		case 1:
			out := make([]float64, n)
			for i := range out {
				out[i] = f[0]
			}
			return out, nil
		default:
			return nil, fmt.Errorf("%s must have 1 value or the same length as dc-kw (%d), got %d", name, n, len(f))
		}
	}
	withDefault := func(f FloatList, def float64) FloatList {
		if len(f) == 0 {
			return FloatList{def}
		}
		return f
	}

	lat, err := broadcast("latitude", c.Latitude)
	if err != nil {
		return nil, err
	}
	lon, err := broadcast("longitude", c.Longitude)
	if err != nil {
		return nil, err
	}
	azimuth, err := broadcast("azimuth", withDefault(c.Azimuth, 0))
	if err != nil {
		return nil, err
	}
	declination, err := broadcast("declination", withDefault(c.Declination, 0))
	if err != nil {
		return nil, err
	}
	efficiency, err := broadcast("efficiency-factor", withDefault(c.EfficiencyFactor, 1.0))
	if err != nil {
		return nil, err
	}
	dampingMorning, err := broadcast("damping-morning", withDefault(c.DampingMorning, 0))
	if err != nil {
		return nil, err
	}
	dampingEvening, err := broadcast("damping-evening", withDefault(c.DampingEvening, 0))
	if err != nil {
		return nil, err
	}

	if c.CloudCorrection < 0 || c.CloudCorrection > 1 {
		return nil, fmt.Errorf("cloud-correction must be between 0 and 1, got %v", c.CloudCorrection)
	}
	if strings.Contains(c.WeatherModel, ",") {
		return nil, fmt.Errorf("weather-model must name a single model, got %q", c.WeatherModel)
	}
	if strings.Contains(c.CloudModel, ",") {
		return nil, fmt.Errorf("cloud-model must name a single model, got %q", c.CloudModel)
	}
	if c.PastDays < 0 || c.ForecastDays < 1 {
		return nil, fmt.Errorf("past-days must be >= 0 and forecast-days >= 1")
	}

	arrays := make([]PVArray, n)
	for i := 0; i < n; i++ {
		if lat[i] < -90 || lat[i] > 90 {
			return nil, fmt.Errorf("latitude %v out of range for array %d", lat[i], i)
		}
		if lon[i] < -180 || lon[i] > 180 {
			return nil, fmt.Errorf("longitude %v out of range for array %d", lon[i], i)
		}
		if c.DCKilowatts[i] <= 0 {
			return nil, fmt.Errorf("dc-kw must be positive for array %d, got %v", i, c.DCKilowatts[i])
		}
		arrays[i] = PVArray{
			Latitude:         lat[i],
			Longitude:        lon[i],
			Azimuth:          azimuth[i],
			Declination:      declination[i],
			DCWatts:          c.DCKilowatts[i] * 1000,
			EfficiencyFactor: efficiency[i],
			DampingMorning:   dampingMorning[i],
			DampingEvening:   dampingEvening[i],
		}
	}
	return arrays, nil
}
