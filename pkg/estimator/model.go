package estimator

import (
	"fmt"
	"math"
	"time"

	"github.com/heliocast/heliocast/pkg/openmeteo"
	"github.com/heliocast/heliocast/pkg/types"
)

// Standard test conditions PV panels are rated against.
const (
	gSTC        = 1000.0 // irradiance, W/m²
	tempSTCCell = 25.0   // cell temperature, °C
	alphaTemp   = -0.005 // power temperature coefficient, 1/°C
)

// Ross coefficients relating irradiance to the cell-over-ambient temperature
// rise, per mounting regime. Residential mounts count as "not so well
// cooled"; the coefficient is not configurable in this version.
const (
	rossWellCooled       = 0.0200
	rossNotSoWellCooled  = 0.0342
	rossHighlyIntegrated = 0.0455
)

const sampleInterval = 15 * time.Minute

// timeLayout is how the API formats naive timestamps, interpreted in the
// fixed offset from utc_offset_seconds.
const timeLayout = "2006-01-02T15:04"

// generatedPower computes the power (W) one array produces for an irradiance
// and ambient temperature sample, using the Ross cell-temperature model:
//
//	T_cell = T_ambient + G * k_ross
//	P = P_dc * (G / G_STC) * (1 + alpha * (T_cell - T_STC)) * eff
//
// floored at zero and rounded to the nearest whole watt.
func generatedPower(gti, ambient, eff, dcWatts float64) float64 {
	tempCell := ambient + gti*rossNotSoWellCooled
	power := dcWatts * (gti / gSTC) * (1 + alphaTemp*(tempCell-tempSTCCell)) * eff
	return math.Round(math.Max(0, power))
}

// dampingCoefficient derates output near sunrise and sunset. Outside the
// daylight window it is 1.0. In the morning half (sunrise to the midpoint of
// the day) it ramps linearly from 1-morning up to 1.0; in the evening half it
// ramps from 1.0 down to 1-evening at sunset.
func dampingCoefficient(t, sunrise, sunset time.Time, morning, evening float64) float64 {
	noon := sunrise.Add(sunset.Sub(sunrise) / 2)

	linear := func(start, end time.Time, damping float64) float64 {
		duration := end.Sub(start)
		if duration == 0 {
			return 1.0
		}
		ratio := float64(t.Sub(start)) / float64(duration)
		return ratio*damping + (1.0 - damping)
	}

	if !t.Before(sunrise) && !t.After(noon) {
		return linear(sunrise, noon, morning)
	}
	if !t.Before(noon) && !t.After(sunset) {
		// Walked backwards from sunset so the ramp ends at 1-evening.
		return linear(sunset, noon, evening)
	}
	return 1.0
}

// accumulator sums per-array power contributions into the shared 15-minute
// series before clamping and aggregation.
type accumulator struct {
	offset int
	loc    *time.Location
	wAvg   map[int64]float64
	wInst  map[int64]float64
}

func newAccumulator(utcOffsetSeconds int) *accumulator {
	return &accumulator{
		offset: utcOffsetSeconds,
		loc:    time.FixedZone("API", utcOffsetSeconds),
		wAvg:   make(map[int64]float64),
		wInst:  make(map[int64]float64),
	}
}

// addArray folds one array's weather response into the power series. Each
// sample is keyed by the start of its 15-minute interval because the API
// reports averages keyed by interval end. Samples with any missing value
// (including the previous temperature, needed for the window average) are
// skipped entirely: absence is no contribution, not zero.
func (a *accumulator) addArray(arr PVArray, resp *openmeteo.WeatherResponse) error {
	m := resp.Minutely15
	if len(m.GTIAvg) < len(m.Time) || len(m.GTIInstant) < len(m.Time) || len(m.Temperature) < len(m.Time) {
		return fmt.Errorf("weather response series are shorter than the time series")
	}

	sunrise, err := a.parseDaily(resp.Daily.Sunrise)
	if err != nil {
		return fmt.Errorf("failed to parse sunrise: %w", err)
	}
	sunset, err := a.parseDaily(resp.Daily.Sunset)
	if err != nil {
		return fmt.Errorf("failed to parse sunset: %w", err)
	}

	for i, raw := range m.Time {
		// The first sample has no previous temperature to average with.
		if i == 0 {
			continue
		}
		if m.GTIAvg[i] == nil || m.GTIInstant[i] == nil || m.Temperature[i] == nil || m.Temperature[i-1] == nil {
			continue
		}

		t, err := time.ParseInLocation(timeLayout, raw, a.loc)
		if err != nil {
			return fmt.Errorf("failed to parse sample time %q: %w", raw, err)
		}

		damping := 1.0
		date := t.Format(time.DateOnly)
		if rise, ok := sunrise[date]; ok {
			if set, ok := sunset[date]; ok {
				damping = dampingCoefficient(t, rise, set, arr.DampingMorning, arr.DampingEvening)
			}
		}
		effDamped := arr.EfficiencyFactor * damping

		tempAvg := (*m.Temperature[i] + *m.Temperature[i-1]) / 2
		tempInst := *m.Temperature[i-1]
		start := t.Add(-sampleInterval).Unix()

		a.wAvg[start] += generatedPower(*m.GTIAvg[i], tempAvg, effDamped, arr.DCWatts)
		a.wInst[start] += generatedPower(*m.GTIInstant[i], tempInst, effDamped, arr.DCWatts)
	}
	return nil
}

// parseDaily maps each daily timestamp to its calendar date.
func (a *accumulator) parseDaily(raw []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(raw))
	for _, s := range raw {
		t, err := time.ParseInLocation(timeLayout, s, a.loc)
		if err != nil {
			return nil, fmt.Errorf("bad daily timestamp %q: %w", s, err)
		}
		out[t.Format(time.DateOnly)] = t
	}
	return out, nil
}

// estimate clamps the summed series to the AC ceiling and collapses them into
// hourly and daily energy. acWatts <= 0 means unbounded.
func (a *accumulator) estimate(acWatts float64) *types.Estimate {
	if acWatts > 0 {
		for ts, w := range a.wAvg {
			a.wAvg[ts] = math.Min(w, acWatts)
		}
		for ts, w := range a.wInst {
			a.wInst[ts] = math.Min(w, acWatts)
		}
	}

	// Hourly energy is the arithmetic mean of whatever 15-minute samples fell
	// in the hour; 4 are expected but forecast boundaries can have fewer.
	whPeriod := make(map[int64]float64)
	counts := make(map[int64]int)
	for ts, w := range a.wAvg {
		hour := a.hourStart(ts)
		whPeriod[hour] += w
		counts[hour]++
	}
	for hour := range whPeriod {
		whPeriod[hour] /= float64(counts[hour])
	}

	whDays := make(map[int64]float64)
	for hour, wh := range whPeriod {
		whDays[a.dayStart(hour)] += wh
	}

	return &types.Estimate{
		Watts:            a.wInst,
		WhPeriod:         whPeriod,
		WhDays:           whDays,
		UTCOffsetSeconds: a.offset,
	}
}

func (a *accumulator) hourStart(ts int64) int64 {
	t := time.Unix(ts, 0).In(a.loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), 0, 0, 0, a.loc).Unix()
}

func (a *accumulator) dayStart(ts int64) int64 {
	t := time.Unix(ts, 0).In(a.loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.loc).Unix()
}
