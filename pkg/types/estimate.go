package types

import (
	"encoding/json"
	"time"
)

// Estimate represents a solar production forecast for one site. The maps are
// keyed by unix seconds: Watts by 15-minute interval start, WhPeriod by hour
// start and WhDays by midnight of the day, all in the forecast's own UTC
// offset.
type Estimate struct {
	// Watts is the instantaneous generated power (W) per 15-minute interval.
	Watts map[int64]float64 `json:"watts"`
	// WhPeriod is the average generated power (Wh) per hour.
	WhPeriod map[int64]float64 `json:"whPeriod"`
	// WhDays is the total generated energy (Wh) per day.
	WhDays map[int64]float64 `json:"whDays"`
	// UTCOffsetSeconds is the fixed UTC offset reported by the weather API.
	// Naive timestamps in the API response are interpreted in this offset.
	UTCOffsetSeconds int `json:"utcOffsetSeconds"`
}

// Location returns the fixed-offset location the forecast timestamps are in.
func (e *Estimate) Location() *time.Location {
	return time.FixedZone("API", e.UTCOffsetSeconds)
}

// Now returns the current wall-clock time localized to the forecast's own
// UTC offset, not the caller's local zone.
func (e *Estimate) Now() time.Time {
	return time.Now().In(e.Location())
}

// dayStart returns the unix key for midnight of t's calendar day in the
// forecast's offset.
func (e *Estimate) dayStart(t time.Time) int64 {
	t = t.In(e.Location())
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.Location()).Unix()
}

// hourStart returns the unix key for the start of t's hour in the forecast's
// offset. Offsets that are not whole hours (e.g. +05:45) make an absolute
// Truncate wrong, so the hour is rebuilt from local components.
func (e *Estimate) hourStart(t time.Time) int64 {
	t = t.In(e.Location())
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), 0, 0, 0, e.Location()).Unix()
}

// PowerAt returns the instantaneous power at the exact 15-minute interval
// start t. There is no interpolation: a timestamp that is not an interval
// start reports no data.
func (e *Estimate) PowerAt(t time.Time) (float64, bool) {
	w, ok := e.Watts[t.Unix()]
	return w, ok
}

// PowerProductionNow returns the estimated power production for the current
// 15-minute interval, or 0 if the forecast has no data for it.
func (e *Estimate) PowerProductionNow() float64 {
	w, _ := e.PowerAt(e.Now().Truncate(15 * time.Minute))
	return w
}

// DayProduction returns the total estimated energy production (Wh) for the
// calendar day containing day, or 0 if the forecast has no data for it.
func (e *Estimate) DayProduction(day time.Time) float64 {
	return e.WhDays[e.dayStart(day)]
}

// EnergyProductionToday returns the total estimated energy production (Wh)
// for the current day.
func (e *Estimate) EnergyProductionToday() float64 {
	return e.DayProduction(e.Now())
}

// EnergyProductionTomorrow returns the total estimated energy production (Wh)
// for the next day.
func (e *Estimate) EnergyProductionTomorrow() float64 {
	return e.DayProduction(e.Now().AddDate(0, 0, 1))
}

// EnergyRemainingToday returns the sum of the hourly energy estimates for
// now's day, from now's hour bucket forward. The bucket containing now is
// included.
func (e *Estimate) EnergyRemainingToday(now time.Time) float64 {
	now = now.In(e.Location())
	from := e.hourStart(now)
	until := e.dayStart(now.AddDate(0, 0, 1))

	var sum float64
	for ts, wh := range e.WhPeriod {
		if ts >= from && ts < until {
			sum += wh
		}
	}
	return sum
}

// SumEnergy returns the sum of the hourly energy estimates over the next
// hours hour buckets, starting with the bucket containing from.
func (e *Estimate) SumEnergy(from time.Time, hours int) float64 {
	start := e.hourStart(from)
	end := start + int64(hours)*3600

	var sum float64
	for ts, wh := range e.WhPeriod {
		if ts >= start && ts < end {
			sum += wh
		}
	}
	return sum
}

// PeakPowerTime returns the timestamp of the highest instantaneous power
// within day's calendar day. The second return is false when the day has no
// samples. Ties resolve to the earliest interval.
func (e *Estimate) PeakPowerTime(day time.Time) (time.Time, bool) {
	from := e.dayStart(day)
	until := e.dayStart(day.In(e.Location()).AddDate(0, 0, 1))

	var peakTS int64
	var peakW float64
	found := false
	for ts, w := range e.Watts {
		if ts < from || ts >= until {
			continue
		}
		if !found || w > peakW || (w == peakW && ts < peakTS) {
			peakTS = ts
			peakW = w
			found = true
		}
	}
	if !found {
		return time.Time{}, false
	}
	return time.Unix(peakTS, 0).In(e.Location()), true
}

// Clone returns a deep copy of the estimate.
func (e *Estimate) Clone() *Estimate {
	c := &Estimate{
		Watts:            make(map[int64]float64, len(e.Watts)),
		WhPeriod:         make(map[int64]float64, len(e.WhPeriod)),
		WhDays:           make(map[int64]float64, len(e.WhDays)),
		UTCOffsetSeconds: e.UTCOffsetSeconds,
	}
	for ts, w := range e.Watts {
		c.Watts[ts] = w
	}
	for ts, wh := range e.WhPeriod {
		c.WhPeriod[ts] = wh
	}
	for ts, wh := range e.WhDays {
		c.WhDays[ts] = wh
	}
	return c
}

// MarshalJSON renders the series with RFC 3339 keys in the forecast's offset
// so the output is readable without knowing the unix-second key convention.
func (e *Estimate) MarshalJSON() ([]byte, error) {
	loc := e.Location()
	format := func(series map[int64]float64, layout string) map[string]float64 {
		out := make(map[string]float64, len(series))
		for ts, v := range series {
			out[time.Unix(ts, 0).In(loc).Format(layout)] = v
		}
		return out
	}
	return json.Marshal(struct {
		Watts            map[string]float64 `json:"watts"`
		WhPeriod         map[string]float64 `json:"whPeriod"`
		WhDays           map[string]float64 `json:"whDays"`
		UTCOffsetSeconds int                `json:"utcOffsetSeconds"`
	}{
		Watts:            format(e.Watts, time.RFC3339),
		WhPeriod:         format(e.WhPeriod, time.RFC3339),
		WhDays:           format(e.WhDays, time.DateOnly),
		UTCOffsetSeconds: e.UTCOffsetSeconds,
	})
}
