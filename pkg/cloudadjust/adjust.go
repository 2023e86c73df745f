// Package cloudadjust rescales a solar production estimate using an
// independently fetched hourly cloud cover series. The cloud feed comes from
// a separate API call with its own clock rounding, so samples are aligned by
// nearest timestamp with an hour-index fallback rather than by exact key.
package cloudadjust

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/heliocast/heliocast/pkg/log"
	"github.com/heliocast/heliocast/pkg/openmeteo"
	"github.com/heliocast/heliocast/pkg/types"
)

const (
	// matchWindow is how far a power timestamp may be from the nearest cloud
	// sample before the match is rejected in favor of the index fallback.
	matchWindow = 2 * time.Hour
	// statsWindow is the number of leading cloud samples averaged for the
	// diagnostic cover figure.
	statsWindow = 24

	cloudTimeLayout        = "2006-01-02T15:04"
	cloudTimeLayoutSeconds = "2006-01-02T15:04:05"
)

// sample is one parsed cloud cover sample. The timestamp is naive (parsed in
// UTC, truncated to the minute) for comparison against power timestamps
// stripped the same way.
type sample struct {
	ts    time.Time
	cover float64
}

// Apply derates every value of the estimate in proportion to cloud cover and
// returns a new, corrected estimate along with the adjustment diagnostics.
// The input estimate is not modified.
//
// A correction pass assumes its input is uncorrected: applying it to an
// already-corrected estimate derates the values a second time. Callers run it
// exactly once per fetch cycle on a freshly built estimate.
func Apply(ctx context.Context, est *types.Estimate, cloud *openmeteo.CloudCoverResponse, coefficient float64) (*types.Estimate, types.AdjustmentStats) {
	return apply(ctx, est.Now(), est, cloud, coefficient)
}

func apply(ctx context.Context, now time.Time, est *types.Estimate, cloud *openmeteo.CloudCoverResponse, coefficient float64) (*types.Estimate, types.AdjustmentStats) {
	cover := cloud.Hourly.CloudCover
	if len(cover) == 0 {
		log.Ctx(ctx).WarnContext(ctx, "no cloud cover data available, skipping adjustment")
		return est, types.AdjustmentStats{}
	}

	loc := est.Location()
	now = now.In(loc)
	samples := parseSamples(ctx, cloud)

	out := est.Clone()

	var totalBefore, totalAfter float64
	for _, wh := range est.WhPeriod {
		totalBefore += wh
	}

	for ts, w := range out.Watts {
		pct := coverAt(samples, cover, now, ts, loc)
		out.Watts[ts] = w * factor(pct, coefficient)
	}

	daily := make(map[string]types.DayAdjustment)
	for ts, wh := range out.WhPeriod {
		pct := coverAt(samples, cover, now, ts, loc)
		adjusted := wh * factor(pct, coefficient)
		out.WhPeriod[ts] = adjusted
		totalAfter += adjusted

		date := time.Unix(ts, 0).In(loc).Format(time.DateOnly)
		da := daily[date]
		da.OriginalWh += wh
		da.AdjustedWh += adjusted
		daily[date] = da
	}

	// Daily totals get a fresh factor built from the mean cover across the
	// samples attributed to the date, not the sum of the already-corrected
	// hourly values. The two orders give different numbers and this one is
	// canonical.
	dateCover := dailyCover(samples, cover, now)
	for ts, wh := range out.WhDays {
		date := time.Unix(ts, 0).In(loc).Format(time.DateOnly)
		avg, ok := dateCover[date]
		if !ok {
			avg = fallbackDailyCover(cover, now, time.Unix(ts, 0).In(loc))
		}
		out.WhDays[ts] = wh * factor(avg, coefficient)
	}

	stats := types.AdjustmentStats{
		AverageCloudCover:   leadingAverage(cover),
		TotalEnergyBeforeWh: totalBefore,
		TotalEnergyAfterWh:  totalAfter,
		DailyAdjustments:    daily,
	}
	if totalBefore != 0 {
		stats.AdjustmentPercentage = (totalAfter - totalBefore) / totalBefore * 100
	}

	log.Ctx(ctx).InfoContext(
		ctx,
		"cloud correction applied",
		slog.Float64("totalEnergyBeforeWh", totalBefore),
		slog.Float64("totalEnergyAfterWh", totalAfter),
		slog.Float64("adjustmentPercentage", stats.AdjustmentPercentage),
		slog.Float64("averageCloudCover", stats.AverageCloudCover),
	)
	return out, stats
}

// factor converts a cover percentage into the multiplicative derating factor.
// A coefficient of 0.7 means 100% cover costs 70% of the power.
func factor(coverPercent, coefficient float64) float64 {
	return 1.0 - coverPercent/100.0*coefficient
}

// parseSamples pairs the cloud timestamps with their cover values, sorted by
// time. Samples with unparseable timestamps are skipped, not fatal.
func parseSamples(ctx context.Context, cloud *openmeteo.CloudCoverResponse) []sample {
	times := cloud.Hourly.Time
	cover := cloud.Hourly.CloudCover

	samples := make([]sample, 0, len(times))
	for i, raw := range times {
		if i >= len(cover) {
			break
		}
		ts, err := time.ParseInLocation(cloudTimeLayout, raw, time.UTC)
		if err != nil {
			ts, err = time.ParseInLocation(cloudTimeLayoutSeconds, raw, time.UTC)
		}
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse cloud timestamp", slog.String("value", raw), slog.Any("error", err))
			continue
		}
		samples = append(samples, sample{ts: ts.Truncate(time.Minute), cover: cover[i]})
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].ts.Before(samples[j].ts)
	})
	return samples
}

// coverAt resolves the cover percentage for one power timestamp. It prefers
// the nearest cloud sample within matchWindow and falls back to indexing the
// raw cover array by hour-of-day plus day offset from today. A miss on both
// paths means no correction (0% cover).
func coverAt(samples []sample, cover []float64, now time.Time, ts int64, loc *time.Location) float64 {
	if len(samples) > 0 {
		// The power timestamp is compared as its UTC wall clock, truncated to
		// the minute, mirroring how the naive cloud timestamps were parsed.
		naive := time.Unix(ts, 0).UTC().Truncate(time.Minute)
		if pct, ok := nearest(samples, naive); ok {
			return pct
		}
	}

	local := time.Unix(ts, 0).In(loc)
	idx := local.Hour() + 24*dayOffset(now, local, loc)
	if idx >= 0 && idx < len(cover) {
		return cover[idx]
	}
	return 0
}

// nearest finds the cloud sample closest to t via binary search over the
// sorted series and accepts it only within matchWindow.
func nearest(samples []sample, t time.Time) (float64, bool) {
	i := sort.Search(len(samples), func(i int) bool {
		return !samples[i].ts.Before(t)
	})

	best := -1
	var bestDiff time.Duration
	for _, j := range [2]int{i - 1, i} {
		if j < 0 || j >= len(samples) {
			continue
		}
		diff := t.Sub(samples[j].ts)
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best = j
			bestDiff = diff
		}
	}
	if best == -1 || bestDiff > matchWindow {
		return 0, false
	}
	return samples[best].cover, true
}

// dailyCover computes the mean cover per calendar date of the cloud series
// itself. With no parsed timestamps the raw array is cut into 24-hour slices
// counted from today instead.
func dailyCover(samples []sample, cover []float64, now time.Time) map[string]float64 {
	totals := make(map[string]float64)
	counts := make(map[string]int)

	if len(samples) > 0 {
		for _, s := range samples {
			date := s.ts.Format(time.DateOnly)
			totals[date] += s.cover
			counts[date]++
		}
	} else {
		for i := 0; i < len(cover); i += 24 {
			end := i + 24
			if end > len(cover) {
				end = len(cover)
			}
			date := now.AddDate(0, 0, i/24).Format(time.DateOnly)
			for _, pct := range cover[i:end] {
				totals[date] += pct
				counts[date]++
			}
		}
	}

	averages := make(map[string]float64, len(totals))
	for date, total := range totals {
		averages[date] = total / float64(counts[date])
	}
	return averages
}

// fallbackDailyCover averages the 24-sample slice of the raw cover array for
// the day's offset from today, 0 when out of bounds.
func fallbackDailyCover(cover []float64, now, day time.Time) float64 {
	start := dayOffset(now, day, day.Location()) * 24
	if start < 0 || start >= len(cover) {
		return 0
	}
	end := start + 24
	if end > len(cover) {
		end = len(cover)
	}
	var total float64
	for _, pct := range cover[start:end] {
		total += pct
	}
	return total / float64(end-start)
}

// leadingAverage is the mean cover over the first statsWindow samples.
func leadingAverage(cover []float64) float64 {
	n := len(cover)
	if n > statsWindow {
		n = statsWindow
	}
	var total float64
	for _, pct := range cover[:n] {
		total += pct
	}
	return total / float64(n)
}

// dayOffset returns how many calendar days t is past now in loc.
func dayOffset(now, t time.Time, loc *time.Location) int {
	return int(midnight(t, loc).Sub(midnight(now, loc)) / (24 * time.Hour))
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
