package cloudadjust

import (
	"context"
	"testing"
	"time"

	"github.com/heliocast/heliocast/pkg/openmeteo"
	"github.com/heliocast/heliocast/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func at(hour int) int64 {
	return time.Date(2026, 6, 15, hour, 0, 0, 0, time.UTC).Unix()
}

func testEstimate() *types.Estimate {
	return &types.Estimate{
		Watts: map[int64]float64{
			at(12): 1000,
		},
		WhPeriod: map[int64]float64{
			at(12): 1000,
			at(13): 500,
		},
		WhDays: map[int64]float64{
			at(0): 1500,
		},
		UTCOffsetSeconds: 0,
	}
}

func cloudFeed(times []string, cover []float64) *openmeteo.CloudCoverResponse {
	var c openmeteo.CloudCoverResponse
	c.Hourly.Time = times
	c.Hourly.CloudCover = cover
	return &c
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("ZeroCoverIsNoOp", func(t *testing.T) {
		est := testEstimate()
		cloud := cloudFeed([]string{"2026-06-15T12:00", "2026-06-15T13:00"}, []float64{0, 0})

		out, stats := apply(ctx, testNow, est, cloud, 0.7)
		assert.Equal(t, 1000.0, out.Watts[at(12)])
		assert.Equal(t, 1000.0, out.WhPeriod[at(12)])
		assert.Equal(t, 500.0, out.WhPeriod[at(13)])
		assert.Equal(t, 1500.0, out.WhDays[at(0)])
		assert.Equal(t, 0.0, stats.AdjustmentPercentage)
		assert.Equal(t, 0.0, stats.AverageCloudCover)
	})

	t.Run("FullCoverScalesByRemainder", func(t *testing.T) {
		est := testEstimate()
		cloud := cloudFeed([]string{"2026-06-15T12:00", "2026-06-15T13:00"}, []float64{100, 100})

		out, stats := apply(ctx, testNow, est, cloud, 0.7)
		// 100% cover at coefficient 0.7 keeps exactly 30%
		assert.InDelta(t, 300.0, out.Watts[at(12)], 1e-9)
		assert.InDelta(t, 300.0, out.WhPeriod[at(12)], 1e-9)
		assert.InDelta(t, 150.0, out.WhPeriod[at(13)], 1e-9)
		// the daily pass rebuilds its factor from the mean daily cover
		assert.InDelta(t, 450.0, out.WhDays[at(0)], 1e-9)

		assert.Equal(t, 1500.0, stats.TotalEnergyBeforeWh)
		assert.InDelta(t, 450.0, stats.TotalEnergyAfterWh, 1e-9)
		assert.InDelta(t, -70.0, stats.AdjustmentPercentage, 1e-9)
		assert.Equal(t, 100.0, stats.AverageCloudCover)

		day := stats.DailyAdjustments["2026-06-15"]
		assert.Equal(t, 1500.0, day.OriginalWh)
		assert.InDelta(t, 450.0, day.AdjustedWh, 1e-9)
	})

	t.Run("InputIsNotMutated", func(t *testing.T) {
		est := testEstimate()
		cloud := cloudFeed([]string{"2026-06-15T12:00"}, []float64{100})

		_, _ = apply(ctx, testNow, est, cloud, 0.7)
		assert.Equal(t, 1000.0, est.Watts[at(12)])
		assert.Equal(t, 1000.0, est.WhPeriod[at(12)])
		assert.Equal(t, 1500.0, est.WhDays[at(0)])
	})

	t.Run("NearestTimestampWithinWindow", func(t *testing.T) {
		est := testEstimate()
		// one minute off the 12:00 power sample, well within the window
		cloud := cloudFeed([]string{"2026-06-15T11:59"}, []float64{50})

		out, _ := apply(ctx, testNow, est, cloud, 0.7)
		assert.InDelta(t, 650.0, out.Watts[at(12)], 1e-9)
	})

	t.Run("FallbackToIndexWhenTooFar", func(t *testing.T) {
		est := testEstimate()
		// the only cloud timestamp is 3h05m away from 12:00, past the 2h
		// window, so matching falls back to hour-of-day indexing
		cover := make([]float64, 13)
		cover[0] = 80
		cover[12] = 40
		cloud := cloudFeed([]string{"2026-06-15T15:05"}, cover)

		out, _ := apply(ctx, testNow, est, cloud, 0.7)
		// hour 12 of today indexes cover[12] = 40%
		assert.InDelta(t, 720.0, out.Watts[at(12)], 1e-9)
		assert.InDelta(t, 720.0, out.WhPeriod[at(12)], 1e-9)
		// hour 13 indexes past the end of the array: no correction
		assert.Equal(t, 500.0, out.WhPeriod[at(13)])
		// the daily mean still comes from the parsed samples (80%)
		assert.InDelta(t, 1500.0*(1-0.8*0.7), out.WhDays[at(0)], 1e-9)
	})

	t.Run("IndexHeuristicWithoutTimestamps", func(t *testing.T) {
		est := testEstimate()
		cover := make([]float64, 24)
		cover[12] = 60
		cover[13] = 20
		cloud := cloudFeed(nil, cover)

		out, _ := apply(ctx, testNow, est, cloud, 0.7)
		assert.InDelta(t, 1000*(1-0.6*0.7), out.Watts[at(12)], 1e-9)
		assert.InDelta(t, 1000*(1-0.6*0.7), out.WhPeriod[at(12)], 1e-9)
		assert.InDelta(t, 500*(1-0.2*0.7), out.WhPeriod[at(13)], 1e-9)

		// daily factor uses the mean of the day's 24-sample slice
		avg := (60.0 + 20.0) / 24.0
		assert.InDelta(t, 1500*(1-avg/100*0.7), out.WhDays[at(0)], 1e-9)
	})

	t.Run("EmptyFeedLeavesEstimateUntouched", func(t *testing.T) {
		est := testEstimate()
		out, stats := apply(ctx, testNow, est, cloudFeed(nil, nil), 0.7)

		assert.Equal(t, est.Watts, out.Watts)
		assert.Equal(t, est.WhPeriod, out.WhPeriod)
		assert.Equal(t, est.WhDays, out.WhDays)
		assert.Equal(t, types.AdjustmentStats{}, stats)
	})

	t.Run("BadTimestampsSkippedPerSample", func(t *testing.T) {
		est := testEstimate()
		cloud := cloudFeed([]string{"not-a-time", "2026-06-15T12:00"}, []float64{99, 50})

		out, _ := apply(ctx, testNow, est, cloud, 0.7)
		// only the parseable sample takes part in matching
		assert.InDelta(t, 650.0, out.Watts[at(12)], 1e-9)
	})

	t.Run("SecondApplicationDeratesAgain", func(t *testing.T) {
		// the correction assumes an uncorrected input; running it twice
		// rescales already-corrected values, which is why callers run it
		// exactly once per cycle
		est := testEstimate()
		cloud := cloudFeed([]string{"2026-06-15T12:00", "2026-06-15T13:00"}, []float64{100, 100})

		once, _ := apply(ctx, testNow, est, cloud, 0.7)
		twice, _ := apply(ctx, testNow, once, cloud, 0.7)
		assert.Less(t, twice.Watts[at(12)], once.Watts[at(12)])
		assert.InDelta(t, once.Watts[at(12)]*0.3, twice.Watts[at(12)], 1e-9)
	})
}

func TestNearest(t *testing.T) {
	mk := func(hhmm string, cover float64) sample {
		ts, err := time.ParseInLocation(cloudTimeLayout, "2026-06-15T"+hhmm, time.UTC)
		if err != nil {
			panic(err)
		}
		return sample{ts: ts, cover: cover}
	}
	samples := []sample{mk("06:00", 10), mk("07:00", 20), mk("09:00", 30)}

	t.Run("PicksClosest", func(t *testing.T) {
		pct, ok := nearest(samples, time.Date(2026, 6, 15, 6, 40, 0, 0, time.UTC))
		require.True(t, ok)
		assert.Equal(t, 20.0, pct)

		pct, ok = nearest(samples, time.Date(2026, 6, 15, 6, 20, 0, 0, time.UTC))
		require.True(t, ok)
		assert.Equal(t, 10.0, pct)
	})

	t.Run("RejectsBeyondWindow", func(t *testing.T) {
		_, ok := nearest(samples, time.Date(2026, 6, 15, 12, 30, 0, 0, time.UTC))
		assert.False(t, ok)
	})

	t.Run("ExactMatch", func(t *testing.T) {
		pct, ok := nearest(samples, time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC))
		require.True(t, ok)
		assert.Equal(t, 30.0, pct)
	})
}
