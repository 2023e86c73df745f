// Package estimator turns Open-Meteo irradiance and temperature telemetry
// into a solar production estimate for a set of PV arrays, then refines it
// with the hourly cloud cover feed.
package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/heliocast/heliocast/pkg/cloudadjust"
	"github.com/heliocast/heliocast/pkg/log"
	"github.com/heliocast/heliocast/pkg/openmeteo"
	"github.com/heliocast/heliocast/pkg/types"
	"github.com/levenlabs/go-lflag"
)

const (
	defaultPastDays        = 92
	defaultForecastDays    = 16
	defaultCloudCorrection = 0.7
)

// Forecaster runs the fetch-model-aggregate-correct cycle. Each call to
// Estimate produces a brand-new Estimate; previous results are replaced, never
// merged.
type Forecaster struct {
	client *openmeteo.Client
	cfg    Config
	arrays []PVArray
}

// New creates a Forecaster from an already-populated configuration.
func New(client *openmeteo.Client, cfg Config) (*Forecaster, error) {
	f := &Forecaster{client: client, cfg: cfg}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Configured sets up flags for the Forecaster and returns the instance.
// It uses lflag to register command-line flags for configuration.
// Validate must be called after lflag.Configure.
func Configured(client *openmeteo.Client) *Forecaster {
	f := &Forecaster{client: client}

	var lat, lon, azimuth, declination, dcKW, efficiency, dampingMorning, dampingEvening FloatList
	lflag.JSON(&lat, "latitude", nil, "Latitude per array, a number or an array of numbers")
	lflag.JSON(&lon, "longitude", nil, "Longitude per array, a number or an array of numbers")
	lflag.JSON(&azimuth, "azimuth", nil, "Plane azimuth per array (0 south, -90 east, 90 west)")
	lflag.JSON(&declination, "declination", nil, "Plane tilt per array in degrees from horizontal")
	lflag.JSON(&dcKW, "dc-kw", nil, "Rated DC power per array in kW")
	lflag.JSON(&efficiency, "efficiency-factor", nil, "Efficiency factor per array (default 1.0)")
	lflag.JSON(&dampingMorning, "damping-morning", nil, "Morning damping factor per array (default 0)")
	lflag.JSON(&dampingEvening, "damping-evening", nil, "Evening damping factor per array (default 0)")

	acKW := 0.0
	lflag.JSON(&acKW, "ac-kw", acKW, "Inverter AC ceiling in kW, 0 for unbounded")
	cloudCorrection := defaultCloudCorrection
	lflag.JSON(&cloudCorrection, "cloud-correction", cloudCorrection, "Cloud derating coefficient between 0 and 1")
	pastDays := defaultPastDays
	lflag.JSON(&pastDays, "past-days", pastDays, "Days of past weather to include")
	forecastDays := defaultForecastDays
	lflag.JSON(&forecastDays, "forecast-days", forecastDays, "Days of forecast to request")
	weatherModel := lflag.String("weather-model", "", "Weather model identifier (empty for the API default)")
	cloudModel := lflag.String("cloud-model", "", "Weather model identifier for the cloud cover feed")

	lflag.Do(func() {
		f.cfg = Config{
			Latitude:         lat,
			Longitude:        lon,
			Azimuth:          azimuth,
			Declination:      declination,
			DCKilowatts:      dcKW,
			EfficiencyFactor: efficiency,
			DampingMorning:   dampingMorning,
			DampingEvening:   dampingEvening,
			ACKilowatts:      acKW,
			WeatherModel:     *weatherModel,
			CloudModel:       *cloudModel,
			CloudCorrection:  cloudCorrection,
			PastDays:         pastDays,
			ForecastDays:     forecastDays,
		}
	})

	return f
}

// Validate builds the per-array configuration, rejecting mismatched list
// lengths and out-of-range values before any network call.
func (f *Forecaster) Validate() error {
	arrays, err := f.cfg.Arrays()
	if err != nil {
		return err
	}
	f.arrays = arrays
	return nil
}

// Estimate runs one full forecast cycle: per-array weather fetches run
// concurrently along with the cloud cover fetch, then the power model,
// aggregation and cloud correction run sequentially. If any array fetch
// fails the whole cycle fails, since summation assumes complete data. A cloud
// fetch failure only degrades: the uncorrected estimate is returned with zero
// stats.
func (f *Forecaster) Estimate(ctx context.Context) (*types.Estimate, types.AdjustmentStats, error) {
	responses := make([]*openmeteo.WeatherResponse, len(f.arrays))
	errs := make([]error, len(f.arrays))

	var wg sync.WaitGroup
	for i, arr := range f.arrays {
		wg.Add(1)
		go func(i int, arr PVArray) {
			defer wg.Done()
			responses[i], errs[i] = f.client.Weather(ctx, openmeteo.WeatherRequest{
				Latitude:     arr.Latitude,
				Longitude:    arr.Longitude,
				Azimuth:      arr.Azimuth,
				Tilt:         arr.Declination,
				PastDays:     f.cfg.PastDays,
				ForecastDays: f.cfg.ForecastDays,
				Model:        f.cfg.WeatherModel,
			})
		}(i, arr)
	}

	var cloud *openmeteo.CloudCoverResponse
	var cloudErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		cloud, cloudErr = f.client.CloudCover(ctx, f.arrays[0].Latitude, f.arrays[0].Longitude, f.cfg.CloudModel)
	}()

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, types.AdjustmentStats{}, fmt.Errorf("failed to fetch weather for array %d: %w", i, err)
		}
	}

	offset := responses[0].UTCOffsetSeconds
	for i, resp := range responses {
		if resp.UTCOffsetSeconds != offset {
			return nil, types.AdjustmentStats{}, fmt.Errorf("the UTC offset is not the same for all locations (array 0 has %d, array %d has %d)", offset, i, resp.UTCOffsetSeconds)
		}
	}

	acc := newAccumulator(offset)
	for i, resp := range responses {
		if err := acc.addArray(f.arrays[i], resp); err != nil {
			return nil, types.AdjustmentStats{}, fmt.Errorf("failed to model array %d: %w", i, err)
		}
	}
	est := acc.estimate(f.cfg.ACKilowatts * 1000)

	if cloudErr != nil {
		log.Ctx(ctx).WarnContext(ctx, "cloud cover fetch failed, returning uncorrected estimate", slog.Any("error", cloudErr))
		return est, types.AdjustmentStats{}, nil
	}

	corrected, stats := cloudadjust.Apply(ctx, est, cloud, f.cfg.CloudCorrection)
	return corrected, stats, nil
}
