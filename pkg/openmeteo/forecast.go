package openmeteo

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/heliocast/heliocast/pkg/log"
)

// WeatherRequest describes a per-array weather forecast request.
type WeatherRequest struct {
	Latitude  float64
	Longitude float64
	// Azimuth of the array plane: 0 is south, -90 east, 90 west.
	Azimuth float64
	// Tilt of the array plane in degrees from horizontal.
	Tilt         float64
	PastDays     int
	ForecastDays int
	// Model is the weather model identifier, empty for the API default.
	Model string
}

// WeatherResponse is the subset of the forecast document the power model
// consumes. Samples may be null near the forecast horizon.
type WeatherResponse struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Minutely15       struct {
		Time        []string   `json:"time"`
		GTIAvg      []*float64 `json:"global_tilted_irradiance"`
		GTIInstant  []*float64 `json:"global_tilted_irradiance_instant"`
		Temperature []*float64 `json:"temperature_2m"`
	} `json:"minutely_15"`
	Daily struct {
		Sunrise []string `json:"sunrise"`
		Sunset  []string `json:"sunset"`
	} `json:"daily"`
}

// CloudCoverResponse is the hourly cloud cover document. Time may be absent,
// in which case the samples can only be matched by index.
type CloudCoverResponse struct {
	Hourly struct {
		Time       []string  `json:"time"`
		CloudCover []float64 `json:"cloud_cover"`
	} `json:"hourly"`
}

// Weather fetches the 15-minutely tilted irradiance and temperature series
// plus daily sunrise/sunset for one array location.
func (c *Client) Weather(ctx context.Context, req WeatherRequest) (*WeatherResponse, error) {
	if err := validateModel(req.Model); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("latitude", formatCoord(req.Latitude))
	params.Set("longitude", formatCoord(req.Longitude))
	params.Set("azimuth", strconv.FormatFloat(req.Azimuth, 'f', -1, 64))
	params.Set("tilt", strconv.FormatFloat(req.Tilt, 'f', -1, 64))
	params.Set("minutely_15", "temperature_2m,global_tilted_irradiance,global_tilted_irradiance_instant")
	params.Set("daily", "sunrise,sunset")
	params.Set("past_days", strconv.Itoa(req.PastDays))
	params.Set("forecast_days", strconv.Itoa(req.ForecastDays))
	params.Set("timezone", "auto")
	if req.Model != "" {
		params.Set("models", req.Model)
	}

	var resp WeatherResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched weather forecast",
		slog.Int("samples", len(resp.Minutely15.Time)),
		slog.Int("utcOffsetSeconds", resp.UTCOffsetSeconds),
	)
	return &resp, nil
}

// CloudCover fetches the hourly cloud cover series over a 7-day horizon. The
// cloud feed is an independent request with its own clock rounding, so its
// timestamps are not guaranteed to align with the weather series.
func (c *Client) CloudCover(ctx context.Context, latitude, longitude float64, model string) (*CloudCoverResponse, error) {
	if err := validateModel(model); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("latitude", formatCoord(latitude))
	params.Set("longitude", formatCoord(longitude))
	params.Set("hourly", "cloud_cover")
	params.Set("timeformat", "iso8601")
	params.Set("timezone", "auto")
	params.Set("forecast_days", "7")
	if model != "" {
		params.Set("models", model)
	}

	var resp CloudCoverResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched cloud cover",
		slog.Int("samples", len(resp.Hourly.CloudCover)),
		slog.Int("timestamps", len(resp.Hourly.Time)),
	)
	return &resp, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
