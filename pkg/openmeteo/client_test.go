package openmeteo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeather(t *testing.T) {
	t.Run("Parsing", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "52.5200", q.Get("latitude"))
			assert.Equal(t, "13.4050", q.Get("longitude"))
			assert.Equal(t, "temperature_2m,global_tilted_irradiance,global_tilted_irradiance_instant", q.Get("minutely_15"))
			assert.Equal(t, "sunrise,sunset", q.Get("daily"))
			assert.Equal(t, "auto", q.Get("timezone"))
			assert.Equal(t, "3", q.Get("forecast_days"))
			assert.Equal(t, "0", q.Get("past_days"))
			assert.Equal(t, "icon_seamless", q.Get("models"))
			assert.Equal(t, "test-key", q.Get("apikey"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"utc_offset_seconds": 7200,
				"minutely_15": {
					"time": ["2026-06-15T11:45", "2026-06-15T12:00"],
					"global_tilted_irradiance": [120.5, null],
					"global_tilted_irradiance_instant": [130.0, 140.0],
					"temperature_2m": [21.3, 21.9]
				},
				"daily": {
					"sunrise": ["2026-06-15T04:43"],
					"sunset": ["2026-06-15T21:33"]
				}
			}`))
		}))
		defer ts.Close()

		c := New(ts.URL, "test-key", ts.Client())
		resp, err := c.Weather(context.Background(), WeatherRequest{
			Latitude:     52.52,
			Longitude:    13.405,
			ForecastDays: 3,
			Model:        "icon_seamless",
		})
		require.NoError(t, err)

		assert.Equal(t, 7200, resp.UTCOffsetSeconds)
		require.Len(t, resp.Minutely15.Time, 2)
		require.NotNil(t, resp.Minutely15.GTIAvg[0])
		assert.Equal(t, 120.5, *resp.Minutely15.GTIAvg[0])
		assert.Nil(t, resp.Minutely15.GTIAvg[1])
		assert.Equal(t, []string{"2026-06-15T04:43"}, resp.Daily.Sunrise)
	})

	t.Run("StatusMapping", func(t *testing.T) {
		cases := []struct {
			status int
			want   error
		}{
			{http.StatusBadGateway, ErrConnection},
			{http.StatusServiceUnavailable, ErrConnection},
			{http.StatusBadRequest, ErrRequest},
			{http.StatusUnauthorized, ErrAuthentication},
			{http.StatusForbidden, ErrAuthentication},
			{http.StatusUnprocessableEntity, ErrConfig},
			{http.StatusTooManyRequests, ErrRatelimit},
		}
		for _, tc := range cases {
			status := tc.status
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))

			c := New(ts.URL, "", ts.Client())
			_, err := c.Weather(context.Background(), WeatherRequest{ForecastDays: 1})
			assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
			ts.Close()
		}
	})

	t.Run("UnexpectedContentType", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		}))
		defer ts.Close()

		c := New(ts.URL, "", ts.Client())
		_, err := c.Weather(context.Background(), WeatherRequest{ForecastDays: 1})
		assert.ErrorIs(t, err, ErrUnexpectedResponse)
	})

	t.Run("MultipleModelsRejected", func(t *testing.T) {
		requests := 0
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
		}))
		defer ts.Close()

		c := New(ts.URL, "", ts.Client())
		_, err := c.Weather(context.Background(), WeatherRequest{ForecastDays: 1, Model: "gfs,icon"})
		assert.ErrorIs(t, err, ErrInvalidModel)
		assert.Equal(t, 0, requests, "the request must be rejected before it is sent")
	})
}

func TestCloudCover(t *testing.T) {
	t.Run("Parsing", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "cloud_cover", q.Get("hourly"))
			assert.Equal(t, "iso8601", q.Get("timeformat"))
			assert.Equal(t, "7", q.Get("forecast_days"))
			assert.Equal(t, "auto", q.Get("timezone"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"hourly": {
					"time": ["2026-06-15T00:00", "2026-06-15T01:00"],
					"cloud_cover": [25, 75]
				}
			}`))
		}))
		defer ts.Close()

		c := New(ts.URL, "", ts.Client())
		resp, err := c.CloudCover(context.Background(), 52.52, 13.405, "")
		require.NoError(t, err)
		assert.Equal(t, []float64{25, 75}, resp.Hourly.CloudCover)
		assert.Len(t, resp.Hourly.Time, 2)
	})

	t.Run("TimeMayBeAbsent", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"hourly": {"cloud_cover": [10, 20]}}`))
		}))
		defer ts.Close()

		c := New(ts.URL, "", ts.Client())
		resp, err := c.CloudCover(context.Background(), 0, 0, "")
		require.NoError(t, err)
		assert.Empty(t, resp.Hourly.Time)
		assert.Equal(t, []float64{10, 20}, resp.Hourly.CloudCover)
	})

	t.Run("MultipleModelsRejected", func(t *testing.T) {
		c := New("http://example.com", "", nil)
		_, err := c.CloudCover(context.Background(), 0, 0, "gfs,icon")
		assert.ErrorIs(t, err, ErrInvalidModel)
	})
}
