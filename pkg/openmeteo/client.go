package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/heliocast/heliocast/pkg/common"
	"github.com/heliocast/heliocast/pkg/log"
	"github.com/levenlabs/go-lflag"
)

const defaultBaseURL = "https://api.open-meteo.com"

// Client is a client for the Open-Meteo forecast API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates a new Open-Meteo client. An empty baseURL uses the public API
// and a nil httpClient uses the shared default client.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = common.HTTPClient(30 * time.Second)
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpClient,
	}
}

// Configured sets up flags for the Open-Meteo client and returns the
// instance. It uses lflag to register command-line flags for configuration.
func Configured() *Client {
	c := &Client{
		client: common.HTTPClient(30 * time.Second),
	}
	baseURL := lflag.String("api-base-url", defaultBaseURL, "Base URL for the Open-Meteo API")
	apiKey := lflag.String("api-key", "", "API key for the Open-Meteo API (optional)")

	lflag.Do(func() {
		c.baseURL = strings.TrimSuffix(*baseURL, "/")
		c.apiKey = *apiKey
	})

	return c
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	if c.baseURL == "" {
		return fmt.Errorf("api-base-url is required")
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return fmt.Errorf("failed to parse api url (%s): %w", c.baseURL, err)
	}
	return nil
}

// get issues a GET against /v1/forecast with the given parameters and decodes
// the JSON response into out. Status codes map onto the package error classes
// and a non-JSON content type is a hard error.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	u := c.baseURL + "/v1/forecast?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching from open-meteo", slog.String("url", u))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return fmt.Errorf("%w: status %d", ErrConnection, resp.StatusCode)
	case http.StatusBadRequest:
		return ErrRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	case http.StatusUnprocessableEntity:
		return ErrConfig
	case http.StatusTooManyRequests:
		return ErrRatelimit
	default:
		return fmt.Errorf("open-meteo api returned status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: content-type %q: %s", ErrUnexpectedResponse, contentType, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// validateModel rejects weather model identifiers that would request several
// models at once. The comma is the API's list separator.
func validateModel(model string) error {
	if strings.Contains(model, ",") {
		return fmt.Errorf("%w: %q", ErrInvalidModel, model)
	}
	return nil
}
