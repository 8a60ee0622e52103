package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tempest-bridge/tempest-go/pkg/version"
)

// API is the subset of the REST API the coordinator needs.
type API interface {
	Stations(ctx context.Context) ([]Station, error)
	StationObservation(ctx context.Context, stationID int) (Observation, error)
	Forecast(ctx context.Context, stationID int) (Forecast, error)
}

// Client is a WeatherFlow REST client.
//
// The HTTP client is expected to authenticate requests, typically one
// returned by oauth.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// NewClient creates a client.
func NewClient(httpClient *http.Client, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stations lists the stations on the account.
func (c *Client) Stations(ctx context.Context) ([]Station, error) {
	var resp struct {
		Stations []Station `json:"stations"`
	}
	if err := c.get(ctx, "/stations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stations, nil
}

// StationObservation returns the latest observation of a station.
func (c *Client) StationObservation(ctx context.Context, stationID int) (Observation, error) {
	var resp struct {
		Obs []map[string]any `json:"obs"`
	}
	path := "/observations/station/" + strconv.Itoa(stationID)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return Observation{}, err
	}
	if len(resp.Obs) == 0 {
		return Observation{Values: map[string]float64{}}, nil
	}
	return observationFromRaw(resp.Obs[0]), nil
}

// Forecast returns the station forecast.
func (c *Client) Forecast(ctx context.Context, stationID int) (Forecast, error) {
	var resp struct {
		Current struct {
			Conditions string `json:"conditions"`
			Icon       string `json:"icon"`
		} `json:"current_conditions"`
		Forecast struct {
			Daily []struct {
				DayStartLocal     int64   `json:"day_start_local"`
				Conditions        string  `json:"conditions"`
				Icon              string  `json:"icon"`
				AirTempHigh       float64 `json:"air_temp_high"`
				AirTempLow        float64 `json:"air_temp_low"`
				PrecipProbability int     `json:"precip_probability"`
			} `json:"daily"`
		} `json:"forecast"`
	}

	q := url.Values{"station_id": {strconv.Itoa(stationID)}}
	if err := c.get(ctx, "/better_forecast", q, &resp); err != nil {
		return Forecast{}, err
	}

	f := Forecast{
		Conditions: resp.Current.Conditions,
		Icon:       resp.Current.Icon,
		Daily:      make([]DailyPeriod, 0, len(resp.Forecast.Daily)),
	}
	for _, d := range resp.Forecast.Daily {
		f.Daily = append(f.Daily, DailyPeriod{
			DayStart:          time.Unix(d.DayStartLocal, 0).UTC(),
			Conditions:        d.Conditions,
			Icon:              d.Icon,
			AirTempHigh:       d.AirTempHigh,
			AirTempLow:        d.AirTempLow,
			PrecipProbability: d.PrecipProbability,
		})
	}
	return f, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %s", ErrRequest, path, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

func observationFromRaw(raw map[string]any) Observation {
	obs := Observation{Values: make(map[string]float64, len(raw))}
	for k, v := range raw {
		n, ok := v.(float64)
		if !ok {
			continue
		}
		if k == "timestamp" {
			obs.Timestamp = time.Unix(int64(n), 0).UTC()
			continue
		}
		obs.Values[k] = n
	}
	return obs
}
