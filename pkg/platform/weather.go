package platform

import (
	"context"
	"fmt"
	"sort"

	"github.com/tempest-bridge/tempest-go/pkg/cloud"
	"github.com/tempest-bridge/tempest-go/pkg/entry"
	"github.com/tempest-bridge/tempest-go/pkg/host"
)

var iconConditions = map[string]string{
	"clear-day":                   "sunny",
	"clear-night":                 "clear-night",
	"cloudy":                      "cloudy",
	"foggy":                       "fog",
	"partly-cloudy-day":           "partlycloudy",
	"partly-cloudy-night":         "partlycloudy",
	"possibly-rainy-day":          "rainy",
	"possibly-rainy-night":        "rainy",
	"possibly-sleet-day":          "snowy-rainy",
	"possibly-sleet-night":        "snowy-rainy",
	"possibly-snow-day":           "snowy",
	"possibly-snow-night":         "snowy",
	"possibly-thunderstorm-day":   "lightning-rainy",
	"possibly-thunderstorm-night": "lightning-rainy",
	"rainy":                       "rainy",
	"sleet":                       "snowy-rainy",
	"snow":                        "snowy",
	"thunderstorm":                "lightning",
	"windy":                       "windy",
}

// Condition maps a forecast icon to a weather condition.
func Condition(icon string) string {
	if c, ok := iconConditions[icon]; ok {
		return c
	}
	return "exceptional"
}

// StationWeather is the weather entity of a cloud station.
type StationWeather struct {
	coordinator *cloud.Coordinator
	stationID   int
}

// NewStationWeather creates the weather entity of a station.
func NewStationWeather(c *cloud.Coordinator, stationID int) *StationWeather {
	return &StationWeather{coordinator: c, stationID: stationID}
}

func (w *StationWeather) UniqueID() string { return fmt.Sprintf("%d_weather", w.stationID) }

func (w *StationWeather) Name() string { return "Weather" }

func (w *StationWeather) Device() host.DeviceInfo {
	data, _ := w.coordinator.Station(w.stationID)
	return StationDeviceInfo(w.stationID, data.Station)
}

func (w *StationWeather) State() host.State {
	data, ok := w.coordinator.Station(w.stationID)
	if !ok {
		return host.State{}
	}

	attrs := map[string]any{}
	obs := data.Observation
	for attr, field := range map[string]string{
		"temperature":  "air_temperature",
		"humidity":     "relative_humidity",
		"pressure":     "sea_level_pressure",
		"wind_speed":   "wind_avg",
		"wind_bearing": "wind_direction",
		"dew_point":    "dew_point",
		"uv_index":     "uv",
	} {
		if v, ok := obs.Value(field); ok {
			attrs[attr] = v
		}
	}

	daily := make([]map[string]any, 0, len(data.Forecast.Daily))
	for _, d := range data.Forecast.Daily {
		daily = append(daily, map[string]any{
			"datetime":                  d.DayStart,
			"condition":                 Condition(d.Icon),
			"temperature":               d.AirTempHigh,
			"templow":                   d.AirTempLow,
			"precipitation_probability": d.PrecipProbability,
		})
	}
	attrs["forecast"] = daily

	return host.State{
		Value:      Condition(data.Forecast.Icon),
		Attributes: attrs,
		Available:  w.coordinator.LastUpdateSuccess(),
	}
}

// Weather is the weather platform handler.
type Weather struct {
	host     *host.Host
	runtimes Runtimes
	subs     *subscriptions
}

// NewWeather creates the weather platform.
func NewWeather(h *host.Host, r Runtimes) *Weather {
	return &Weather{host: h, runtimes: r, subs: newSubscriptions()}
}

var _ host.PlatformHandler = (*Weather)(nil)

// SetupEntry creates one weather entity per station of a cloud entry.
func (w *Weather) SetupEntry(ctx context.Context, e *entry.Entry, add host.AddEntitiesFunc) error {
	mode, ok := w.runtimes.RuntimeMode(e.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRuntime, e.ID)
	}
	if mode != entry.ModeCloud {
		return fmt.Errorf("%w: weather requires a cloud entry", ErrWrongMode)
	}
	coord, ok := w.runtimes.Coordinator(e.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRuntime, e.ID)
	}

	ids := stationIDs(coord)
	entities := make([]host.Entity, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, NewStationWeather(coord, id))
	}
	add(entities...)

	w.subs.add(e.ID, coord.Listen(func() {
		for _, ent := range entities {
			w.host.UpdateEntity(ent.UniqueID())
		}
	}))
	return nil
}

// UnloadEntry releases the entry's subscriptions.
func (w *Weather) UnloadEntry(ctx context.Context, e *entry.Entry) (bool, error) {
	w.subs.release(e.ID)
	return true, nil
}

func stationIDs(c *cloud.Coordinator) []int {
	data := c.Data()
	ids := make([]int, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
