package cloud

import (
	"errors"
	"sort"
	"time"
)

// DefaultBaseURL is the WeatherFlow REST endpoint.
const DefaultBaseURL = "https://swd.weatherflow.com/swd/rest"

// DefaultUpdateInterval is how often the coordinator polls the API.
const DefaultUpdateInterval = 60 * time.Second

// Errors.
var (
	ErrUnauthorized = errors.New("cloud: unauthorized")
	ErrRequest      = errors.New("cloud: request failed")
	ErrDecode       = errors.New("cloud: invalid response")
	ErrNoStations   = errors.New("cloud: no stations on account")
	ErrUpdateFailed = errors.New("cloud: update failed")
	ErrStopped      = errors.New("cloud: coordinator stopped")
)

// Station is a station on the account.
type Station struct {
	ID         int             `json:"station_id"`
	Name       string          `json:"name"`
	PublicName string          `json:"public_name"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	Timezone   string          `json:"timezone"`
	Devices    []StationDevice `json:"devices"`
}

// StationDevice is a device attached to a station.
type StationDevice struct {
	ID           int    `json:"device_id"`
	SerialNumber string `json:"serial_number"`
	DeviceType   string `json:"device_type"`
}

// Observation is the latest station observation.
//
// Values holds every numeric field of the observation keyed by its API name
// (air_temperature, relative_humidity, wind_avg and so on).
type Observation struct {
	Timestamp time.Time
	Values    map[string]float64
}

// Value returns a named observation value.
func (o Observation) Value(name string) (float64, bool) {
	v, ok := o.Values[name]
	return v, ok
}

// Fields returns the observation field names in sorted order.
func (o Observation) Fields() []string {
	names := make([]string, 0, len(o.Values))
	for k := range o.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Forecast is the station forecast.
type Forecast struct {
	Conditions string        `json:"conditions"`
	Icon       string        `json:"icon"`
	Daily      []DailyPeriod `json:"daily"`
}

// DailyPeriod is one day of the forecast.
type DailyPeriod struct {
	DayStart          time.Time `json:"day_start"`
	Conditions        string    `json:"conditions"`
	Icon              string    `json:"icon"`
	AirTempHigh       float64   `json:"air_temp_high"`
	AirTempLow        float64   `json:"air_temp_low"`
	PrecipProbability int       `json:"precip_probability"`
}

// StationData is the coordinator's per-station snapshot.
type StationData struct {
	Station     Station
	Observation Observation
	Forecast    Forecast
}
