package discovery

import (
	"errors"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultPort is the WeatherFlow UDP broadcast port.
	DefaultPort = 50222

	// DefaultDiscoveryTimeout bounds the discovery gate.
	DefaultDiscoveryTimeout = 10 * time.Second

	// maxDatagramSize is larger than any WeatherFlow datagram.
	maxDatagramSize = 4096
)

// Errors.
var (
	// ErrListener reports that the UDP listener could not be started.
	ErrListener = errors.New("listener error")

	ErrAlreadyListening = errors.New("listener already started")
	ErrInvalidMessage   = errors.New("invalid message")
	ErrMissingSerial    = errors.New("message has no serial number")
)

// Model is the kind of WeatherFlow device.
type Model uint8

const (
	ModelUnknown Model = iota
	ModelHub
	ModelAir
	ModelSky
	ModelTempest
)

// String returns the model name.
func (m Model) String() string {
	switch m {
	case ModelHub:
		return "Hub"
	case ModelAir:
		return "AIR"
	case ModelSky:
		return "SKY"
	case ModelTempest:
		return "Tempest"
	default:
		return "Unknown"
	}
}

// ModelFromSerial derives the model from the serial number prefix.
func ModelFromSerial(serial string) Model {
	switch {
	case strings.HasPrefix(serial, "HB-"):
		return ModelHub
	case strings.HasPrefix(serial, "AR-"):
		return ModelAir
	case strings.HasPrefix(serial, "SK-"):
		return ModelSky
	case strings.HasPrefix(serial, "ST-"):
		return ModelTempest
	default:
		return ModelUnknown
	}
}

// Capability is a value a device can report.
type Capability string

const (
	CapAirTemperature        Capability = "air_temperature"
	CapDewPoint              Capability = "dew_point"
	CapRelativeHumidity      Capability = "relative_humidity"
	CapStationPressure       Capability = "station_pressure"
	CapWindLull              Capability = "wind_lull"
	CapWindAverage           Capability = "wind_average"
	CapWindGust              Capability = "wind_gust"
	CapWindDirection         Capability = "wind_direction"
	CapWindSpeed             Capability = "wind_speed"
	CapIlluminance           Capability = "illuminance"
	CapUV                    Capability = "uv"
	CapSolarRadiation        Capability = "solar_radiation"
	CapRainAmount            Capability = "rain_amount"
	CapPrecipitationType     Capability = "precipitation_type"
	CapLightningCount        Capability = "lightning_strike_count"
	CapLightningAvgDistance  Capability = "lightning_strike_average_distance"
	CapLastLightningDistance Capability = "last_lightning_strike_distance"
	CapLastLightningEnergy   Capability = "last_lightning_strike_energy"
	CapBattery               Capability = "battery"
	CapRSSI                  Capability = "rssi"
	CapUptime                Capability = "uptime"
)

// CapabilitySet is a set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the capabilities in lexical order.
func (s CapabilitySet) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	airCapabilities = []Capability{
		CapAirTemperature, CapDewPoint, CapRelativeHumidity, CapStationPressure,
		CapLightningCount, CapLightningAvgDistance,
		CapLastLightningDistance, CapLastLightningEnergy,
	}
	skyCapabilities = []Capability{
		CapWindLull, CapWindAverage, CapWindGust, CapWindDirection, CapWindSpeed,
		CapIlluminance, CapUV, CapSolarRadiation, CapRainAmount, CapPrecipitationType,
	}
	sensorCapabilities = []Capability{CapBattery, CapRSSI, CapUptime}
)

// CapabilitiesForModel returns the capabilities a model can report.
func CapabilitiesForModel(m Model) CapabilitySet {
	switch m {
	case ModelHub:
		return NewCapabilitySet(CapRSSI, CapUptime)
	case ModelAir:
		return NewCapabilitySet(append(airCapabilities, sensorCapabilities...)...)
	case ModelSky:
		return NewCapabilitySet(append(skyCapabilities, sensorCapabilities...)...)
	case ModelTempest:
		caps := append([]Capability{}, airCapabilities...)
		caps = append(caps, skyCapabilities...)
		return NewCapabilitySet(append(caps, sensorCapabilities...)...)
	default:
		return NewCapabilitySet()
	}
}

// PrecipitationType values reported in observations.
const (
	PrecipNone     = 0
	PrecipRain     = 1
	PrecipHail     = 2
	PrecipRainHail = 3
)
