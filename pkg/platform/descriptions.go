package platform

import (
	"strings"

	"github.com/tempest-bridge/tempest-go/pkg/discovery"
)

// Manufacturer is reported for every device.
const Manufacturer = "WeatherFlow"

// Description describes how a value is exposed as a sensor.
type Description struct {
	Key         string
	Name        string
	Unit        string
	DeviceClass string
}

var localDescriptions = map[discovery.Capability]Description{
	discovery.CapAirTemperature:        {Name: "Temperature", Unit: "°C", DeviceClass: "temperature"},
	discovery.CapDewPoint:              {Name: "Dew point", Unit: "°C", DeviceClass: "temperature"},
	discovery.CapRelativeHumidity:      {Name: "Humidity", Unit: "%", DeviceClass: "humidity"},
	discovery.CapStationPressure:       {Name: "Station pressure", Unit: "hPa", DeviceClass: "atmospheric_pressure"},
	discovery.CapWindLull:              {Name: "Wind lull", Unit: "m/s", DeviceClass: "wind_speed"},
	discovery.CapWindAverage:           {Name: "Wind speed average", Unit: "m/s", DeviceClass: "wind_speed"},
	discovery.CapWindGust:              {Name: "Wind gust", Unit: "m/s", DeviceClass: "wind_speed"},
	discovery.CapWindDirection:         {Name: "Wind direction", Unit: "°"},
	discovery.CapWindSpeed:             {Name: "Wind speed", Unit: "m/s", DeviceClass: "wind_speed"},
	discovery.CapIlluminance:           {Name: "Illuminance", Unit: "lx", DeviceClass: "illuminance"},
	discovery.CapUV:                    {Name: "UV index", Unit: "UV index"},
	discovery.CapSolarRadiation:        {Name: "Irradiance", Unit: "W/m²", DeviceClass: "irradiance"},
	discovery.CapRainAmount:            {Name: "Rain amount", Unit: "mm", DeviceClass: "precipitation"},
	discovery.CapPrecipitationType:     {Name: "Precipitation type", DeviceClass: "enum"},
	discovery.CapLightningCount:        {Name: "Lightning count"},
	discovery.CapLightningAvgDistance:  {Name: "Lightning average distance", Unit: "km", DeviceClass: "distance"},
	discovery.CapLastLightningDistance: {Name: "Lightning last distance", Unit: "km", DeviceClass: "distance"},
	discovery.CapLastLightningEnergy:   {Name: "Lightning last energy"},
	discovery.CapBattery:               {Name: "Battery voltage", Unit: "V", DeviceClass: "voltage"},
	discovery.CapRSSI:                  {Name: "RSSI", Unit: "dBm", DeviceClass: "signal_strength"},
	discovery.CapUptime:                {Name: "Uptime", Unit: "s", DeviceClass: "duration"},
}

// LocalDescription returns the sensor description of a capability.
func LocalDescription(c discovery.Capability) Description {
	d, ok := localDescriptions[c]
	if !ok {
		d = Description{Name: humanize(string(c))}
	}
	d.Key = string(c)
	return d
}

var cloudDescriptions = map[string]Description{
	"air_temperature":                 {Name: "Temperature", Unit: "°C", DeviceClass: "temperature"},
	"air_density":                     {Name: "Air density", Unit: "kg/m³"},
	"barometric_pressure":             {Name: "Barometric pressure", Unit: "mbar", DeviceClass: "atmospheric_pressure"},
	"station_pressure":                {Name: "Station pressure", Unit: "mbar", DeviceClass: "atmospheric_pressure"},
	"sea_level_pressure":              {Name: "Sea level pressure", Unit: "mbar", DeviceClass: "atmospheric_pressure"},
	"relative_humidity":               {Name: "Humidity", Unit: "%", DeviceClass: "humidity"},
	"dew_point":                       {Name: "Dew point", Unit: "°C", DeviceClass: "temperature"},
	"feels_like":                      {Name: "Feels like", Unit: "°C", DeviceClass: "temperature"},
	"heat_index":                      {Name: "Heat index", Unit: "°C", DeviceClass: "temperature"},
	"wind_chill":                      {Name: "Wind chill", Unit: "°C", DeviceClass: "temperature"},
	"wet_bulb_temperature":            {Name: "Wet bulb temperature", Unit: "°C", DeviceClass: "temperature"},
	"delta_t":                         {Name: "Delta T", Unit: "°C", DeviceClass: "temperature"},
	"wind_avg":                        {Name: "Wind speed", Unit: "m/s", DeviceClass: "wind_speed"},
	"wind_gust":                       {Name: "Wind gust", Unit: "m/s", DeviceClass: "wind_speed"},
	"wind_lull":                       {Name: "Wind lull", Unit: "m/s", DeviceClass: "wind_speed"},
	"wind_direction":                  {Name: "Wind direction", Unit: "°"},
	"brightness":                      {Name: "Brightness", Unit: "lx", DeviceClass: "illuminance"},
	"solar_radiation":                 {Name: "Irradiance", Unit: "W/m²", DeviceClass: "irradiance"},
	"uv":                              {Name: "UV index", Unit: "UV index"},
	"precip":                          {Name: "Rain", Unit: "mm", DeviceClass: "precipitation"},
	"precip_accum_last_1hr":           {Name: "Rain last hour", Unit: "mm", DeviceClass: "precipitation"},
	"precip_accum_local_day":          {Name: "Rain today", Unit: "mm", DeviceClass: "precipitation"},
	"precip_accum_local_yesterday":    {Name: "Rain yesterday", Unit: "mm", DeviceClass: "precipitation"},
	"lightning_strike_count":          {Name: "Lightning count"},
	"lightning_strike_count_last_1hr": {Name: "Lightning count last hour"},
	"lightning_strike_count_last_3hr": {Name: "Lightning count last 3 hours"},
	"lightning_strike_last_distance":  {Name: "Lightning last distance", Unit: "km", DeviceClass: "distance"},
	"lightning_strike_last_epoch":     {Name: "Lightning last strike", DeviceClass: "timestamp"},
}

// CloudDescription returns the sensor description of an observation field.
func CloudDescription(field string) Description {
	d, ok := cloudDescriptions[field]
	if !ok {
		d = Description{Name: humanize(field)}
	}
	d.Key = field
	return d
}

func humanize(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// PrecipitationTypeName maps a precipitation type code to its name.
func PrecipitationTypeName(v float64) string {
	switch int(v) {
	case discovery.PrecipNone:
		return "none"
	case discovery.PrecipRain:
		return "rain"
	case discovery.PrecipHail:
		return "hail"
	case discovery.PrecipRainHail:
		return "rain_hail"
	default:
		return "unknown"
	}
}
