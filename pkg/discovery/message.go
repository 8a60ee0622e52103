package discovery

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message types.
const (
	MsgHubStatus    = "hub_status"
	MsgDeviceStatus = "device_status"
	MsgObsTempest   = "obs_st"
	MsgObsAir       = "obs_air"
	MsgObsSky       = "obs_sky"
	MsgRapidWind    = "rapid_wind"
	MsgPrecipEvent  = "evt_precip"
	MsgStrikeEvent  = "evt_strike"
)

// Observation field layouts, by index into an "obs" row.
var (
	obsTempestFields = []Capability{
		"", CapWindLull, CapWindAverage, CapWindGust, CapWindDirection, "",
		CapStationPressure, CapAirTemperature, CapRelativeHumidity,
		CapIlluminance, CapUV, CapSolarRadiation, CapRainAmount,
		CapPrecipitationType, CapLightningAvgDistance, CapLightningCount,
		CapBattery,
	}
	obsAirFields = []Capability{
		"", CapStationPressure, CapAirTemperature, CapRelativeHumidity,
		CapLightningCount, CapLightningAvgDistance, CapBattery,
	}
	obsSkyFields = []Capability{
		"", CapIlluminance, CapUV, CapRainAmount, CapWindLull, CapWindAverage,
		CapWindGust, CapWindDirection, CapBattery, "", CapSolarRadiation, "",
		CapPrecipitationType,
	}
)

// Message is a decoded datagram.
type Message struct {
	Type      string
	Serial    string
	HubSerial string
	Firmware  string
	Timestamp time.Time

	// Values holds the reported values. Null fields are omitted.
	Values map[Capability]float64
}

// IsObservation reports whether the message is a periodic observation.
func (m *Message) IsObservation() bool {
	switch m.Type {
	case MsgObsTempest, MsgObsAir, MsgObsSky:
		return true
	}
	return false
}

// IsStatus reports whether the message is a status report.
func (m *Message) IsStatus() bool {
	return m.Type == MsgHubStatus || m.Type == MsgDeviceStatus
}

type rawMessage struct {
	Serial    string          `json:"serial_number"`
	Type      string          `json:"type"`
	HubSerial string          `json:"hub_sn"`
	Firmware  json.RawMessage `json:"firmware_revision"`
	Timestamp int64           `json:"timestamp"`
	Uptime    *float64        `json:"uptime"`
	Voltage   *float64        `json:"voltage"`
	RSSI      *float64        `json:"rssi"`
	Obs       [][]*float64    `json:"obs"`
	Ob        []*float64      `json:"ob"`
	Evt       []*float64      `json:"evt"`
}

// ParseMessage decodes a WeatherFlow datagram.
// Unknown message types decode without values.
func ParseMessage(data []byte) (*Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if raw.Serial == "" {
		return nil, ErrMissingSerial
	}

	msg := &Message{
		Type:      raw.Type,
		Serial:    raw.Serial,
		HubSerial: raw.HubSerial,
		Firmware:  firmwareString(raw.Firmware),
		Values:    make(map[Capability]float64),
	}
	if raw.Timestamp > 0 {
		msg.Timestamp = time.Unix(raw.Timestamp, 0)
	}

	switch raw.Type {
	case MsgHubStatus:
		setValue(msg.Values, CapRSSI, raw.RSSI)
		setValue(msg.Values, CapUptime, raw.Uptime)

	case MsgDeviceStatus:
		setValue(msg.Values, CapRSSI, raw.RSSI)
		setValue(msg.Values, CapUptime, raw.Uptime)
		setValue(msg.Values, CapBattery, raw.Voltage)

	case MsgObsTempest:
		decodeObs(msg, raw.Obs, obsTempestFields)
	case MsgObsAir:
		decodeObs(msg, raw.Obs, obsAirFields)
	case MsgObsSky:
		decodeObs(msg, raw.Obs, obsSkyFields)

	case MsgRapidWind:
		if len(raw.Ob) >= 3 {
			setTimestamp(msg, raw.Ob[0])
			setValue(msg.Values, CapWindSpeed, raw.Ob[1])
			setValue(msg.Values, CapWindDirection, raw.Ob[2])
		}

	case MsgPrecipEvent:
		if len(raw.Evt) >= 1 {
			setTimestamp(msg, raw.Evt[0])
		}

	case MsgStrikeEvent:
		if len(raw.Evt) >= 3 {
			setTimestamp(msg, raw.Evt[0])
			setValue(msg.Values, CapLastLightningDistance, raw.Evt[1])
			setValue(msg.Values, CapLastLightningEnergy, raw.Evt[2])
		}
	}

	return msg, nil
}

// decodeObs uses the most recent row; hubs may batch several.
func decodeObs(msg *Message, rows [][]*float64, layout []Capability) {
	if len(rows) == 0 {
		return
	}
	row := rows[len(rows)-1]
	if len(row) > 0 {
		setTimestamp(msg, row[0])
	}
	for i, c := range layout {
		if c == "" || i >= len(row) {
			continue
		}
		setValue(msg.Values, c, row[i])
	}
}

func setValue(values map[Capability]float64, c Capability, v *float64) {
	if v != nil {
		values[c] = *v
	}
}

func setTimestamp(msg *Message, v *float64) {
	if v != nil && *v > 0 {
		msg.Timestamp = time.Unix(int64(*v), 0)
	}
}

// firmwareString accepts both "171" and 171.
func firmwareString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}
