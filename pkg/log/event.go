package log

import (
	"strings"
	"time"
)

// MaxCapturedBytes caps the raw datagram bytes stored per event.
// WeatherFlow datagrams are well below this; anything larger is truncated.
const MaxCapturedBytes = 2048

// Event is a single capture record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// ListenerID identifies the listener instance that produced the event.
	ListenerID string `cbor:"2,keyasint"`

	// Kind classifies the event; exactly one payload field matches it.
	Kind Kind `cbor:"3,keyasint"`

	// RemoteAddr is the sender address (IP:port) for datagram and message events.
	RemoteAddr string `cbor:"4,keyasint,omitempty"`

	// Serial is the device serial number, once known.
	Serial string `cbor:"5,keyasint,omitempty"`

	// HubSerial is the serial of the hub that relayed the datagram.
	HubSerial string `cbor:"6,keyasint,omitempty"`

	Datagram    *DatagramEvent    `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Kind classifies capture events.
type Kind uint8

const (
	// KindDatagram is a raw datagram as received.
	KindDatagram Kind = 0
	// KindMessage is a successfully decoded message.
	KindMessage Kind = 1
	// KindState is a listener or device state change.
	KindState Kind = 2
	// KindError is a decode or socket error.
	KindError Kind = 3
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDatagram:
		return "DATAGRAM"
	case KindMessage:
		return "MESSAGE"
	case KindState:
		return "STATE"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseKind parses a kind name as printed by String (case-insensitive).
func ParseKind(s string) (Kind, bool) {
	for k := KindDatagram; k <= KindError; k++ {
		if strings.EqualFold(k.String(), s) {
			return k, true
		}
	}
	return 0, false
}

// DatagramEvent holds the raw bytes of a datagram.
type DatagramEvent struct {
	// Size is the datagram size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the datagram payload, truncated to MaxCapturedBytes.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates Data was cut.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewDatagramEvent copies data into a DatagramEvent, truncating if needed.
func NewDatagramEvent(data []byte) *DatagramEvent {
	n := len(data)
	ev := &DatagramEvent{Size: n}
	if n > MaxCapturedBytes {
		n = MaxCapturedBytes
		ev.Truncated = true
	}
	ev.Data = append([]byte(nil), data[:n]...)
	return ev
}

// MessageEvent describes a decoded message.
type MessageEvent struct {
	// Type is the WeatherFlow message type (obs_st, hub_status, ...).
	Type string `cbor:"1,keyasint"`

	// Firmware is the reported firmware revision, when present.
	Firmware string `cbor:"2,keyasint,omitempty"`

	// Fields is the decoded payload, keyed by field name.
	Fields map[string]float64 `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures listener and device lifecycle changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change, if any.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityListener is the UDP listener itself.
	StateEntityListener StateEntity = 0
	// StateEntityDevice is a discovered device.
	StateEntityDevice StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityListener:
		return "LISTENER"
	case StateEntityDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures decode and socket errors.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context describes what was being done.
	Context string `cbor:"2,keyasint,omitempty"`
}
