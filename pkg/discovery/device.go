package discovery

import (
	"math"
	"sync"
	"time"
)

// Device is a WeatherFlow hub or sensor seen by a listener.
type Device struct {
	serial       string
	model        Model
	capabilities CapabilitySet

	mu             sync.RWMutex
	hubSerial      string
	firmware       string
	values         map[Capability]float64
	lastSeen       time.Time
	lastObserved   time.Time
	hasStatus      bool
	hasObservation bool
	loaded         bool

	loadComplete subscribers[*Device]
	updated      subscribers[*Device]
}

// NewDevice creates a device for serial. The model is derived from the serial.
func NewDevice(serial string) *Device {
	model := ModelFromSerial(serial)
	return &Device{
		serial:       serial,
		model:        model,
		capabilities: CapabilitiesForModel(model),
		values:       make(map[Capability]float64),
	}
}

// SerialNumber returns the device serial number.
func (d *Device) SerialNumber() string { return d.serial }

// Model returns the device model.
func (d *Device) Model() Model { return d.model }

// Capabilities returns the values this device can report.
func (d *Device) Capabilities() CapabilitySet { return d.capabilities }

// HubSerial returns the serial of the hub relaying this device.
func (d *Device) HubSerial() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hubSerial
}

// Firmware returns the last reported firmware revision.
func (d *Device) Firmware() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.firmware
}

// LastSeen returns when the last datagram from the device arrived.
func (d *Device) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

// LastObservation returns the timestamp of the last observation.
func (d *Device) LastObservation() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastObserved
}

// Loaded reports whether load-complete has fired.
func (d *Device) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Value returns the latest value for c.
func (d *Device) Value(c Capability) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[c]
	return v, ok
}

// Values returns a copy of all latest values.
func (d *Device) Values() map[Capability]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[Capability]float64, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// OnLoadComplete registers fn to run once the device is fully loaded.
// The returned function removes the subscription.
func (d *Device) OnLoadComplete(fn func(*Device)) func() {
	return d.loadComplete.add(fn)
}

// OnUpdate registers fn to run after every message from the device.
func (d *Device) OnUpdate(fn func(*Device)) func() {
	return d.updated.add(fn)
}

// Apply folds a message into the device state and fires subscribers.
// It returns true if this message completed loading.
func (d *Device) Apply(msg *Message, now time.Time) bool {
	d.mu.Lock()
	d.lastSeen = now
	if msg.HubSerial != "" {
		d.hubSerial = msg.HubSerial
	}
	if msg.Firmware != "" {
		d.firmware = msg.Firmware
	}
	for c, v := range msg.Values {
		d.values[c] = v
	}
	if msg.IsStatus() {
		d.hasStatus = true
	}
	if msg.IsObservation() {
		d.hasObservation = true
		d.lastObserved = msg.Timestamp
		d.updateDerivedLocked()
	}

	completed := false
	if !d.loaded && d.readyLocked() {
		d.loaded = true
		completed = true
	}
	d.mu.Unlock()

	if completed {
		d.loadComplete.emit(d)
	}
	d.updated.emit(d)
	return completed
}

func (d *Device) readyLocked() bool {
	if d.model == ModelHub {
		return d.hasStatus
	}
	return d.hasStatus && d.hasObservation
}

func (d *Device) updateDerivedLocked() {
	t, okT := d.values[CapAirTemperature]
	rh, okRH := d.values[CapRelativeHumidity]
	if okT && okRH && rh > 0 {
		d.values[CapDewPoint] = DewPoint(t, rh)
	}
}

// DewPoint returns the dew point in °C using the Magnus formula.
func DewPoint(tempC, humidity float64) float64 {
	const b, c = 17.625, 243.04
	gamma := math.Log(humidity/100) + b*tempC/(c+tempC)
	return math.Round(c*gamma/(b-gamma)*100) / 100
}
