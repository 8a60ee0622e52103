package host

import (
	"context"
	"errors"
	"time"

	"github.com/tempest-bridge/tempest-go/pkg/entry"
)

// Errors.
var (
	// ErrNotReady is returned by an integration whose entry cannot be set up
	// yet. The host retries such entries.
	ErrNotReady = errors.New("entry not ready")

	ErrNoIntegration   = errors.New("no integration registered")
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrEntryNotFound   = errors.New("entry not found")
	ErrEntryExists     = errors.New("entry already exists")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrDeviceInUse     = errors.New("device still provided by integration")
	ErrDuplicateEntity = errors.New("entity already registered")
)

// Platform names an entity platform.
type Platform string

// Platforms.
const (
	PlatformSensor  Platform = "sensor"
	PlatformWeather Platform = "weather"
)

// Integration is the per-domain lifecycle implementation.
type Integration interface {
	SetupEntry(ctx context.Context, e *entry.Entry) error
	UnloadEntry(ctx context.Context, e *entry.Entry) (bool, error)
	RemoveConfigEntryDevice(e *entry.Entry, dev *DeviceEntry) bool
}

// PlatformHandler creates the entities of one platform for an entry.
type PlatformHandler interface {
	SetupEntry(ctx context.Context, e *entry.Entry, add AddEntitiesFunc) error
	UnloadEntry(ctx context.Context, e *entry.Entry) (bool, error)
}

// AddEntitiesFunc registers entities created by a platform.
type AddEntitiesFunc func(entities ...Entity)

// Identifier is a (domain, id) pair identifying a device.
type Identifier struct {
	Domain string `json:"domain"`
	ID     string `json:"id"`
}

// DeviceInfo describes the device an entity belongs to.
type DeviceInfo struct {
	Identifiers  []Identifier `json:"identifiers"`
	Name         string       `json:"name"`
	Manufacturer string       `json:"manufacturer,omitempty"`
	Model        string       `json:"model,omitempty"`
	SWVersion    string       `json:"sw_version,omitempty"`
	ViaDevice    *Identifier  `json:"via_device,omitempty"`
}

// State is an entity's current state.
type State struct {
	Value       any            `json:"value"`
	Unit        string         `json:"unit,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Available   bool           `json:"available"`
}

// Entity is a single value exposed by a platform.
type Entity interface {
	UniqueID() string
	Name() string
	Device() DeviceInfo
	State() State
}

// EntityRecord is a registered entity with its current state.
type EntityRecord struct {
	Platform Platform   `json:"platform"`
	EntryID  string     `json:"entry_id"`
	UniqueID string     `json:"unique_id"`
	Name     string     `json:"name"`
	DeviceID string     `json:"device_id,omitempty"`
	Device   DeviceInfo `json:"device"`
	State    State      `json:"state"`
}

// DeviceEntry is a device in the registry.
type DeviceEntry struct {
	ID            string       `json:"id"`
	Identifiers   []Identifier `json:"identifiers"`
	ConfigEntries []string     `json:"config_entries"`
	Name          string       `json:"name"`
	Manufacturer  string       `json:"manufacturer,omitempty"`
	Model         string       `json:"model,omitempty"`
	SWVersion     string       `json:"sw_version,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// HasIdentifier reports whether the device carries the identifier.
func (d *DeviceEntry) HasIdentifier(id Identifier) bool {
	for _, i := range d.Identifiers {
		if i == id {
			return true
		}
	}
	return false
}

// IdentifiersFor returns the ids of the device's identifiers in domain.
func (d *DeviceEntry) IdentifiersFor(domain string) []string {
	var ids []string
	for _, i := range d.Identifiers {
		if i.Domain == domain {
			ids = append(ids, i.ID)
		}
	}
	return ids
}

func (d *DeviceEntry) clone() *DeviceEntry {
	c := *d
	c.Identifiers = append([]Identifier(nil), d.Identifiers...)
	c.ConfigEntries = append([]string(nil), d.ConfigEntries...)
	return &c
}

// EntitySink receives entity lifecycle events.
type EntitySink interface {
	Announce(rec EntityRecord) error
	Update(rec EntityRecord) error
	Retract(rec EntityRecord) error
}

// NopSink discards entity events.
type NopSink struct{}

func (NopSink) Announce(EntityRecord) error { return nil }
func (NopSink) Update(EntityRecord) error   { return nil }
func (NopSink) Retract(EntityRecord) error  { return nil }
