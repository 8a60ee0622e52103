package host

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// deviceForLocked returns the registry device matching any of info's
// identifiers, creating it if needed, and links it to the entry.
func (h *Host) deviceForLocked(entryID string, info DeviceInfo) *DeviceEntry {
	if len(info.Identifiers) == 0 {
		return nil
	}

	for _, dev := range h.devices {
		for _, id := range info.Identifiers {
			if dev.HasIdentifier(id) {
				if !slices.Contains(dev.ConfigEntries, entryID) {
					dev.ConfigEntries = append(dev.ConfigEntries, entryID)
				}
				if info.SWVersion != "" {
					dev.SWVersion = info.SWVersion
				}
				return dev
			}
		}
	}

	dev := &DeviceEntry{
		ID:            uuid.NewString(),
		Identifiers:   append([]Identifier(nil), info.Identifiers...),
		ConfigEntries: []string{entryID},
		Name:          info.Name,
		Manufacturer:  info.Manufacturer,
		Model:         info.Model,
		SWVersion:     info.SWVersion,
		CreatedAt:     time.Now(),
	}
	h.devices[dev.ID] = dev
	return dev
}

// Devices returns copies of the registered devices ordered by name.
func (h *Host) Devices() []*DeviceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*DeviceEntry, 0, len(h.devices))
	for _, d := range h.devices {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Device returns a copy of one device.
func (h *Host) Device(id string) (*DeviceEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.devices[id]
	if !ok {
		return nil, false
	}
	return d.clone(), true
}

// DeviceByIdentifier finds a device by one of its identifiers.
func (h *Host) DeviceByIdentifier(id Identifier) (*DeviceEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.devices {
		if d.HasIdentifier(id) {
			return d.clone(), true
		}
	}
	return nil, false
}

// RemoveDevice removes a device from every entry that allows it. The
// integration decides per entry; if any entry refuses, the device stays and
// ErrDeviceInUse is returned. Entities of a removed device are retracted.
func (h *Host) RemoveDevice(id string) error {
	h.mu.Lock()
	dev, ok := h.devices[id]
	integ := h.integration
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	snapshot := dev.clone()
	h.mu.Unlock()

	if integ == nil {
		return ErrNoIntegration
	}

	var refused []string
	for _, entryID := range snapshot.ConfigEntries {
		e, ok := h.Entry(entryID)
		if !ok {
			continue
		}
		if !integ.RemoveConfigEntryDevice(e, snapshot) {
			refused = append(refused, entryID)
		}
	}
	if len(refused) > 0 {
		h.logger.Info("host: device removal refused", "device", id, "entries", refused)
		return fmt.Errorf("%w: %s", ErrDeviceInUse, snapshot.Name)
	}

	h.mu.Lock()
	delete(h.devices, id)
	h.mu.Unlock()

	h.retractEntities(func(r *registeredEntity) bool { return r.deviceID == id })
	h.logger.Info("host: device removed", "device", id, "name", snapshot.Name)
	return nil
}
