package platform

import (
	"fmt"
	"strconv"

	"github.com/tempest-bridge/tempest-go/pkg/cloud"
	"github.com/tempest-bridge/tempest-go/pkg/discovery"
	"github.com/tempest-bridge/tempest-go/pkg/entry"
	"github.com/tempest-bridge/tempest-go/pkg/host"
)

// DeviceSensor is one capability of a locally discovered device.
type DeviceSensor struct {
	device *discovery.Device
	cap    discovery.Capability
	desc   Description
}

// NewDeviceSensor creates the sensor for one device capability.
func NewDeviceSensor(d *discovery.Device, c discovery.Capability) *DeviceSensor {
	return &DeviceSensor{device: d, cap: c, desc: LocalDescription(c)}
}

func (s *DeviceSensor) UniqueID() string {
	return fmt.Sprintf("%s_%s", s.device.SerialNumber(), s.desc.Key)
}

func (s *DeviceSensor) Name() string { return s.desc.Name }

func (s *DeviceSensor) Device() host.DeviceInfo {
	return LocalDeviceInfo(s.device)
}

func (s *DeviceSensor) State() host.State {
	st := host.State{Unit: s.desc.Unit, DeviceClass: s.desc.DeviceClass}
	v, ok := s.device.Value(s.cap)
	if !ok {
		return st
	}
	st.Available = true
	if s.cap == discovery.CapPrecipitationType {
		st.Value = PrecipitationTypeName(v)
		return st
	}
	st.Value = v
	return st
}

// LocalDeviceInfo describes a discovered device for the registry.
func LocalDeviceInfo(d *discovery.Device) host.DeviceInfo {
	info := host.DeviceInfo{
		Identifiers:  []host.Identifier{{Domain: entry.Domain, ID: d.SerialNumber()}},
		Name:         fmt.Sprintf("%s %s", d.Model(), d.SerialNumber()),
		Manufacturer: Manufacturer,
		Model:        d.Model().String(),
		SWVersion:    d.Firmware(),
	}
	if hub := d.HubSerial(); hub != "" && hub != d.SerialNumber() {
		info.ViaDevice = &host.Identifier{Domain: entry.Domain, ID: hub}
	}
	return info
}

// StationSensor is one observation field of a cloud station.
type StationSensor struct {
	coordinator *cloud.Coordinator
	stationID   int
	desc        Description
}

// NewStationSensor creates the sensor for one station observation field.
func NewStationSensor(c *cloud.Coordinator, stationID int, field string) *StationSensor {
	return &StationSensor{coordinator: c, stationID: stationID, desc: CloudDescription(field)}
}

func (s *StationSensor) UniqueID() string {
	return fmt.Sprintf("%d_%s", s.stationID, s.desc.Key)
}

func (s *StationSensor) Name() string { return s.desc.Name }

func (s *StationSensor) Device() host.DeviceInfo {
	data, _ := s.coordinator.Station(s.stationID)
	return StationDeviceInfo(s.stationID, data.Station)
}

func (s *StationSensor) State() host.State {
	st := host.State{Unit: s.desc.Unit, DeviceClass: s.desc.DeviceClass}
	data, ok := s.coordinator.Station(s.stationID)
	if !ok {
		return st
	}
	v, ok := data.Observation.Value(s.desc.Key)
	if !ok {
		return st
	}
	st.Value = v
	st.Available = s.coordinator.LastUpdateSuccess()
	return st
}

// StationDeviceInfo describes a cloud station for the registry.
func StationDeviceInfo(id int, st cloud.Station) host.DeviceInfo {
	name := st.Name
	if name == "" {
		name = "Station " + strconv.Itoa(id)
	}
	return host.DeviceInfo{
		Identifiers:  []host.Identifier{{Domain: entry.Domain, ID: strconv.Itoa(id)}},
		Name:         name,
		Manufacturer: Manufacturer,
		Model:        "Tempest Station",
	}
}
