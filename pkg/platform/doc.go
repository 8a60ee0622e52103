// Package platform builds the sensor and weather entities of Tempest
// entries.
//
// The sensor platform serves both modes: local entries get one sensor per
// capability of each device announced on the entry's add-device signal,
// cloud entries get one sensor per numeric observation field of each
// station. The weather platform is cloud only and exposes one weather
// entity per station.
package platform
