// Package integration sets Tempest entries up on a host.
//
// An entry runs in one of two modes, chosen from its stored data:
//
//   - Local: a UDP listener receives broadcasts from hubs on the LAN. Each
//     device that finishes loading is announced on the entry's add-device
//     signal once the host has started. Only the sensor platform is used.
//   - Cloud: a coordinator polls the WeatherFlow REST API with the entry's
//     OAuth token. Sensor and weather platforms are used.
//
// The runtime of each loaded entry (listener or coordinator) is kept in the
// Integration's own map, keyed by entry ID.
package integration
