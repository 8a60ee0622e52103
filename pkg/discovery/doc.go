// Package discovery listens for WeatherFlow stations on the local network.
//
// WeatherFlow hubs broadcast JSON datagrams on UDP port 50222. Each datagram
// carries the serial number of the sending device and one of the message
// types below:
//
//	hub_status     hub uptime, RSSI and firmware
//	device_status  sensor voltage, RSSI and firmware
//	obs_st         Tempest observation (all sensors)
//	obs_air        AIR observation (temperature, humidity, pressure, lightning)
//	obs_sky        SKY observation (wind, rain, light)
//	rapid_wind     instantaneous wind, every few seconds
//	evt_precip     rain start event
//	evt_strike     lightning strike event
//
// # Devices
//
// The first datagram from an unknown serial number creates a Device and fires
// the listener's device-discovered subscribers. A device fires its
// load-complete subscribers once, when it has reported enough to build
// entities: a hub after its first hub_status, a sensor after its first
// device_status and its first observation.
//
// Subscribers run on the listener's read goroutine and must not block.
//
// # Discovery gate
//
// Discover answers "is there a station on this network?" by running a
// transient listener until the first device is seen or a timeout elapses.
package discovery
