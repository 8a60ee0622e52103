// Package mqtt publishes entities to an MQTT broker using Home Assistant
// MQTT discovery.
//
// Each entity gets a retained discovery config under
// <discovery_prefix>/<component>/<object_id>/config and a retained JSON
// state under <base_topic>/<object_id>/state. The bridge availability is
// kept on <base_topic>/bridge/status with a last will of "offline".
package mqtt
