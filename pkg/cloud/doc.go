// Package cloud talks to the WeatherFlow REST API and keeps a periodically
// refreshed snapshot of station observations and forecasts.
package cloud
