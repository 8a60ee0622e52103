// Package entry defines the integration entry: the persisted configuration
// record for one configured Tempest bridge instance.
//
// # Modes
//
// Every entry runs in exactly one of two modes for its whole lifetime:
//
//   - Local: stations are discovered on the LAN through the WeatherFlow UDP
//     broadcast protocol. No credentials are stored.
//   - Cloud: stations are read from the WeatherFlow REST API with an OAuth2
//     token obtained through a PKCE exchange.
//
// The mode is derived from the presence of the token key in the entry data.
// An entry is never rewritten to switch modes; users remove it and create a
// new one instead.
//
// Resolve turns an entry into a Setup variant once, when the entry is loaded.
// Callers keep the variant and never re-inspect the entry data afterwards.
package entry
