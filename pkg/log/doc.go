// Package log captures the local WeatherFlow UDP traffic seen by a listener.
//
// Capture is separate from operational logging (slog). It records every
// datagram, how it was decoded, device lifecycle changes and decode errors
// so that a station's behaviour can be replayed and inspected later.
//
// # Basic Usage
//
//	// Console while developing
//	cfg.Capture = log.NewSlogAdapter(slog.Default())
//
//	// Capture file
//	cfg.Capture, _ = log.NewFileLogger("/var/lib/tempest/udp.tcap")
//
//	// Both
//	cfg.Capture = log.NewMultiLogger(console, file)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events using integer keys
// (.tcap extension). The tempest-capture command views and summarises them.
package log
