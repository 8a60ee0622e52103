package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	caplog "github.com/tempest-bridge/tempest-go/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents    int
	EventsByKind   map[caplog.Kind]int
	MessagesByType map[string]int
	Devices        map[string]*DeviceStats
	Listeners      map[string]int
	Errors         int
	Bytes          int
	TimeRange      struct {
		Start time.Time
		End   time.Time
	}
}

// DeviceStats holds statistics for a single device serial.
type DeviceStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Messages  int
	HubSerial string
	Firmware  string
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := collectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func collectStats(path string) (*Stats, error) {
	reader, err := caplog.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByKind:   make(map[caplog.Kind]int),
		MessagesByType: make(map[string]int),
		Devices:        make(map[string]*DeviceStats),
		Listeners:      make(map[string]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByKind[event.Kind]++
		stats.Listeners[event.ListenerID]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		switch {
		case event.Datagram != nil:
			stats.Bytes += event.Datagram.Size
		case event.Message != nil:
			stats.MessagesByType[event.Message.Type]++
			if event.Serial != "" {
				trackDevice(stats, event)
			}
		case event.Error != nil:
			stats.Errors++
		}
	}
	return stats, nil
}

func trackDevice(stats *Stats, event caplog.Event) {
	dev, ok := stats.Devices[event.Serial]
	if !ok {
		dev = &DeviceStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		stats.Devices[event.Serial] = dev
	}
	dev.Messages++
	if event.Timestamp.After(dev.LastSeen) {
		dev.LastSeen = event.Timestamp
	}
	if event.HubSerial != "" {
		dev.HubSerial = event.HubSerial
	}
	if event.Message.Firmware != "" {
		dev.Firmware = event.Message.Firmware
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Tempest Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Listeners:    %d\n", len(stats.Listeners))
	fmt.Fprintf(w, "Bytes:        %d\n", stats.Bytes)
	fmt.Fprintf(w, "Errors:       %d\n", stats.Errors)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Kind:")
	for _, k := range []caplog.Kind{caplog.KindDatagram, caplog.KindMessage, caplog.KindState, caplog.KindError} {
		if count := stats.EventsByKind[k]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", k.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.MessagesByType) > 0 {
		fmt.Fprintln(w, "Messages by Type:")
		types := make([]string, 0, len(stats.MessagesByType))
		for t := range stats.MessagesByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-16s %d\n", t+":", stats.MessagesByType[t])
		}
		fmt.Fprintln(w)
	}

	if len(stats.Devices) > 0 {
		fmt.Fprintf(w, "Devices (%d):\n", len(stats.Devices))
		serials := make([]string, 0, len(stats.Devices))
		for s := range stats.Devices {
			serials = append(serials, s)
		}
		sort.Strings(serials)
		for _, s := range serials {
			dev := stats.Devices[s]
			fmt.Fprintf(w, "  %s: %d message(s)", s, dev.Messages)
			if dev.HubSerial != "" {
				fmt.Fprintf(w, " via %s", dev.HubSerial)
			}
			if dev.Firmware != "" {
				fmt.Fprintf(w, " fw %s", dev.Firmware)
			}
			fmt.Fprintf(w, ", last seen %s\n", dev.LastSeen.Format(time.RFC3339))
		}
	}
}
