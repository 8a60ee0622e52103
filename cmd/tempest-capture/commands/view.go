// Package commands implements the tempest-capture CLI commands.
package commands

import (
	"fmt"
	"io"
	"sort"

	caplog "github.com/tempest-bridge/tempest-go/pkg/log"
)

// ViewOptions controls view output.
type ViewOptions struct {
	// Raw prints datagram payloads as text.
	Raw bool
}

// RunView prints matching events from the capture file.
func RunView(path string, filter caplog.Filter, opts ViewOptions, w io.Writer) error {
	reader, err := caplog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event, opts)
		count++
	}

	fmt.Fprintf(w, "%d event(s)\n", count)
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event caplog.Event, opts ViewOptions) {
	// Header line: timestamp [listener:id] KIND serial
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [listener:%s] %-8s", ts, shortenID(event.ListenerID), event.Kind)
	if event.Serial != "" {
		fmt.Fprintf(w, " %s", event.Serial)
	}
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, " from %s", event.RemoteAddr)
	}
	fmt.Fprintln(w)

	switch {
	case event.Datagram != nil:
		formatDatagramDetails(w, event.Datagram, opts.Raw)
	case event.Message != nil:
		formatMessageDetails(w, event.Message, event.HubSerial)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of a listener ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatDatagramDetails(w io.Writer, d *caplog.DatagramEvent, raw bool) {
	fmt.Fprintf(w, "  Size: %d bytes", d.Size)
	if d.Truncated {
		fmt.Fprint(w, " (truncated)")
	}
	fmt.Fprintln(w)
	if raw && len(d.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s\n", d.Data)
	}
}

func formatMessageDetails(w io.Writer, msg *caplog.MessageEvent, hub string) {
	fmt.Fprintf(w, "  Type: %s\n", msg.Type)
	if hub != "" {
		fmt.Fprintf(w, "  Hub: %s\n", hub)
	}
	if msg.Firmware != "" {
		fmt.Fprintf(w, "  Firmware: %s\n", msg.Firmware)
	}
	for _, name := range sortedFields(msg.Fields) {
		fmt.Fprintf(w, "  %-36s %g\n", name+":", msg.Fields[name])
	}
}

func formatStateChangeDetails(w io.Writer, sc *caplog.StateChangeEvent) {
	old := sc.OldState
	if old == "" {
		old = "-"
	}
	fmt.Fprintf(w, "  %s: %s -> %s\n", sc.Entity, old, sc.NewState)
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, e *caplog.ErrorEventData) {
	fmt.Fprintf(w, "  Error: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

func sortedFields(fields map[string]float64) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
