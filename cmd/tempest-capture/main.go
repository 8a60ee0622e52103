// Command tempest-capture views and analyzes datagram capture files.
//
// Capture files are written by tempest-bridge when local.capture_file is set
// in its configuration.
//
// Usage:
//
//	tempest-capture <command> [flags] <file.tcap>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSONL or CSV format
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View all events
//	tempest-capture view bridge.tcap
//
//	# View only decoded messages from one device
//	tempest-capture view -kind message -serial ST-00012345 bridge.tcap
//
//	# Export observations to CSV
//	tempest-capture export -format csv -type obs_st bridge.tcap
//
//	# Show statistics
//	tempest-capture stats bridge.tcap
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tempest-bridge/tempest-go/cmd/tempest-capture/commands"
	caplog "github.com/tempest-bridge/tempest-go/pkg/log"
)

const usage = `tempest-capture - WeatherFlow Datagram Capture Analyzer

Usage:
  tempest-capture <command> [flags] <file.tcap>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSONL or CSV format
  stats    Show statistics about the capture file

Use "tempest-capture <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the shared event filter flags on fs.
type filterFlags struct {
	kind        *string
	serial      *string
	messageType *string
	listener    *string
	since       *string
	until       *string
}

func addFilterFlags(fs *flag.FlagSet) *filterFlags {
	return &filterFlags{
		kind:        fs.String("kind", "", "Filter by kind (datagram, message, state, error)"),
		serial:      fs.String("serial", "", "Filter by device serial number"),
		messageType: fs.String("type", "", "Filter by message type (obs_st, hub_status, ...)"),
		listener:    fs.String("listener", "", "Filter by listener ID"),
		since:       fs.String("since", "", "Only events at or after this RFC3339 time"),
		until:       fs.String("until", "", "Only events before this RFC3339 time"),
	}
}

func (f *filterFlags) build() (caplog.Filter, error) {
	filter := caplog.Filter{
		Serial:      *f.serial,
		MessageType: *f.messageType,
		ListenerID:  *f.listener,
	}
	if *f.kind != "" {
		k, ok := caplog.ParseKind(*f.kind)
		if !ok {
			return filter, fmt.Errorf("invalid kind: %s", *f.kind)
		}
		filter.Kind = &k
	}
	if *f.since != "" {
		t, err := time.Parse(time.RFC3339, *f.since)
		if err != nil {
			return filter, fmt.Errorf("invalid -since: %w", err)
		}
		filter.TimeStart = &t
	}
	if *f.until != "" {
		t, err := time.Parse(time.RFC3339, *f.until)
		if err != nil {
			return filter, fmt.Errorf("invalid -until: %w", err)
		}
		filter.TimeEnd = &t
	}
	return filter, nil
}

func parseCommand(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tempest-capture view - View capture file in human-readable format

Usage:
  tempest-capture view [flags] <file.tcap>

Flags:
`)
		fs.PrintDefaults()
	}
	ff := addFilterFlags(fs)
	raw := fs.Bool("raw", false, "Print raw datagram payloads")

	path := parseCommand(fs, args)
	filter, err := ff.build()
	if err != nil {
		fail(err)
	}

	if err := commands.RunView(path, filter, commands.ViewOptions{Raw: *raw}, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tempest-capture export - Export capture file

Usage:
  tempest-capture export [flags] <file.tcap>

Flags:
`)
		fs.PrintDefaults()
	}
	ff := addFilterFlags(fs)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default stdout)")

	path := parseCommand(fs, args)
	filter, err := ff.build()
	if err != nil {
		fail(err)
	}

	if err := commands.RunExport(path, filter, *format, *output); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tempest-capture stats - Show statistics about the capture file

Usage:
  tempest-capture stats <file.tcap>
`)
	}

	path := parseCommand(fs, args)
	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
