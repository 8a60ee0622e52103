package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	caplog "github.com/tempest-bridge/tempest-go/pkg/log"
)

// RunExport exports matching events to the specified format.
func RunExport(path string, filter caplog.Filter, format, output string) error {
	reader, err := caplog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *caplog.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

// exportCSV writes one row per decoded message field. Other event kinds are
// skipped.
func exportCSV(reader *caplog.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "serial", "hub_sn", "type", "field", "value"}); err != nil {
		return err
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if event.Message == nil {
			continue
		}

		ts := event.Timestamp.UTC().Format(time.RFC3339Nano)
		for _, name := range sortedFields(event.Message.Fields) {
			row := []string{
				ts,
				event.Serial,
				event.HubSerial,
				event.Message.Type,
				name,
				strconv.FormatFloat(event.Message.Fields[name], 'f', -1, 64),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
