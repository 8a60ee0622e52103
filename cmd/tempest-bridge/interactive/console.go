// Package interactive provides the interactive command-line interface
// for the Tempest bridge.
package interactive

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tempest-bridge/tempest-go/pkg/configflow"
	"github.com/tempest-bridge/tempest-go/pkg/entry"
	"github.com/tempest-bridge/tempest-go/pkg/host"
)

// commandTimeout bounds setup, unload and removal commands. Local setup
// waits up to the discovery timeout.
const commandTimeout = 30 * time.Second

// Console handles interactive mode for tempest-bridge.
type Console struct {
	host  *host.Host
	flows *configflow.Manager
	rl    *readline.Instance
	out   io.Writer
}

// New creates a console reading from the terminal.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tempest> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Attach connects the console to the running bridge.
func (c *Console) Attach(h *host.Host, flows *configflow.Manager) {
	c.host = h
	c.flows = flows
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	if c.rl == nil {
		return os.Stdout
	}
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(ctx, line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It reports whether the user asked to quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "setup":
		c.cmdSetup(ctx, args)
	case "auth":
		c.cmdAuth(ctx, args)
	case "entries", "e":
		c.cmdEntries()
	case "devices", "d":
		c.cmdDevices()
	case "entities", "s":
		c.cmdEntities(args)
	case "reload":
		c.cmdReload(ctx, args)
	case "unload":
		c.cmdUnload(ctx, args)
	case "remove-entry":
		c.cmdRemoveEntry(ctx, args)
	case "remove-device":
		c.cmdRemoveDevice(args)
	case "status":
		c.cmdStatus()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Tempest Bridge Commands:
  Setup:
    setup local            - Discover a station on the LAN and add a local entry
    setup cloud            - Start the cloud authorization flow
    auth <flow> <code>     - Complete a cloud flow with an authorization code

  Entries:
    entries                - List configured entries
    reload <entry>         - Unload and set up an entry again
    unload <entry>         - Unload an entry (it stays configured)
    remove-entry <entry>   - Remove an entry

  Devices:
    devices                - List registered devices
    entities [device]      - List entities, optionally for one device
    remove-device <device> - Remove a device that is no longer reporting

  General:
    status                 - Show bridge status
    help                   - Show this help
    quit                   - Exit

  Entry and device IDs may be abbreviated to a unique prefix.`)
}

// --- Setup ---

func (c *Console) cmdSetup(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: setup local|cloud")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if args[0] == entry.DataSourceLocal {
		fmt.Fprintln(c.out, "Listening for stations...")
	}
	res, err := c.flows.StepUser(ctx, map[string]string{entry.KeyDataSource: args[0]})
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.printResult(res)
}

func (c *Console) cmdAuth(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: auth <flow> <code>")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	res, err := c.flows.ResumeExternal(ctx, args[0], args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.printResult(res)
}

func (c *Console) printResult(res configflow.Result) {
	switch res.Type {
	case configflow.ResultCreateEntry:
		state, _ := c.host.EntryState(res.Entry.ID)
		fmt.Fprintf(c.out, "Created entry %s (%s), state: %s\n", res.Entry.ID, res.Entry.Title, state)
	case configflow.ResultExternal:
		fmt.Fprintln(c.out, "Open this URL to authorize the bridge:")
		fmt.Fprintf(c.out, "  %s\n", res.URL)
		fmt.Fprintf(c.out, "Flow: %s\n", res.FlowID)
		fmt.Fprintln(c.out, "The flow completes on redirect, or run: auth <flow> <code>")
	case configflow.ResultAbort:
		fmt.Fprintf(c.out, "Aborted: %s\n", res.Reason)
	case configflow.ResultForm:
		if len(res.Errors) == 0 {
			fmt.Fprintln(c.out, "Usage: setup local|cloud")
			return
		}
		for field, msg := range res.Errors {
			fmt.Fprintf(c.out, "Error (%s): %s\n", field, msg)
		}
	}
}

// --- Entries ---

func (c *Console) cmdEntries() {
	entries := c.host.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No entries")
		return
	}

	fmt.Fprintf(c.out, "\nEntries (%d):\n", len(entries))
	fmt.Fprintln(c.out, "-------------------------------------------")
	for _, e := range entries {
		state, _ := c.host.EntryState(e.ID)
		fmt.Fprintf(c.out, "  ID: %s\n", e.ID)
		fmt.Fprintf(c.out, "      Title: %s\n", e.Title)
		fmt.Fprintf(c.out, "      Mode: %s\n", e.Mode())
		fmt.Fprintf(c.out, "      State: %s\n", state)
		if n := c.host.RetryAttempts(e.ID); n > 0 {
			fmt.Fprintf(c.out, "      Retries: %d\n", n)
		}
		fmt.Fprintln(c.out)
	}
}

func (c *Console) resolveEntry(prefix string) (*entry.Entry, bool) {
	var match *entry.Entry
	for _, e := range c.host.Entries() {
		if e.ID == prefix {
			return e, true
		}
		if strings.HasPrefix(e.ID, prefix) {
			if match != nil {
				fmt.Fprintf(c.out, "Ambiguous entry: %s\n", prefix)
				return nil, false
			}
			match = e
		}
	}
	if match == nil {
		fmt.Fprintf(c.out, "Unknown entry: %s\n", prefix)
		return nil, false
	}
	return match, true
}

func (c *Console) cmdReload(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: reload <entry>")
		return
	}
	e, ok := c.resolveEntry(args[0])
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := c.host.ReloadEntry(ctx, e.ID); err != nil {
		fmt.Fprintf(c.out, "Reload failed: %v\n", err)
		return
	}
	state, _ := c.host.EntryState(e.ID)
	fmt.Fprintf(c.out, "OK (%s)\n", state)
}

func (c *Console) cmdUnload(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: unload <entry>")
		return
	}
	e, ok := c.resolveEntry(args[0])
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	unloaded, err := c.host.UnloadEntry(ctx, e.ID)
	switch {
	case err != nil:
		fmt.Fprintf(c.out, "Unload failed: %v\n", err)
	case !unloaded:
		fmt.Fprintln(c.out, "Unload refused")
	default:
		fmt.Fprintln(c.out, "OK")
	}
}

func (c *Console) cmdRemoveEntry(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: remove-entry <entry>")
		return
	}
	e, ok := c.resolveEntry(args[0])
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := c.host.RemoveEntry(ctx, e.ID); err != nil {
		fmt.Fprintf(c.out, "Remove failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

// --- Devices ---

func (c *Console) cmdDevices() {
	devices := c.host.Devices()
	if len(devices) == 0 {
		fmt.Fprintln(c.out, "No devices")
		return
	}

	fmt.Fprintf(c.out, "\nDevices (%d):\n", len(devices))
	fmt.Fprintln(c.out, "-------------------------------------------")
	for _, d := range devices {
		fmt.Fprintf(c.out, "  ID: %s\n", d.ID)
		fmt.Fprintf(c.out, "      Name: %s\n", d.Name)
		if d.Model != "" {
			fmt.Fprintf(c.out, "      Model: %s\n", d.Model)
		}
		if d.SWVersion != "" {
			fmt.Fprintf(c.out, "      Firmware: %s\n", d.SWVersion)
		}
		if ids := d.IdentifiersFor(entry.Domain); len(ids) > 0 {
			fmt.Fprintf(c.out, "      Identifiers: %s\n", strings.Join(ids, ", "))
		}
		fmt.Fprintf(c.out, "      Entries: %d\n", len(d.ConfigEntries))
		fmt.Fprintln(c.out)
	}
}

func (c *Console) resolveDevice(prefix string) (*host.DeviceEntry, bool) {
	var match *host.DeviceEntry
	for _, d := range c.host.Devices() {
		if d.ID == prefix {
			return d, true
		}
		if strings.HasPrefix(d.ID, prefix) {
			if match != nil {
				fmt.Fprintf(c.out, "Ambiguous device: %s\n", prefix)
				return nil, false
			}
			match = d
		}
	}
	if match == nil {
		fmt.Fprintf(c.out, "Unknown device: %s\n", prefix)
		return nil, false
	}
	return match, true
}

func (c *Console) cmdEntities(args []string) {
	var deviceID string
	if len(args) > 0 {
		d, ok := c.resolveDevice(args[0])
		if !ok {
			return
		}
		deviceID = d.ID
	}

	count := 0
	for _, rec := range c.host.Entities() {
		if deviceID != "" && rec.DeviceID != deviceID {
			continue
		}
		count++
		value := "unavailable"
		if rec.State.Available {
			value = fmt.Sprintf("%v", rec.State.Value)
			if rec.State.Unit != "" {
				value += " " + rec.State.Unit
			}
		}
		fmt.Fprintf(c.out, "  %-45s %-8s %s\n", rec.UniqueID, rec.Platform, value)
	}
	if count == 0 {
		fmt.Fprintln(c.out, "No entities")
	}
}

func (c *Console) cmdRemoveDevice(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: remove-device <device>")
		return
	}
	d, ok := c.resolveDevice(args[0])
	if !ok {
		return
	}

	if err := c.host.RemoveDevice(d.ID); err != nil {
		fmt.Fprintf(c.out, "Remove failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

// --- Status ---

func (c *Console) cmdStatus() {
	fmt.Fprintln(c.out, "\nBridge Status:")
	fmt.Fprintf(c.out, "  Started:       %v\n", c.host.Started())
	fmt.Fprintf(c.out, "  Local entries: %d\n", len(c.host.EntriesByMode(entry.ModeLocal)))
	fmt.Fprintf(c.out, "  Cloud entries: %d\n", len(c.host.EntriesByMode(entry.ModeCloud)))
	fmt.Fprintf(c.out, "  Devices:       %d\n", len(c.host.Devices()))
	fmt.Fprintf(c.out, "  Entities:      %d\n", len(c.host.Entities()))
	fmt.Fprintf(c.out, "  Pending flows: %d\n", c.flows.Pending())
}
