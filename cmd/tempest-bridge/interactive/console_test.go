package interactive

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempest-bridge/tempest-go/pkg/configflow"
	"github.com/tempest-bridge/tempest-go/pkg/entry"
	"github.com/tempest-bridge/tempest-go/pkg/host"
)

type stubIntegration struct{}

func (stubIntegration) SetupEntry(ctx context.Context, e *entry.Entry) error { return nil }

func (stubIntegration) UnloadEntry(ctx context.Context, e *entry.Entry) (bool, error) {
	return true, nil
}

func (stubIntegration) RemoveConfigEntryDevice(e *entry.Entry, dev *host.DeviceEntry) bool {
	return true
}

func newTestConsole(t *testing.T, found bool) (*Console, *host.Host, *bytes.Buffer) {
	t.Helper()

	h := host.New(host.Config{})
	h.SetIntegration(stubIntegration{})
	h.Start(context.Background())

	flows := configflow.NewManager(configflow.Config{
		Registry: h,
		Discover: func(ctx context.Context) (bool, error) { return found, nil },
	})

	out := &bytes.Buffer{}
	c := &Console{out: out}
	c.Attach(h, flows)
	return c, h, out
}

func TestExecuteQuit(t *testing.T) {
	c, _, _ := newTestConsole(t, false)

	assert.True(t, c.Execute(context.Background(), "quit"))
	assert.True(t, c.Execute(context.Background(), "  Q  "))
	assert.False(t, c.Execute(context.Background(), ""))
}

func TestExecuteUnknownCommand(t *testing.T) {
	c, _, out := newTestConsole(t, false)

	c.Execute(context.Background(), "frobnicate")
	assert.Contains(t, out.String(), "Unknown command: frobnicate")
}

func TestSetupLocal(t *testing.T) {
	c, h, out := newTestConsole(t, true)
	ctx := context.Background()

	c.Execute(ctx, "setup local")
	assert.Contains(t, out.String(), "Created entry")
	require.Len(t, h.EntriesByMode(entry.ModeLocal), 1)

	out.Reset()
	c.Execute(ctx, "setup local")
	assert.Contains(t, out.String(), "Aborted: "+configflow.AbortSingleInstance)
}

func TestSetupLocalNoDevices(t *testing.T) {
	c, h, out := newTestConsole(t, false)

	c.Execute(context.Background(), "setup local")
	assert.Contains(t, out.String(), configflow.ErrorNoDevicesFound)
	assert.Empty(t, h.Entries())
}

func TestSetupCloudWithoutAuthorizer(t *testing.T) {
	c, _, out := newTestConsole(t, false)

	c.Execute(context.Background(), "setup cloud")
	assert.Contains(t, out.String(), "Error:")
}

func TestSetupUsage(t *testing.T) {
	c, _, out := newTestConsole(t, false)

	c.Execute(context.Background(), "setup")
	assert.Contains(t, out.String(), "Usage: setup local|cloud")
}

func TestEntryCommands(t *testing.T) {
	c, h, out := newTestConsole(t, true)
	ctx := context.Background()

	c.Execute(ctx, "entries")
	assert.Contains(t, out.String(), "No entries")

	c.Execute(ctx, "setup local")
	e := h.Entries()[0]

	out.Reset()
	c.Execute(ctx, "entries")
	assert.Contains(t, out.String(), e.ID)
	assert.Contains(t, out.String(), "State: loaded")

	out.Reset()
	c.Execute(ctx, "unload "+e.ID[:8])
	assert.Contains(t, out.String(), "OK")
	state, _ := h.EntryState(e.ID)
	assert.Equal(t, entry.StateNotLoaded, state)

	out.Reset()
	c.Execute(ctx, "reload "+e.ID)
	assert.Contains(t, out.String(), "OK (loaded)")

	out.Reset()
	c.Execute(ctx, "remove-entry "+e.ID)
	assert.Contains(t, out.String(), "OK")
	assert.Empty(t, h.Entries())

	out.Reset()
	c.Execute(ctx, "remove-entry "+e.ID)
	assert.Contains(t, out.String(), "Unknown entry")
}

type stubEntity struct{}

func (stubEntity) UniqueID() string { return "ST-00000001_uv" }
func (stubEntity) Name() string     { return "UV" }
func (stubEntity) Device() host.DeviceInfo {
	return host.DeviceInfo{
		Identifiers: []host.Identifier{{Domain: entry.Domain, ID: "ST-00000001"}},
		Name:        "Tempest ST-00000001",
		Model:       "Tempest",
	}
}
func (stubEntity) State() host.State {
	return host.State{Value: 3.2, Unit: "UV index", Available: true}
}

func TestDeviceCommands(t *testing.T) {
	c, h, out := newTestConsole(t, true)
	ctx := context.Background()

	c.Execute(ctx, "setup local")
	e := h.Entries()[0]
	h.AddEntities(e, host.PlatformSensor, stubEntity{})
	dev := h.Devices()[0]

	out.Reset()
	c.Execute(ctx, "devices")
	assert.Contains(t, out.String(), "Identifiers: ST-00000001")
	assert.Contains(t, out.String(), "Model: Tempest")

	out.Reset()
	c.Execute(ctx, "entities "+dev.ID)
	assert.Contains(t, out.String(), "ST-00000001_uv")
	assert.Contains(t, out.String(), "3.2 UV index")

	out.Reset()
	c.Execute(ctx, "remove-device "+dev.ID)
	assert.Contains(t, out.String(), "OK")
	assert.Empty(t, h.Devices())

	out.Reset()
	c.Execute(ctx, "entities")
	assert.Contains(t, out.String(), "No entities")
}

func TestStatus(t *testing.T) {
	c, _, out := newTestConsole(t, true)
	ctx := context.Background()

	c.Execute(ctx, "setup local")
	out.Reset()
	c.Execute(ctx, "status")
	assert.Contains(t, out.String(), "Local entries: 1")
	assert.Contains(t, out.String(), "Cloud entries: 0")
}
