package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/tempest-bridge/tempest-go/pkg/cloud"
	"github.com/tempest-bridge/tempest-go/pkg/discovery"
	"github.com/tempest-bridge/tempest-go/pkg/entry"
	"github.com/tempest-bridge/tempest-go/pkg/host"
	"github.com/tempest-bridge/tempest-go/pkg/oauth"
)

// Platforms per mode.
var (
	LocalPlatforms = []host.Platform{host.PlatformSensor}
	CloudPlatforms = []host.Platform{host.PlatformSensor, host.PlatformWeather}
)

// ErrCoordinatorUnavailable is returned when a cloud entry is set up without
// a coordinator factory.
var ErrCoordinatorUnavailable = errors.New("cloud coordinator not available")

// LocalSource is the listener a local entry runs.
type LocalSource interface {
	discovery.Source
	Devices() []*discovery.Device
}

var _ LocalSource = (*discovery.Listener)(nil)

// Config configures an Integration.
type Config struct {
	// NewListener creates the listener for a local entry.
	// Default: a discovery.Listener on the WeatherFlow port.
	NewListener func() LocalSource

	// NewCoordinator creates the coordinator for a cloud entry. When nil,
	// cloud entries fail with ErrCoordinatorUnavailable.
	NewCoordinator cloud.Factory

	// Logger is used for operational logging. Default slog.Default().
	Logger *slog.Logger
}

// Integration implements host.Integration for the tempest domain.
type Integration struct {
	host           *host.Host
	newListener    func() LocalSource
	newCoordinator cloud.Factory
	logger         *slog.Logger

	mu       sync.Mutex
	runtimes map[string]runtime
}

// runtime is the variant an entry was set up as. Unload, device removal and
// the platforms consult it instead of the entry data.
type runtime interface {
	mode() entry.Mode
	platforms() []host.Platform
}

type localRuntime struct {
	listener LocalSource
}

func (localRuntime) mode() entry.Mode           { return entry.ModeLocal }
func (localRuntime) platforms() []host.Platform { return LocalPlatforms }

type cloudRuntime struct {
	coordinator *cloud.Coordinator
	cancel      context.CancelFunc
}

func (cloudRuntime) mode() entry.Mode           { return entry.ModeCloud }
func (cloudRuntime) platforms() []host.Platform { return CloudPlatforms }

var _ host.Integration = (*Integration)(nil)

// New creates an integration and installs it on h.
func New(h *host.Host, cfg Config) *Integration {
	if cfg.NewListener == nil {
		lc := discovery.DefaultListenerConfig()
		lc.Logger = cfg.Logger
		cfg.NewListener = func() LocalSource { return discovery.NewListener(lc) }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	i := &Integration{
		host:           h,
		newListener:    cfg.NewListener,
		newCoordinator: cfg.NewCoordinator,
		logger:         cfg.Logger,
		runtimes:       make(map[string]runtime),
	}
	h.SetIntegration(i)
	return i
}

// SignalAddDevice returns the dispatcher signal on which a local entry
// announces loaded devices.
func SignalAddDevice(e *entry.Entry) string {
	return fmt.Sprintf("%s_%s_add_device", entry.Domain, e.ID)
}

// SetupEntry sets up an entry in the mode its data selects.
func (i *Integration) SetupEntry(ctx context.Context, e *entry.Entry) error {
	setup, err := entry.Resolve(e)
	if err != nil {
		return err
	}

	switch s := setup.(type) {
	case entry.CloudSetup:
		return i.setupCloud(ctx, e, s)
	case entry.LocalSetup:
		return i.setupLocal(ctx, e)
	default:
		return fmt.Errorf("unsupported setup %T", setup)
	}
}

func (i *Integration) setupCloud(ctx context.Context, e *entry.Entry, s entry.CloudSetup) error {
	if i.newCoordinator == nil {
		i.logger.Error("cloud coordinator not available", "entry", e.ID)
		return ErrCoordinatorUnavailable
	}
	i.logger.Debug("setting up entry in cloud mode", "entry", e.ID)

	coord := i.newCoordinator(e.ID, oauth.NormalizeToken(s.Token))
	if err := coord.FirstRefresh(ctx); err != nil {
		coord.Stop()
		if errors.Is(err, cloud.ErrUnauthorized) {
			return err
		}
		return fmt.Errorf("%w: %w", host.ErrNotReady, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	i.setRuntime(e.ID, cloudRuntime{coordinator: coord, cancel: cancel})
	go coord.Run(runCtx)

	if err := i.host.ForwardEntrySetups(ctx, e, CloudPlatforms); err != nil {
		i.abortSetup(ctx, e)
		return err
	}

	i.host.OnUnload(e, i.host.OnStop(func() {
		cancel()
		coord.Stop()
	}))
	return nil
}

func (i *Integration) setupLocal(ctx context.Context, e *entry.Entry) error {
	i.logger.Debug("setting up entry in local mode", "entry", e.ID)

	h := i.host
	l := i.newListener()
	signal := SignalAddDevice(e)

	h.OnUnload(e, l.OnDeviceDiscovered(func(d *discovery.Device) {
		i.logger.Debug("found device", "entry", e.ID, "serial", d.SerialNumber())

		h.OnUnload(e, d.OnLoadComplete(func(d *discovery.Device) {
			h.OnUnload(e, h.AtStarted(func() {
				h.Dispatcher().Send(signal, d)
			}))
		}))
	}))

	// Platforms connect to the signal before the first datagram can load a
	// device.
	i.setRuntime(e.ID, localRuntime{listener: l})
	if err := h.ForwardEntrySetups(ctx, e, LocalPlatforms); err != nil {
		i.abortSetup(ctx, e)
		return err
	}

	if err := l.Start(ctx); err != nil {
		i.abortSetup(ctx, e)
		if errors.Is(err, discovery.ErrListener) {
			return fmt.Errorf("%w: %w", host.ErrNotReady, err)
		}
		return err
	}

	h.OnUnload(e, h.OnStop(func() {
		if err := l.Stop(); err != nil {
			i.logger.Warn("listener stop failed", "entry", e.ID, "error", err)
		}
	}))
	return nil
}

// UnloadEntry unloads the platforms the entry was set up with and releases
// its runtime.
func (i *Integration) UnloadEntry(ctx context.Context, e *entry.Entry) (bool, error) {
	rt, ok := i.runtime(e.ID)
	if !ok {
		return true, nil
	}

	ok, err := i.host.UnloadPlatforms(ctx, e, rt.platforms())
	if err != nil || !ok {
		return ok, err
	}
	i.dropRuntime(e.ID)
	return true, nil
}

// RemoveConfigEntryDevice reports whether a device may be removed from the
// entry. Cloud entries and entries without a runtime always allow it. Local
// entries refuse while their listener still tracks a device with one of the
// device's serials.
func (i *Integration) RemoveConfigEntryDevice(e *entry.Entry, dev *host.DeviceEntry) bool {
	rt, ok := i.runtime(e.ID)
	if !ok {
		return true
	}
	local, ok := rt.(localRuntime)
	if !ok {
		return true
	}

	serials := dev.IdentifiersFor(entry.Domain)
	for _, d := range local.listener.Devices() {
		if slices.Contains(serials, d.SerialNumber()) {
			return false
		}
	}
	return true
}

// RuntimeMode returns the mode a loaded entry was set up in.
func (i *Integration) RuntimeMode(entryID string) (entry.Mode, bool) {
	rt, ok := i.runtime(entryID)
	if !ok {
		return entry.ModeLocal, false
	}
	return rt.mode(), true
}

// Platforms returns the platforms a loaded entry was forwarded to.
func (i *Integration) Platforms(entryID string) []host.Platform {
	rt, ok := i.runtime(entryID)
	if !ok {
		return nil
	}
	return rt.platforms()
}

// Listener returns the listener of a loaded local entry.
func (i *Integration) Listener(entryID string) (LocalSource, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rt, ok := i.runtimes[entryID].(localRuntime)
	if !ok {
		return nil, false
	}
	return rt.listener, true
}

// Coordinator returns the coordinator of a loaded cloud entry.
func (i *Integration) Coordinator(entryID string) (*cloud.Coordinator, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rt, ok := i.runtimes[entryID].(cloudRuntime)
	if !ok {
		return nil, false
	}
	return rt.coordinator, true
}

// Loaded returns the number of entries with a live runtime.
func (i *Integration) Loaded() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.runtimes)
}

func (i *Integration) runtime(id string) (runtime, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rt, ok := i.runtimes[id]
	return rt, ok
}

// abortSetup undoes a partial setup: platforms that already loaded are
// unloaded before the runtime is released.
func (i *Integration) abortSetup(ctx context.Context, e *entry.Entry) {
	if rt, ok := i.runtime(e.ID); ok {
		if _, err := i.host.UnloadPlatforms(ctx, e, rt.platforms()); err != nil {
			i.logger.Warn("platform unload after failed setup", "entry", e.ID, "error", err)
		}
	}
	i.dropRuntime(e.ID)
}

func (i *Integration) setRuntime(id string, rt runtime) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.runtimes[id] = rt
}

func (i *Integration) dropRuntime(id string) {
	i.mu.Lock()
	rt, ok := i.runtimes[id]
	delete(i.runtimes, id)
	i.mu.Unlock()
	if !ok {
		return
	}

	switch rt := rt.(type) {
	case localRuntime:
		if err := rt.listener.Stop(); err != nil {
			i.logger.Warn("listener stop failed", "entry", id, "error", err)
		}
	case cloudRuntime:
		rt.cancel()
		rt.coordinator.Stop()
	}
	i.logger.Debug("runtime released", "entry", id, "mode", rt.mode())
}
