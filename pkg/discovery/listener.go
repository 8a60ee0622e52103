package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	caplog "github.com/tempest-bridge/tempest-go/pkg/log"
)

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Address is the UDP address to bind. Default ":50222".
	Address string

	// Capture receives every datagram and decode result. Optional.
	Capture caplog.Logger

	// Logger is used for operational logging. Default slog.Default().
	Logger *slog.Logger
}

// DefaultListenerConfig returns the default listener configuration.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		Address: fmt.Sprintf(":%d", DefaultPort),
	}
}

// Listener receives WeatherFlow broadcasts and tracks the devices it sees.
type Listener struct {
	config  ListenerConfig
	id      string
	capture caplog.Logger
	logger  *slog.Logger

	mu      sync.RWMutex
	conn    net.PacketConn
	devices map[string]*Device
	done    chan struct{}
	wg      sync.WaitGroup

	discovered subscribers[*Device]

	// now is replaceable in tests.
	now func() time.Time
}

// NewListener creates a listener. It does not bind until Start.
func NewListener(config ListenerConfig) *Listener {
	if config.Address == "" {
		config.Address = DefaultListenerConfig().Address
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Listener{
		config:  config,
		id:      id,
		capture: caplog.OrNoop(config.Capture),
		logger:  logger.With("component", "udp-listener", "listener_id", id[:8]),
		devices: make(map[string]*Device),
		now:     time.Now,
	}
}

// ID returns the listener's capture identifier.
func (l *Listener) ID() string { return l.id }

// OnDeviceDiscovered registers fn for newly seen devices.
// The returned function removes the subscription.
func (l *Listener) OnDeviceDiscovered(fn func(*Device)) func() {
	return l.discovered.add(fn)
}

// Start binds the UDP socket and starts the read loop.
// Bind failures are returned wrapped in ErrListener.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return ErrAlreadyListening
	}

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", l.config.Address)
	if err != nil {
		l.captureState("stopped", "failed", err.Error())
		return fmt.Errorf("%w: bind %s: %v", ErrListener, l.config.Address, err)
	}

	l.conn = conn
	l.done = make(chan struct{})
	l.wg.Add(1)
	go l.readLoop(conn, l.done)

	l.logger.Info("listening for WeatherFlow broadcasts", "addr", conn.LocalAddr().String())
	l.captureState("stopped", "listening", "")
	return nil
}

// Stop closes the socket and waits for the read loop to exit.
// It is safe to call Stop more than once, or without Start.
func (l *Listener) Stop() error {
	l.mu.Lock()
	conn := l.conn
	done := l.done
	l.conn = nil
	l.done = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}

	close(done)
	err := conn.Close()
	l.wg.Wait()

	l.logger.Info("listener stopped")
	l.captureState("listening", "stopped", "")
	return err
}

// IsListening reports whether the socket is bound.
func (l *Listener) IsListening() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conn != nil
}

// Addr returns the bound address, or nil when not listening.
func (l *Listener) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Devices returns every device seen so far, sorted by serial.
func (l *Listener) Devices() []*Device {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Device, 0, len(l.devices))
	for _, d := range l.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].serial < out[j].serial })
	return out
}

// Device returns the device with the given serial.
func (l *Listener) Device(serial string) (*Device, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.devices[serial]
	return d, ok
}

func (l *Listener) readLoop(conn net.PacketConn, done <-chan struct{}) {
	defer l.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("read failed", "error", err)
			l.captureError("", err, "read")
			continue
		}

		remote := ""
		if addr != nil {
			remote = addr.String()
		}
		l.HandleDatagram(buf[:n], remote)
	}
}

// HandleDatagram processes one datagram as if it had arrived on the socket.
func (l *Listener) HandleDatagram(data []byte, remote string) {
	now := l.now()
	l.capture.Log(caplog.Event{
		Timestamp:  now,
		ListenerID: l.id,
		Kind:       caplog.KindDatagram,
		RemoteAddr: remote,
		Datagram:   caplog.NewDatagramEvent(data),
	})

	msg, err := ParseMessage(data)
	if err != nil {
		l.logger.Debug("dropping datagram", "remote", remote, "error", err)
		l.captureError(remote, err, "decode")
		return
	}

	l.capture.Log(caplog.Event{
		Timestamp:  now,
		ListenerID: l.id,
		Kind:       caplog.KindMessage,
		RemoteAddr: remote,
		Serial:     msg.Serial,
		HubSerial:  msg.HubSerial,
		Message: &caplog.MessageEvent{
			Type:     msg.Type,
			Firmware: msg.Firmware,
			Fields:   fieldMap(msg.Values),
		},
	})

	device, isNew := l.deviceFor(msg.Serial)
	if isNew {
		l.logger.Debug("found device", "serial", msg.Serial, "model", device.Model().String())
		l.captureDeviceState(msg.Serial, "", "discovered")
		l.discovered.emit(device)
	}

	if device.Apply(msg, now) {
		l.logger.Debug("device load complete", "serial", msg.Serial)
		l.captureDeviceState(msg.Serial, "discovered", "loaded")
	}
}

func (l *Listener) deviceFor(serial string) (*Device, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d, ok := l.devices[serial]; ok {
		return d, false
	}
	d := NewDevice(serial)
	l.devices[serial] = d
	return d, true
}

func (l *Listener) captureState(oldState, newState, reason string) {
	l.capture.Log(caplog.Event{
		Timestamp:  l.now(),
		ListenerID: l.id,
		Kind:       caplog.KindState,
		StateChange: &caplog.StateChangeEvent{
			Entity:   caplog.StateEntityListener,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (l *Listener) captureDeviceState(serial, oldState, newState string) {
	l.capture.Log(caplog.Event{
		Timestamp:  l.now(),
		ListenerID: l.id,
		Kind:       caplog.KindState,
		Serial:     serial,
		StateChange: &caplog.StateChangeEvent{
			Entity:   caplog.StateEntityDevice,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (l *Listener) captureError(remote string, err error, context string) {
	l.capture.Log(caplog.Event{
		Timestamp:  l.now(),
		ListenerID: l.id,
		Kind:       caplog.KindError,
		RemoteAddr: remote,
		Error:      &caplog.ErrorEventData{Message: err.Error(), Context: context},
	})
}

func fieldMap(values map[Capability]float64) map[string]float64 {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]float64, len(values))
	for c, v := range values {
		out[string(c)] = v
	}
	return out
}
