package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Source is the part of a listener the discovery gate needs.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	OnDeviceDiscovered(fn func(*Device)) func()
}

// ListenerFactory creates a fresh, unstarted Source.
type ListenerFactory func() Source

// NewListenerFactory returns a factory producing listeners with config.
func NewListenerFactory(config ListenerConfig) ListenerFactory {
	return func() Source { return NewListener(config) }
}

var _ Source = (*Listener)(nil)

// Discover runs a transient listener until the first device is discovered.
//
// It returns true when a device was seen and false when timeout elapsed
// first. A start failure is returned wrapped in ErrListener; cancellation
// of ctx returns ctx.Err(). The listener is stopped before Discover returns.
func Discover(ctx context.Context, factory ListenerFactory, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	src := factory()
	defer func() {
		if err := src.Stop(); err != nil {
			slog.Debug("discovery listener stop failed", "error", err)
		}
	}()

	found := make(chan struct{})
	var once sync.Once
	remove := src.OnDeviceDiscovered(func(d *Device) {
		once.Do(func() {
			slog.Info("discovery: device found", "serial", d.SerialNumber())
			close(found)
		})
	})
	defer remove()

	slog.Info("discovery: starting local device discovery", "timeout", timeout)
	if err := src.Start(ctx); err != nil {
		if errors.Is(err, ErrListener) {
			return false, err
		}
		return false, fmt.Errorf("%w: %w", ErrListener, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-found:
		return true, nil
	case <-timer.C:
		slog.Warn("discovery: no device discovered within timeout", "timeout", timeout)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
