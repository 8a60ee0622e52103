package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource fires discovery after a delay once started.
type fakeSource struct {
	startErr  error
	fireAfter time.Duration

	mu       sync.Mutex
	started  bool
	stopped  bool
	handlers subscribers[*Device]
	timer    *time.Timer
}

func (f *fakeSource) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	if f.fireAfter > 0 {
		f.timer = time.AfterFunc(f.fireAfter, func() {
			f.handlers.emit(NewDevice("ST-00000001"))
		})
	}
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.timer != nil {
		f.timer.Stop()
	}
	return nil
}

func (f *fakeSource) OnDeviceDiscovered(fn func(*Device)) func() {
	return f.handlers.add(fn)
}

func (f *fakeSource) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func factoryFor(src *fakeSource) ListenerFactory {
	return func() Source { return src }
}

func TestDiscoverSignalBeforeTimeout(t *testing.T) {
	src := &fakeSource{fireAfter: 20 * time.Millisecond}

	start := time.Now()
	found, err := Discover(context.Background(), factoryFor(src), 2*time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, found)
	assert.Less(t, elapsed, time.Second, "returns as soon as the signal fires")
	assert.True(t, src.wasStopped())
	assert.Equal(t, 0, src.handlers.len(), "subscription released")
}

func TestDiscoverTimeout(t *testing.T) {
	src := &fakeSource{}
	timeout := 100 * time.Millisecond

	start := time.Now()
	found, err := Discover(context.Background(), factoryFor(src), timeout)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, found)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
	assert.True(t, src.wasStopped())
}

func TestDiscoverMultipleSignals(t *testing.T) {
	src := &fakeSource{}
	factory := func() Source {
		return src
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		for i := 0; i < 3; i++ {
			src.handlers.emit(NewDevice("ST-00000001"))
		}
	}()

	found, err := Discover(context.Background(), factory, time.Second)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDiscoverStartFailure(t *testing.T) {
	t.Run("WrapsPlainError", func(t *testing.T) {
		src := &fakeSource{startErr: errors.New("address in use")}

		found, err := Discover(context.Background(), factoryFor(src), time.Second)
		assert.False(t, found)
		assert.ErrorIs(t, err, ErrListener)
		assert.True(t, src.wasStopped(), "released on failure")
	})

	t.Run("KeepsListenerError", func(t *testing.T) {
		src := &fakeSource{startErr: ErrListener}

		_, err := Discover(context.Background(), factoryFor(src), time.Second)
		assert.Equal(t, ErrListener, err)
	})
}

func TestDiscoverCancelled(t *testing.T) {
	src := &fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	found, err := Discover(ctx, factoryFor(src), 5*time.Second)
	assert.False(t, found)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, src.wasStopped())
}

func TestDiscoverWithUDPListener(t *testing.T) {
	var mu sync.Mutex
	var l *Listener
	factory := func() Source {
		mu.Lock()
		defer mu.Unlock()
		l = NewListener(ListenerConfig{Address: "127.0.0.1:0"})
		return l
	}

	go func() {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			cur := l
			mu.Unlock()
			if cur != nil {
				if addr := cur.Addr(); addr != nil {
					if conn, err := net.Dial("udp4", addr.String()); err == nil {
						_, _ = conn.Write([]byte(sampleHubStatus))
						conn.Close()
					}
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	found, err := Discover(context.Background(), factory, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, found)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, l.IsListening(), "listener released")
}
