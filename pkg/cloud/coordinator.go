package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Name identifies the coordinator in logs.
	Name string

	// UpdateInterval is the poll period. Default DefaultUpdateInterval.
	UpdateInterval time.Duration

	// Logger is used for operational logging. Default slog.Default().
	Logger *slog.Logger
}

// Coordinator polls the API and fans updates out to listeners.
type Coordinator struct {
	api      API
	name     string
	interval time.Duration
	logger   *slog.Logger

	mu          sync.RWMutex
	data        map[int]StationData
	lastErr     error
	lastUpdate  time.Time
	listeners   map[uint64]func()
	nextID      uint64
	stopped     bool
	stopCh      chan struct{}
	stopOnce    sync.Once
	runningOnce sync.Once
	done        chan struct{}
}

// NewCoordinator creates a coordinator over api.
func NewCoordinator(api API, cfg CoordinatorConfig) *Coordinator {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "tempest"
	}
	return &Coordinator{
		api:       api,
		name:      cfg.Name,
		interval:  cfg.UpdateInterval,
		logger:    cfg.Logger,
		data:      make(map[int]StationData),
		listeners: make(map[uint64]func()),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// FirstRefresh performs the initial fetch. An error means the entry cannot
// be set up yet.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	c.mu.RLock()
	empty := len(c.data) == 0
	c.mu.RUnlock()
	if empty {
		return ErrNoStations
	}
	return nil
}

// Refresh fetches all stations, their latest observation and forecast, then
// notifies listeners. On failure the previous snapshot is kept.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if c.isStopped() {
		return ErrStopped
	}

	data, err := c.fetch(ctx)

	c.mu.Lock()
	c.lastErr = err
	if err == nil {
		c.data = data
		c.lastUpdate = time.Now()
	}
	listeners := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("cloud: update failed", "coordinator", c.name, "error", err)
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	c.logger.Debug("cloud: update complete", "coordinator", c.name, "stations", len(data))
	for _, fn := range listeners {
		fn()
	}
	return nil
}

func (c *Coordinator) fetch(ctx context.Context) (map[int]StationData, error) {
	stations, err := c.api.Stations(ctx)
	if err != nil {
		return nil, err
	}

	data := make(map[int]StationData, len(stations))
	for _, st := range stations {
		obs, err := c.api.StationObservation(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("station %d observation: %w", st.ID, err)
		}
		fc, err := c.api.Forecast(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("station %d forecast: %w", st.ID, err)
		}
		data[st.ID] = StationData{Station: st, Observation: obs, Forecast: fc}
	}
	return data, nil
}

// Run polls until ctx is cancelled or Stop is called. It must be called at
// most once.
func (c *Coordinator) Run(ctx context.Context) {
	c.runningOnce.Do(func() {
		defer close(c.done)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil && errors.Is(err, ErrStopped) {
					return
				}
			}
		}
	})
}

// Listen registers fn to be called after every successful update. The
// returned function removes the listener.
func (c *Coordinator) Listen(fn func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Data returns a copy of the latest snapshot keyed by station ID.
func (c *Coordinator) Data() map[int]StationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.data)
}

// Station returns the snapshot of one station.
func (c *Coordinator) Station(id int) (StationData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.data[id]
	return d, ok
}

// LastUpdateSuccess reports whether the most recent update succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr == nil && !c.lastUpdate.IsZero()
}

// Stop ends polling and drops all listeners. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		clear(c.listeners)
		c.mu.Unlock()
		close(c.stopCh)
	})
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}
