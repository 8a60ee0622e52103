package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tempest-bridge/tempest-go/pkg/cloud"
	"github.com/tempest-bridge/tempest-go/pkg/discovery"
	"github.com/tempest-bridge/tempest-go/pkg/entry"
	"github.com/tempest-bridge/tempest-go/pkg/host"
	"github.com/tempest-bridge/tempest-go/pkg/integration"
)

// Errors.
var (
	ErrWrongMode = errors.New("platform does not support entry mode")
	ErrNoRuntime = errors.New("entry has no runtime")
)

// Runtimes looks up what a loaded entry was set up as.
type Runtimes interface {
	RuntimeMode(entryID string) (entry.Mode, bool)
	Coordinator(entryID string) (*cloud.Coordinator, bool)
}

var _ Runtimes = (*integration.Integration)(nil)

// Sensors is the sensor platform handler.
type Sensors struct {
	host     *host.Host
	runtimes Runtimes
	logger   *slog.Logger
	subs     *subscriptions
}

// NewSensors creates the sensor platform.
func NewSensors(h *host.Host, r Runtimes) *Sensors {
	return &Sensors{
		host:     h,
		runtimes: r,
		logger:   h.Logger(),
		subs:     newSubscriptions(),
	}
}

var _ host.PlatformHandler = (*Sensors)(nil)

// SetupEntry sets up local or cloud sensors depending on the mode the entry
// was set up in.
func (s *Sensors) SetupEntry(ctx context.Context, e *entry.Entry, add host.AddEntitiesFunc) error {
	mode, ok := s.runtimes.RuntimeMode(e.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRuntime, e.ID)
	}
	if mode == entry.ModeCloud {
		s.logger.Info("sensor platform: loading cloud sensors", "entry", e.ID)
		return s.setupCloud(e, add)
	}
	s.logger.Info("sensor platform: loading local sensors", "entry", e.ID)
	s.setupLocal(e, add)
	return nil
}

func (s *Sensors) setupLocal(e *entry.Entry, add host.AddEntitiesFunc) {
	remove := s.host.Dispatcher().Connect(integration.SignalAddDevice(e), func(payload any) {
		d, ok := payload.(*discovery.Device)
		if !ok {
			return
		}

		caps := d.Capabilities().Sorted()
		entities := make([]host.Entity, 0, len(caps))
		for _, c := range caps {
			entities = append(entities, NewDeviceSensor(d, c))
		}
		add(entities...)

		s.subs.add(e.ID, d.OnUpdate(func(*discovery.Device) {
			for _, ent := range entities {
				s.host.UpdateEntity(ent.UniqueID())
			}
		}))
	})
	s.subs.add(e.ID, remove)
}

func (s *Sensors) setupCloud(e *entry.Entry, add host.AddEntitiesFunc) error {
	coord, ok := s.runtimes.Coordinator(e.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRuntime, e.ID)
	}

	var entities []host.Entity
	for _, id := range stationIDs(coord) {
		data, _ := coord.Station(id)
		for _, field := range data.Observation.Fields() {
			entities = append(entities, NewStationSensor(coord, id, field))
		}
	}
	add(entities...)

	s.subs.add(e.ID, coord.Listen(func() {
		for _, ent := range entities {
			s.host.UpdateEntity(ent.UniqueID())
		}
	}))
	return nil
}

// UnloadEntry releases the entry's subscriptions.
func (s *Sensors) UnloadEntry(ctx context.Context, e *entry.Entry) (bool, error) {
	s.subs.release(e.ID)
	return true, nil
}

// subscriptions tracks per-entry unsubscribe functions.
type subscriptions struct {
	mu      sync.Mutex
	byEntry map[string][]func()
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byEntry: make(map[string][]func())}
}

func (s *subscriptions) add(entryID string, remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEntry[entryID] = append(s.byEntry[entryID], remove)
}

func (s *subscriptions) release(entryID string) {
	s.mu.Lock()
	fns := s.byEntry[entryID]
	delete(s.byEntry, entryID)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
