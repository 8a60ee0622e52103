package host

import (
	"context"
	"sync"

	"github.com/tempest-bridge/tempest-go/pkg/entry"
)

type fakeIntegration struct {
	mu         sync.Mutex
	setupErrs  []error
	setupCalls int
	unloadOK   bool
	unloads    int
	allowRm    bool
	onSetup    func(e *entry.Entry)
}

func (f *fakeIntegration) SetupEntry(ctx context.Context, e *entry.Entry) error {
	f.mu.Lock()
	f.setupCalls++
	var err error
	if len(f.setupErrs) > 0 {
		err = f.setupErrs[0]
		f.setupErrs = f.setupErrs[1:]
	}
	onSetup := f.onSetup
	f.mu.Unlock()

	if onSetup != nil {
		onSetup(e)
	}
	return err
}

func (f *fakeIntegration) UnloadEntry(ctx context.Context, e *entry.Entry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloads++
	return f.unloadOK, nil
}

func (f *fakeIntegration) RemoveConfigEntryDevice(e *entry.Entry, dev *DeviceEntry) bool {
	return f.allowRm
}

func (f *fakeIntegration) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setupCalls
}

type fakeEntity struct {
	uid    string
	name   string
	device DeviceInfo
	value  any
}

func (f *fakeEntity) UniqueID() string   { return f.uid }
func (f *fakeEntity) Name() string       { return f.name }
func (f *fakeEntity) Device() DeviceInfo { return f.device }
func (f *fakeEntity) State() State       { return State{Value: f.value, Available: true} }

type fakePlatform struct {
	entities []Entity
	setupErr error
	unloadOK bool
	setups   int
}

func (f *fakePlatform) SetupEntry(ctx context.Context, e *entry.Entry, add AddEntitiesFunc) error {
	f.setups++
	if f.setupErr != nil {
		return f.setupErr
	}
	add(f.entities...)
	return nil
}

func (f *fakePlatform) UnloadEntry(ctx context.Context, e *entry.Entry) (bool, error) {
	return f.unloadOK, nil
}

type recordingSink struct {
	mu        sync.Mutex
	announced []string
	updated   []string
	retracted []string
}

func (s *recordingSink) Announce(rec EntityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announced = append(s.announced, rec.UniqueID)
	return nil
}

func (s *recordingSink) Update(rec EntityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, rec.UniqueID)
	return nil
}

func (s *recordingSink) Retract(rec EntityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retracted = append(s.retracted, rec.UniqueID)
	return nil
}

func stationDevice(serial string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []Identifier{{Domain: entry.Domain, ID: serial}},
		Name:         "Tempest " + serial,
		Manufacturer: "WeatherFlow",
		Model:        "Tempest",
	}
}
