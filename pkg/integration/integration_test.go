package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempest-bridge/tempest-go/pkg/cloud"
	"github.com/tempest-bridge/tempest-go/pkg/discovery"
	"github.com/tempest-bridge/tempest-go/pkg/entry"
	"github.com/tempest-bridge/tempest-go/pkg/host"
)

const (
	hubStatus    = `{"serial_number":"HB-00013030","type":"hub_status","firmware_revision":"177","uptime":1670133,"rssi":-62,"timestamp":1639012234,"seq":48}`
	deviceStatus = `{"serial_number":"ST-00055227","type":"device_status","hub_sn":"HB-00013030","timestamp":1639012237,"uptime":2189,"voltage":2.72,"firmware_revision":171,"rssi":-52,"hub_rssi":-50,"sensor_status":0,"debug":0}`
	obsTempest   = `{"serial_number":"ST-00055227","type":"obs_st","hub_sn":"HB-00013030","obs":[[1639012247,0.18,0.22,0.27,144,6,1017.57,22.37,50.26,328,0.03,3,0.000000,0,0,0,2.410,1]],"firmware_revision":171}`
)

// signalPlatform records devices announced on the add-device signal.
type signalPlatform struct {
	h *host.Host

	mu      sync.Mutex
	serials []string
}

func (p *signalPlatform) SetupEntry(ctx context.Context, e *entry.Entry, add host.AddEntitiesFunc) error {
	p.h.OnUnload(e, p.h.Dispatcher().Connect(SignalAddDevice(e), func(payload any) {
		d := payload.(*discovery.Device)
		p.mu.Lock()
		p.serials = append(p.serials, d.SerialNumber())
		p.mu.Unlock()
	}))
	return nil
}

func (p *signalPlatform) UnloadEntry(ctx context.Context, e *entry.Entry) (bool, error) {
	return true, nil
}

func (p *signalPlatform) announced() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.serials...)
}

type nopPlatform struct{}

func (nopPlatform) SetupEntry(context.Context, *entry.Entry, host.AddEntitiesFunc) error { return nil }
func (nopPlatform) UnloadEntry(context.Context, *entry.Entry) (bool, error)              { return true, nil }

func newHost(t *testing.T) *host.Host {
	t.Helper()
	h := host.New(host.Config{Retry: host.BackoffConfig{Initial: time.Hour}})
	t.Cleanup(func() { h.Stop(context.Background()) })
	return h
}

func loopbackListener() func() LocalSource {
	return func() LocalSource {
		return discovery.NewListener(discovery.ListenerConfig{Address: "127.0.0.1:0"})
	}
}

func localEntry() *entry.Entry {
	return entry.New("Tempest Station (Local)", map[string]any{entry.KeyDataSource: entry.DataSourceLocal})
}

func cloudEntry() *entry.Entry {
	return entry.New("Tempest Station (Cloud)", map[string]any{
		entry.KeyDataSource:         entry.DataSourceCloud,
		entry.KeyAuthImplementation: "tempest",
		entry.KeyToken:              map[string]any{"access_token": "abc"},
	})
}

func TestLocalSetupAnnouncesLoadedDevicesAfterStart(t *testing.T) {
	h := newHost(t)
	sensors := &signalPlatform{h: h}
	h.RegisterPlatform(host.PlatformSensor, sensors)
	integ := New(h, Config{NewListener: loopbackListener()})

	e := localEntry()
	require.NoError(t, h.AddEntry(context.Background(), e))

	state, _ := h.EntryState(e.ID)
	assert.Equal(t, entry.StateLoaded, state)
	assert.Equal(t, []host.Platform{host.PlatformSensor}, h.LoadedPlatforms(e.ID))

	src, ok := integ.Listener(e.ID)
	require.True(t, ok)
	l := src.(*discovery.Listener)
	assert.True(t, l.IsListening())

	l.HandleDatagram([]byte(hubStatus), "test")
	assert.Empty(t, sensors.announced(), "nothing is announced before the host starts")

	h.Start(context.Background())
	assert.Equal(t, []string{"HB-00013030"}, sensors.announced())

	l.HandleDatagram([]byte(deviceStatus), "test")
	assert.Len(t, sensors.announced(), 1, "status alone does not load a sensor")

	l.HandleDatagram([]byte(obsTempest), "test")
	assert.Equal(t, []string{"HB-00013030", "ST-00055227"}, sensors.announced())

	l.HandleDatagram([]byte(obsTempest), "test")
	assert.Len(t, sensors.announced(), 2, "load complete fires once")
}

func TestLocalSetupListenerFailureIsNotReady(t *testing.T) {
	h := newHost(t)
	h.RegisterPlatform(host.PlatformSensor, &signalPlatform{h: h})
	integ := New(h, Config{NewListener: func() LocalSource {
		return discovery.NewListener(discovery.ListenerConfig{Address: "127.0.0.1:99999"})
	}})

	e := localEntry()
	err := h.AddEntry(context.Background(), e)
	assert.ErrorIs(t, err, host.ErrNotReady)
	assert.ErrorIs(t, err, discovery.ErrListener)

	state, _ := h.EntryState(e.ID)
	assert.Equal(t, entry.StateSetupRetry, state)
	assert.Equal(t, 0, integ.Loaded())
	assert.Empty(t, h.LoadedPlatforms(e.ID))
}

func TestLocalUnloadStopsListener(t *testing.T) {
	h := newHost(t)
	h.RegisterPlatform(host.PlatformSensor, &signalPlatform{h: h})
	integ := New(h, Config{NewListener: loopbackListener()})

	e := localEntry()
	require.NoError(t, h.AddEntry(context.Background(), e))
	src, _ := integ.Listener(e.ID)
	l := src.(*discovery.Listener)

	assert.Equal(t, 1, h.Dispatcher().Connected(SignalAddDevice(e)))

	ok, err := h.UnloadEntry(context.Background(), e.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.False(t, l.IsListening())
	assert.Equal(t, 0, integ.Loaded())
	assert.Equal(t, 0, h.Dispatcher().Connected(SignalAddDevice(e)))
}

func TestHostStopStopsListener(t *testing.T) {
	h := host.New(host.Config{})
	h.RegisterPlatform(host.PlatformSensor, &signalPlatform{h: h})
	integ := New(h, Config{NewListener: loopbackListener()})

	e := localEntry()
	require.NoError(t, h.AddEntry(context.Background(), e))
	src, _ := integ.Listener(e.ID)

	h.Stop(context.Background())
	assert.False(t, src.(*discovery.Listener).IsListening())
}

func TestRemoveConfigEntryDevice(t *testing.T) {
	h := newHost(t)
	h.RegisterPlatform(host.PlatformSensor, &signalPlatform{h: h})
	integ := New(h, Config{NewListener: loopbackListener()})

	e := localEntry()
	require.NoError(t, h.AddEntry(context.Background(), e))
	src, _ := integ.Listener(e.ID)
	src.(*discovery.Listener).HandleDatagram([]byte(obsTempest), "test")

	tracked := &host.DeviceEntry{Identifiers: []host.Identifier{{Domain: entry.Domain, ID: "ST-00055227"}}}
	gone := &host.DeviceEntry{Identifiers: []host.Identifier{{Domain: entry.Domain, ID: "ST-00000001"}}}
	foreign := &host.DeviceEntry{Identifiers: []host.Identifier{{Domain: "other", ID: "ST-00055227"}}}

	assert.False(t, integ.RemoveConfigEntryDevice(e, tracked))
	assert.True(t, integ.RemoveConfigEntryDevice(e, gone))
	assert.True(t, integ.RemoveConfigEntryDevice(e, foreign))

	assert.True(t, integ.RemoveConfigEntryDevice(cloudEntry(), tracked))
	assert.True(t, integ.RemoveConfigEntryDevice(localEntry(), tracked), "entry without runtime tracks nothing")
}

func TestCloudSetupWithoutCoordinator(t *testing.T) {
	h := newHost(t)
	New(h, Config{})

	e := cloudEntry()
	err := h.AddEntry(context.Background(), e)
	assert.ErrorIs(t, err, ErrCoordinatorUnavailable)

	state, _ := h.EntryState(e.ID)
	assert.Equal(t, entry.StateSetupError, state)
}

func newCloudAPI(t *testing.T, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/stations", func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"stations":[{"station_id":7,"name":"Roof"}]}`))
	})
	mux.HandleFunc("/observations/station/7", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"obs":[{"timestamp":1700000000,"air_temperature":10}]}`))
	})
	mux.HandleFunc("/better_forecast", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"current_conditions":{"conditions":"Clear","icon":"clear-day"},"forecast":{"daily":[]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCloudSetupAndUnload(t *testing.T) {
	srv := newCloudAPI(t, http.StatusOK)
	h := newHost(t)
	h.RegisterPlatform(host.PlatformSensor, nopPlatform{})
	h.RegisterPlatform(host.PlatformWeather, nopPlatform{})
	integ := New(h, Config{NewCoordinator: cloud.NewFactory(cloud.FactoryConfig{BaseURL: srv.URL})})

	e := cloudEntry()
	require.NoError(t, h.AddEntry(context.Background(), e))
	assert.Equal(t, []host.Platform{host.PlatformSensor, host.PlatformWeather}, h.LoadedPlatforms(e.ID))

	coord, ok := integ.Coordinator(e.ID)
	require.True(t, ok)
	st, ok := coord.Station(7)
	require.True(t, ok)
	assert.Equal(t, "Roof", st.Station.Name)

	_, isLocal := integ.Listener(e.ID)
	assert.False(t, isLocal)

	ok, err := h.UnloadEntry(context.Background(), e.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, integ.Loaded())
	assert.ErrorIs(t, coord.Refresh(context.Background()), cloud.ErrStopped)
}

func TestCloudFirstRefreshFailure(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantState entry.State
		notReady  bool
	}{
		{"server error retries", http.StatusInternalServerError, entry.StateSetupRetry, true},
		{"unauthorized fails", http.StatusUnauthorized, entry.StateSetupError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newCloudAPI(t, tt.status)
			h := newHost(t)
			h.RegisterPlatform(host.PlatformSensor, nopPlatform{})
			h.RegisterPlatform(host.PlatformWeather, nopPlatform{})
			integ := New(h, Config{NewCoordinator: cloud.NewFactory(cloud.FactoryConfig{BaseURL: srv.URL})})

			e := cloudEntry()
			err := h.AddEntry(context.Background(), e)
			require.Error(t, err)
			assert.Equal(t, tt.notReady, errorsIsNotReady(err))

			state, _ := h.EntryState(e.ID)
			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, 0, integ.Loaded())
		})
	}
}

func TestRuntimeVariant(t *testing.T) {
	srv := newCloudAPI(t, http.StatusOK)
	h := newHost(t)
	h.RegisterPlatform(host.PlatformSensor, nopPlatform{})
	h.RegisterPlatform(host.PlatformWeather, nopPlatform{})
	integ := New(h, Config{
		NewListener:    loopbackListener(),
		NewCoordinator: cloud.NewFactory(cloud.FactoryConfig{BaseURL: srv.URL}),
	})

	local, cl := localEntry(), cloudEntry()
	require.NoError(t, h.AddEntry(context.Background(), local))
	require.NoError(t, h.AddEntry(context.Background(), cl))

	mode, ok := integ.RuntimeMode(local.ID)
	require.True(t, ok)
	assert.Equal(t, entry.ModeLocal, mode)
	assert.Equal(t, LocalPlatforms, integ.Platforms(local.ID))

	mode, ok = integ.RuntimeMode(cl.ID)
	require.True(t, ok)
	assert.Equal(t, entry.ModeCloud, mode)
	assert.Equal(t, CloudPlatforms, integ.Platforms(cl.ID))

	_, ok = integ.RuntimeMode("missing")
	assert.False(t, ok)
	assert.Nil(t, integ.Platforms("missing"))
}

func TestUnloadAndRemovalIgnoreDataChangesAfterSetup(t *testing.T) {
	h := newHost(t)
	h.RegisterPlatform(host.PlatformSensor, &signalPlatform{h: h})
	integ := New(h, Config{NewListener: loopbackListener()})

	e := localEntry()
	require.NoError(t, h.AddEntry(context.Background(), e))
	src, _ := integ.Listener(e.ID)
	l := src.(*discovery.Listener)
	l.HandleDatagram([]byte(obsTempest), "test")

	e.Data[entry.KeyToken] = map[string]any{"access_token": "abc"}
	require.Equal(t, entry.ModeCloud, e.Mode())

	mode, ok := integ.RuntimeMode(e.ID)
	require.True(t, ok)
	assert.Equal(t, entry.ModeLocal, mode)

	tracked := &host.DeviceEntry{Identifiers: []host.Identifier{{Domain: entry.Domain, ID: "ST-00055227"}}}
	assert.False(t, integ.RemoveConfigEntryDevice(e, tracked))

	ok, err := h.UnloadEntry(context.Background(), e.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, h.LoadedPlatforms(e.ID))
	assert.False(t, l.IsListening())
}

// eagerListener loads a hub while its socket is being bound.
type eagerListener struct {
	*discovery.Listener
}

func (l eagerListener) Start(ctx context.Context) error {
	if err := l.Listener.Start(ctx); err != nil {
		return err
	}
	l.HandleDatagram([]byte(hubStatus), "test")
	return nil
}

func TestDeviceLoadedDuringStartIsAnnounced(t *testing.T) {
	h := newHost(t)
	h.Start(context.Background())
	sensors := &signalPlatform{h: h}
	h.RegisterPlatform(host.PlatformSensor, sensors)
	New(h, Config{NewListener: func() LocalSource {
		return eagerListener{discovery.NewListener(discovery.ListenerConfig{Address: "127.0.0.1:0"})}
	}})

	require.NoError(t, h.AddEntry(context.Background(), localEntry()))
	assert.Equal(t, []string{"HB-00013030"}, sensors.announced())
}

func TestLocalSetupFailureUnloadsPlatforms(t *testing.T) {
	h := newHost(t)
	sensors := &signalPlatform{h: h}
	h.RegisterPlatform(host.PlatformSensor, sensors)
	New(h, Config{NewListener: func() LocalSource {
		return discovery.NewListener(discovery.ListenerConfig{Address: "127.0.0.1:99999"})
	}})

	e := localEntry()
	require.Error(t, h.AddEntry(context.Background(), e))
	assert.Empty(t, h.LoadedPlatforms(e.ID))
	assert.Equal(t, 0, h.Dispatcher().Connected(SignalAddDevice(e)))
}

func errorsIsNotReady(err error) bool {
	return errors.Is(err, host.ErrNotReady)
}
