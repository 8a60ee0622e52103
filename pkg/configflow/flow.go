package configflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tempest-bridge/tempest-go/pkg/discovery"
	"github.com/tempest-bridge/tempest-go/pkg/entry"
)

// DefaultFlowTTL bounds how long an external step waits for its callback.
const DefaultFlowTTL = 10 * time.Minute

// Config configures a Manager.
type Config struct {
	Registry Registry

	// Auth performs the cloud OAuth exchange. Nil disables cloud setup.
	Auth Authorizer

	// Discover probes the LAN. Default: discovery.Discover with a UDP
	// listener on the WeatherFlow port and the default timeout.
	Discover DiscoverFunc

	// FlowTTL is how long a pending cloud flow stays valid.
	FlowTTL time.Duration

	// Logger is used for operational logging. Default slog.Default().
	Logger *slog.Logger
}

// Manager runs config flows.
type Manager struct {
	registry Registry
	auth     Authorizer
	discover DiscoverFunc
	ttl      time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingFlow

	// createMu serializes the single-instance check with entry creation.
	createMu sync.Mutex

	// now is replaceable in tests.
	now func() time.Time
}

type pendingFlow struct {
	verifier string
	created  time.Time
}

// NewManager creates a flow manager.
func NewManager(cfg Config) *Manager {
	if cfg.Discover == nil {
		factory := discovery.NewListenerFactory(discovery.DefaultListenerConfig())
		cfg.Discover = func(ctx context.Context) (bool, error) {
			return discovery.Discover(ctx, factory, discovery.DefaultDiscoveryTimeout)
		}
	}
	if cfg.FlowTTL <= 0 {
		cfg.FlowTTL = DefaultFlowTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		registry: cfg.Registry,
		auth:     cfg.Auth,
		discover: cfg.Discover,
		ttl:      cfg.FlowTTL,
		logger:   cfg.Logger,
		pending:  make(map[string]pendingFlow),
		now:      time.Now,
	}
}

// StepUser handles the user step. A nil input returns the empty form.
func (m *Manager) StepUser(ctx context.Context, input map[string]string) (Result, error) {
	m.logger.Info("config flow: user step", "input", input)

	if input == nil {
		return showForm(nil), nil
	}

	source, ok := input[entry.KeyDataSource]
	if !ok {
		source = defaultDataSourceValue
	}

	switch source {
	case entry.DataSourceCloud:
		return m.stepCloud()
	case entry.DataSourceLocal:
		return m.stepLocal(ctx)
	default:
		return Result{}, fmt.Errorf("%w: %s %q", ErrInvalidInput, entry.KeyDataSource, source)
	}
}

func (m *Manager) stepCloud() (Result, error) {
	if m.hasEntry(entry.ModeCloud) {
		return abort(AbortSingleInstance), nil
	}
	if m.auth == nil {
		return Result{}, ErrNoAuthorizer
	}

	state := uuid.NewString()
	authURL, verifier := m.auth.AuthorizeURL(state)

	m.mu.Lock()
	m.pruneLocked()
	m.pending[state] = pendingFlow{verifier: verifier, created: m.now()}
	m.mu.Unlock()

	m.logger.Info("config flow: waiting for authorization", "flow", state)
	return Result{
		Type:   ResultExternal,
		FlowID: state,
		StepID: StepAuth,
		URL:    authURL,
	}, nil
}

func (m *Manager) stepLocal(ctx context.Context) (Result, error) {
	if m.hasEntry(entry.ModeLocal) {
		return abort(AbortSingleInstance), nil
	}

	found, err := m.discover(ctx)
	switch {
	case errors.Is(err, discovery.ErrListener):
		m.logger.Warn("config flow: local discovery failed", "error", err)
		return showForm(map[string]string{errorBase: ErrorCannotConnect}), nil
	case err != nil:
		return Result{}, err
	case !found:
		m.logger.Warn("config flow: no local devices found")
		return showForm(map[string]string{errorBase: ErrorNoDevicesFound}), nil
	}

	e := entry.New(TitleLocal, map[string]any{
		entry.KeyDataSource: entry.DataSourceLocal,
	})
	return m.create(ctx, e)
}

// ResumeExternal completes a cloud flow with the code returned by the
// provider.
func (m *Manager) ResumeExternal(ctx context.Context, state, code string) (Result, error) {
	m.mu.Lock()
	m.pruneLocked()
	flow, ok := m.pending[state]
	delete(m.pending, state)
	m.mu.Unlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFlow, state)
	}
	if m.hasEntry(entry.ModeCloud) {
		return abort(AbortSingleInstance), nil
	}

	tok, err := m.auth.ResolveExternalData(ctx, code, flow.verifier)
	if err != nil {
		m.logger.Warn("config flow: token exchange failed", "flow", state, "error", err)
		return abort(AbortOAuthFailed), nil
	}
	m.logger.Info("config flow: token exchange complete", "flow", state)

	e := entry.New(TitleCloud, map[string]any{
		entry.KeyAuthImplementation: m.auth.Name(),
		entry.KeyToken:              tok.Map(),
		entry.KeyDataSource:         entry.DataSourceCloud,
	})
	return m.create(ctx, e)
}

// Pending returns the number of cloud flows waiting for a callback.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	return len(m.pending)
}

func (m *Manager) create(ctx context.Context, e *entry.Entry) (Result, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	if m.hasEntry(e.Mode()) {
		m.logger.Info("config flow: entry already configured", "mode", e.Mode())
		return abort(AbortSingleInstance), nil
	}
	if err := m.registry.AddEntry(ctx, e); err != nil {
		if _, ok := m.registry.Entry(e.ID); !ok {
			return Result{}, fmt.Errorf("%w: %w", ErrEntryNotCreated, err)
		}
		m.logger.Warn("config flow: entry created, setup failed", "entry", e.ID, "error", err)
	}
	m.logger.Info("config flow: entry created", "entry", e.ID, "title", e.Title)
	return Result{Type: ResultCreateEntry, Entry: e}, nil
}

func (m *Manager) hasEntry(mode entry.Mode) bool {
	for _, e := range m.registry.Entries() {
		if e.Mode() == mode {
			return true
		}
	}
	return false
}

func (m *Manager) pruneLocked() {
	cutoff := m.now().Add(-m.ttl)
	for state, f := range m.pending {
		if f.created.Before(cutoff) {
			delete(m.pending, state)
		}
	}
}

func showForm(errs map[string]string) Result {
	if errs == nil {
		errs = map[string]string{}
	}
	return Result{
		Type:   ResultForm,
		StepID: StepUser,
		Schema: dataSchema(),
		Errors: errs,
	}
}

func abort(reason string) Result {
	return Result{Type: ResultAbort, Reason: reason}
}
