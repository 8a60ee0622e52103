package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tempest-bridge/tempest-go/pkg/entry"
	"github.com/tempest-bridge/tempest-go/pkg/persistence"
)

// Config configures a Host.
type Config struct {
	// Logger is used for operational logging. Default slog.Default().
	Logger *slog.Logger

	// Sink receives entity events. Default NopSink.
	Sink EntitySink

	// Store persists entries added or removed through the host. Optional.
	Store *persistence.EntryStore

	// Retry configures setup retries for entries that are not ready.
	Retry BackoffConfig
}

// Host owns entries and their runtime state.
type Host struct {
	logger     *slog.Logger
	sink       EntitySink
	store      *persistence.EntryStore
	retryCfg   BackoffConfig
	dispatcher *Dispatcher

	mu          sync.Mutex
	integration Integration
	platforms   map[Platform]PlatformHandler
	entries     map[string]*entry.Entry
	unloads     map[string][]func()
	loaded      map[string]map[Platform]bool
	retries     map[string]*retryState
	entities    map[string]*registeredEntity
	devices     map[string]*DeviceEntry

	started    bool
	stopped    bool
	baseCtx    context.Context
	startHooks map[uint64]func()
	stopHooks  map[uint64]func()
	nextHook   uint64
}

type retryState struct {
	backoff *Backoff
	timer   *time.Timer
}

// New creates a host.
func New(cfg Config) *Host {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Retry == (BackoffConfig{}) {
		cfg.Retry = DefaultBackoffConfig()
	}

	return &Host{
		logger:     cfg.Logger,
		sink:       cfg.Sink,
		store:      cfg.Store,
		retryCfg:   cfg.Retry,
		dispatcher: NewDispatcher(),
		platforms:  make(map[Platform]PlatformHandler),
		entries:    make(map[string]*entry.Entry),
		unloads:    make(map[string][]func()),
		loaded:     make(map[string]map[Platform]bool),
		retries:    make(map[string]*retryState),
		entities:   make(map[string]*registeredEntity),
		devices:    make(map[string]*DeviceEntry),
		baseCtx:    context.Background(),
		startHooks: make(map[uint64]func()),
		stopHooks:  make(map[uint64]func()),
	}
}

// SetIntegration installs the integration that sets entries up.
func (h *Host) SetIntegration(i Integration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.integration = i
}

// RegisterPlatform installs the handler for a platform.
func (h *Host) RegisterPlatform(p Platform, handler PlatformHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.platforms[p] = handler
}

// Dispatcher returns the host's signal dispatcher.
func (h *Host) Dispatcher() *Dispatcher { return h.dispatcher }

// Logger returns the host logger.
func (h *Host) Logger() *slog.Logger { return h.logger }

// --- Start / stop hooks ---

// Start marks the host as running and fires AtStarted callbacks. The context
// is used for setup retries scheduled afterwards.
func (h *Host) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.baseCtx = ctx
	hooks := sortedHooks(h.startHooks)
	clear(h.startHooks)
	h.mu.Unlock()

	h.logger.Info("host: started", "entries", len(h.Entries()))
	for _, fn := range hooks {
		fn()
	}
}

// Started reports whether Start has been called.
func (h *Host) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// AtStarted runs fn once the host has started: immediately if it already
// has, otherwise from Start. The returned function cancels a pending call.
func (h *Host) AtStarted(fn func()) func() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		fn()
		return func() {}
	}
	id := h.nextHook
	h.nextHook++
	h.startHooks[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.startHooks, id)
		h.mu.Unlock()
	}
}

// OnStop registers fn to run when the host stops. The returned function
// removes it.
func (h *Host) OnStop(fn func()) func() {
	h.mu.Lock()
	id := h.nextHook
	h.nextHook++
	h.stopHooks[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.stopHooks, id)
		h.mu.Unlock()
	}
}

// Stop cancels pending retries and fires OnStop callbacks. Entries stay
// registered; their runtime is expected to be released by the callbacks.
func (h *Host) Stop(ctx context.Context) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	for id, r := range h.retries {
		r.timer.Stop()
		delete(h.retries, id)
	}
	hooks := sortedHooks(h.stopHooks)
	clear(h.stopHooks)
	h.mu.Unlock()

	h.logger.Info("host: stopping", "hooks", len(hooks))
	for _, fn := range hooks {
		if ctx.Err() != nil {
			h.logger.Warn("host: stop interrupted", "error", ctx.Err())
			return
		}
		fn()
	}
}

func sortedHooks(m map[uint64]func()) []func() {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m[id])
	}
	return fns
}

// --- Entries ---

// AddEntry registers a new entry, persists it and sets it up. A setup
// failure does not remove the entry.
func (h *Host) AddEntry(ctx context.Context, e *entry.Entry) error {
	if e == nil {
		return entry.ErrNilEntry
	}

	h.mu.Lock()
	if _, ok := h.entries[e.ID]; ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryExists, e.ID)
	}
	h.entries[e.ID] = e
	h.mu.Unlock()

	if h.store != nil {
		if err := h.store.Save(e); err != nil {
			return fmt.Errorf("persist entry: %w", err)
		}
	}

	h.logger.Info("host: entry added", "entry", e.ID, "title", e.Title, "mode", e.Mode())
	return h.SetupEntry(ctx, e.ID)
}

// LoadEntries registers entries restored from storage and sets each up.
// Setup failures are logged; the entries keep their failure state.
func (h *Host) LoadEntries(ctx context.Context, entries []*entry.Entry) {
	for _, e := range entries {
		h.mu.Lock()
		h.entries[e.ID] = e
		h.mu.Unlock()

		if err := h.SetupEntry(ctx, e.ID); err != nil {
			h.logger.Warn("host: entry setup failed", "entry", e.ID, "error", err)
		}
	}
}

// Entries returns the registered entries ordered by creation time.
func (h *Host) Entries() []*entry.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := make([]*entry.Entry, 0, len(h.entries))
	for _, e := range h.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// Entry returns a registered entry.
func (h *Host) Entry(id string) (*entry.Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[id]
	return e, ok
}

// EntryState returns the load state of an entry.
func (h *Host) EntryState(id string) (entry.State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[id]
	if !ok {
		return entry.StateNotLoaded, false
	}
	return e.State, true
}

// EntriesByMode returns the entries of one mode.
func (h *Host) EntriesByMode(m entry.Mode) []*entry.Entry {
	var out []*entry.Entry
	for _, e := range h.Entries() {
		if e.Mode() == m {
			out = append(out, e)
		}
	}
	return out
}

// OnUnload registers fn to run when the entry is unloaded or its setup
// fails.
func (h *Host) OnUnload(e *entry.Entry, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unloads[e.ID] = append(h.unloads[e.ID], fn)
}

// SetupEntry runs the integration's setup for a registered entry.
//
// ErrNotReady moves the entry to setup_retry and schedules another attempt
// with exponential backoff. Any other error moves it to setup_error.
func (h *Host) SetupEntry(ctx context.Context, id string) error {
	h.mu.Lock()
	e, ok := h.entries[id]
	integ := h.integration
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if e.State == entry.StateLoaded {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	if integ == nil {
		return ErrNoIntegration
	}

	err := integ.SetupEntry(ctx, e)
	if err == nil {
		h.mu.Lock()
		e.State = entry.StateLoaded
		if r, ok := h.retries[id]; ok {
			r.timer.Stop()
			delete(h.retries, id)
		}
		h.mu.Unlock()
		h.logger.Info("host: entry loaded", "entry", id, "title", e.Title)
		return nil
	}

	h.runUnloadCallbacks(id)

	if errors.Is(err, ErrNotReady) {
		delay := h.scheduleRetry(id)
		h.logger.Warn("host: entry not ready, retrying", "entry", id, "in", delay, "error", err)
		return err
	}

	h.mu.Lock()
	e.State = entry.StateSetupError
	h.mu.Unlock()
	h.logger.Error("host: entry setup failed", "entry", id, "error", err)
	return err
}

func (h *Host) scheduleRetry(id string) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[id]
	if !ok {
		return 0
	}
	e.State = entry.StateSetupRetry
	if h.stopped {
		return 0
	}

	r, ok := h.retries[id]
	if !ok {
		r = &retryState{backoff: NewBackoff(h.retryCfg)}
		h.retries[id] = r
	} else {
		r.timer.Stop()
	}

	delay := r.backoff.Next()
	ctx := h.baseCtx
	r.timer = time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		h.mu.Lock()
		cur, ok := h.retries[id]
		h.mu.Unlock()
		if !ok || cur != r {
			return
		}
		_ = h.SetupEntry(ctx, id)
	})
	return delay
}

// RetryAttempts returns how many setup retries have been scheduled for the
// entry since it last loaded.
func (h *Host) RetryAttempts(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.retries[id]
	if !ok {
		return 0
	}
	return r.backoff.Attempts()
}

func (h *Host) cancelRetry(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.retries[id]
	if !ok {
		return false
	}
	r.timer.Stop()
	delete(h.retries, id)
	return true
}

func (h *Host) runUnloadCallbacks(id string) {
	h.mu.Lock()
	fns := h.unloads[id]
	delete(h.unloads, id)
	h.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// UnloadEntry unloads an entry. It returns false if the integration refused.
func (h *Host) UnloadEntry(ctx context.Context, id string) (bool, error) {
	h.mu.Lock()
	e, ok := h.entries[id]
	integ := h.integration
	h.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}

	h.cancelRetry(id)

	h.mu.Lock()
	state := e.State
	h.mu.Unlock()

	if state != entry.StateLoaded {
		h.mu.Lock()
		e.State = entry.StateNotLoaded
		h.mu.Unlock()
		return true, nil
	}

	if integ == nil {
		return false, ErrNoIntegration
	}

	unloaded, err := integ.UnloadEntry(ctx, e)
	if err != nil {
		return false, err
	}
	if !unloaded {
		h.logger.Warn("host: entry unload refused", "entry", id)
		return false, nil
	}

	h.runUnloadCallbacks(id)

	h.mu.Lock()
	e.State = entry.StateNotLoaded
	h.mu.Unlock()

	h.logger.Info("host: entry unloaded", "entry", id)
	return true, nil
}

// ReloadEntry unloads and sets up an entry again.
func (h *Host) ReloadEntry(ctx context.Context, id string) error {
	ok, err := h.UnloadEntry(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reload %s: unload refused", id)
	}
	return h.SetupEntry(ctx, id)
}

// RemoveEntry unloads an entry, detaches it from its devices and deletes it
// from storage.
func (h *Host) RemoveEntry(ctx context.Context, id string) error {
	ok, err := h.UnloadEntry(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("remove %s: unload refused", id)
	}

	h.mu.Lock()
	delete(h.entries, id)
	delete(h.loaded, id)
	for devID, dev := range h.devices {
		dev.ConfigEntries = removeString(dev.ConfigEntries, id)
		if len(dev.ConfigEntries) == 0 {
			delete(h.devices, devID)
		}
	}
	h.mu.Unlock()

	h.retractEntities(func(r *registeredEntity) bool { return r.entryID == id })

	if h.store != nil {
		if err := h.store.Delete(id); err != nil && !errors.Is(err, persistence.ErrEntryNotFound) {
			return fmt.Errorf("delete entry: %w", err)
		}
	}

	h.logger.Info("host: entry removed", "entry", id)
	return nil
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
