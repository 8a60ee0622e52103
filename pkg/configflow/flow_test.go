package configflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempest-bridge/tempest-go/pkg/discovery"
	"github.com/tempest-bridge/tempest-go/pkg/entry"
	"github.com/tempest-bridge/tempest-go/pkg/oauth"
)

type memRegistry struct {
	mu       sync.Mutex
	entries  []*entry.Entry
	addErr   error
	register bool
}

func (r *memRegistry) Entries() []*entry.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entry.Entry(nil), r.entries...)
}

func (r *memRegistry) Entry(id string) (*entry.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

func (r *memRegistry) AddEntry(ctx context.Context, e *entry.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addErr != nil && !r.register {
		return r.addErr
	}
	r.entries = append(r.entries, e)
	return r.addErr
}

type fakeAuth struct {
	verifiers map[string]string
	token     oauth.Token
	err       error
	gotCode   string
	gotVerif  string
}

func (f *fakeAuth) Name() string { return oauth.ImplementationName }

func (f *fakeAuth) AuthorizeURL(state string) (string, string) {
	v := "verifier-" + state
	if f.verifiers == nil {
		f.verifiers = map[string]string{}
	}
	f.verifiers[state] = v
	return "https://auth.example/authorize?state=" + state, v
}

func (f *fakeAuth) ResolveExternalData(ctx context.Context, code, verifier string) (oauth.Token, error) {
	f.gotCode = code
	f.gotVerif = verifier
	return f.token, f.err
}

func discoverResult(found bool, err error) DiscoverFunc {
	return func(context.Context) (bool, error) { return found, err }
}

func localData() map[string]any {
	return map[string]any{entry.KeyDataSource: entry.DataSourceLocal}
}

func cloudData() map[string]any {
	return map[string]any{entry.KeyToken: map[string]any{"access_token": "x"}}
}

func TestStepUserShowsForm(t *testing.T) {
	m := NewManager(Config{Registry: &memRegistry{}, Discover: discoverResult(true, nil)})

	res, err := m.StepUser(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ResultForm, res.Type)
	assert.Equal(t, StepUser, res.StepID)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Schema, 1)
	assert.Equal(t, entry.KeyDataSource, res.Schema[0].Name)
	assert.Equal(t, entry.DataSourceLocal, res.Schema[0].Default)
	assert.Equal(t, []string{"local", "cloud"}, res.Schema[0].Options)
}

func TestStepUserLocal(t *testing.T) {
	tests := []struct {
		name      string
		existing  []map[string]any
		found     bool
		err       error
		wantType  ResultType
		wantError string
		wantAbort string
	}{
		{name: "device found", found: true, wantType: ResultCreateEntry},
		{name: "no device", found: false, wantType: ResultForm, wantError: ErrorNoDevicesFound},
		{name: "listener failure", err: fmt.Errorf("%w: bind", discovery.ErrListener), wantType: ResultForm, wantError: ErrorCannotConnect},
		{name: "duplicate local", existing: []map[string]any{localData()}, found: true, wantType: ResultAbort, wantAbort: AbortSingleInstance},
		{name: "cloud entry does not block local", existing: []map[string]any{cloudData()}, found: true, wantType: ResultCreateEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &memRegistry{}
			for _, d := range tt.existing {
				reg.entries = append(reg.entries, entry.New("existing", d))
			}
			m := NewManager(Config{Registry: reg, Discover: discoverResult(tt.found, tt.err)})

			res, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceLocal})
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, res.Type)
			assert.Equal(t, tt.wantAbort, res.Reason)

			if tt.wantError != "" {
				assert.Equal(t, map[string]string{"base": tt.wantError}, res.Errors)
			}
			if tt.wantType == ResultCreateEntry {
				require.NotNil(t, res.Entry)
				assert.Equal(t, TitleLocal, res.Entry.Title)
				assert.Equal(t, localData(), res.Entry.Data)
				assert.Equal(t, entry.ModeLocal, res.Entry.Mode())
				_, ok := reg.Entry(res.Entry.ID)
				assert.True(t, ok)
			}
		})
	}
}

func TestStepUserLocalPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	m := NewManager(Config{Registry: &memRegistry{}, Discover: discoverResult(false, boom)})

	_, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceLocal})
	assert.ErrorIs(t, err, boom)
}

func TestStepUserDefaultsToLocal(t *testing.T) {
	m := NewManager(Config{Registry: &memRegistry{}, Discover: discoverResult(true, nil)})

	res, err := m.StepUser(context.Background(), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, ResultCreateEntry, res.Type)
	assert.Equal(t, TitleLocal, res.Entry.Title)
}

func TestStepUserInvalidSource(t *testing.T) {
	m := NewManager(Config{Registry: &memRegistry{}, Discover: discoverResult(true, nil)})

	_, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: "satellite"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCloudFlow(t *testing.T) {
	reg := &memRegistry{}
	auth := &fakeAuth{token: oauth.NormalizeToken(map[string]any{"access_token": "abc"})}
	m := NewManager(Config{Registry: reg, Auth: auth})

	res, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceCloud})
	require.NoError(t, err)
	assert.Equal(t, ResultExternal, res.Type)
	assert.Equal(t, StepAuth, res.StepID)
	assert.Contains(t, res.URL, res.FlowID)
	assert.Equal(t, 1, m.Pending())

	flowID := res.FlowID
	res, err = m.ResumeExternal(context.Background(), flowID, "the-code")
	require.NoError(t, err)
	require.Equal(t, ResultCreateEntry, res.Type)
	assert.Equal(t, 0, m.Pending())

	assert.Equal(t, "the-code", auth.gotCode)
	assert.Equal(t, "verifier-"+flowID, auth.gotVerif)

	e := res.Entry
	assert.Equal(t, TitleCloud, e.Title)
	assert.Equal(t, entry.ModeCloud, e.Mode())
	assert.Equal(t, entry.DataSourceCloud, e.Data[entry.KeyDataSource])
	assert.Equal(t, oauth.ImplementationName, e.Data[entry.KeyAuthImplementation])

	setup, err := entry.Resolve(e)
	require.NoError(t, err)
	cs := setup.(entry.CloudSetup)
	assert.Equal(t, "abc", cs.Token["access_token"])
	assert.Equal(t, "abc", cs.Token["refresh_token"])
	assert.Equal(t, 3600, cs.Token["expires_in"])
	assert.Equal(t, "Bearer", cs.Token["token_type"])
}

func TestCloudFlowSingleInstance(t *testing.T) {
	reg := &memRegistry{entries: []*entry.Entry{entry.New("existing", cloudData())}}
	m := NewManager(Config{Registry: reg, Auth: &fakeAuth{}})

	res, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceCloud})
	require.NoError(t, err)
	assert.Equal(t, ResultAbort, res.Type)
	assert.Equal(t, AbortSingleInstance, res.Reason)
	assert.Equal(t, 0, m.Pending())
}

func TestCloudFlowLocalEntryDoesNotBlockCloud(t *testing.T) {
	reg := &memRegistry{entries: []*entry.Entry{entry.New("existing", localData())}}
	m := NewManager(Config{Registry: reg, Auth: &fakeAuth{}})

	res, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceCloud})
	require.NoError(t, err)
	assert.Equal(t, ResultExternal, res.Type)
}

func TestCloudFlowWithoutAuthorizer(t *testing.T) {
	m := NewManager(Config{Registry: &memRegistry{}})

	_, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceCloud})
	assert.ErrorIs(t, err, ErrNoAuthorizer)
}

func TestResumeExternalUnknownFlow(t *testing.T) {
	m := NewManager(Config{Registry: &memRegistry{}, Auth: &fakeAuth{}})

	_, err := m.ResumeExternal(context.Background(), "nope", "code")
	assert.ErrorIs(t, err, ErrUnknownFlow)
}

func TestResumeExternalExpiredFlow(t *testing.T) {
	m := NewManager(Config{Registry: &memRegistry{}, Auth: &fakeAuth{}, FlowTTL: time.Minute})
	start := time.Now()
	m.now = func() time.Time { return start }

	res, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceCloud})
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = m.ResumeExternal(context.Background(), res.FlowID, "code")
	assert.ErrorIs(t, err, ErrUnknownFlow)
}

func TestResumeExternalExchangeFailure(t *testing.T) {
	reg := &memRegistry{}
	m := NewManager(Config{Registry: reg, Auth: &fakeAuth{err: oauth.ErrExchangeFailed}})

	res, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceCloud})
	require.NoError(t, err)

	res, err = m.ResumeExternal(context.Background(), res.FlowID, "code")
	require.NoError(t, err)
	assert.Equal(t, ResultAbort, res.Type)
	assert.Equal(t, AbortOAuthFailed, res.Reason)
	assert.Empty(t, reg.Entries())
}

func TestResumeExternalWithTokenEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"live-token"}`))
	}))
	defer srv.Close()

	reg := &memRegistry{}
	impl := oauth.NewImplementation(oauth.Config{TokenURL: srv.URL, HTTPClient: srv.Client()})
	m := NewManager(Config{Registry: reg, Auth: impl})

	res, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceCloud})
	require.NoError(t, err)

	res, err = m.ResumeExternal(context.Background(), res.FlowID, "code")
	require.NoError(t, err)
	require.Equal(t, ResultCreateEntry, res.Type)

	tok := oauth.NormalizeToken(res.Entry.Data[entry.KeyToken].(map[string]any))
	assert.Equal(t, "live-token", tok.AccessToken)
	assert.Equal(t, "live-token", tok.RefreshToken)
}

func TestCreateKeepsEntryWhenSetupFails(t *testing.T) {
	reg := &memRegistry{addErr: errors.New("not ready"), register: true}
	m := NewManager(Config{Registry: reg, Discover: discoverResult(true, nil)})

	res, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceLocal})
	require.NoError(t, err)
	assert.Equal(t, ResultCreateEntry, res.Type)
}

func TestCreateFailsWhenEntryNotRegistered(t *testing.T) {
	reg := &memRegistry{addErr: errors.New("disk full")}
	m := NewManager(Config{Registry: reg, Discover: discoverResult(true, nil)})

	_, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceLocal})
	assert.ErrorIs(t, err, ErrEntryNotCreated)
}

type slowAuth struct {
	delay time.Duration
}

func (a slowAuth) Name() string { return oauth.ImplementationName }

func (a slowAuth) AuthorizeURL(state string) (string, string) {
	return "https://auth.example/authorize?state=" + state, "verifier-" + state
}

func (a slowAuth) ResolveExternalData(ctx context.Context, code, verifier string) (oauth.Token, error) {
	time.Sleep(a.delay)
	return oauth.NormalizeToken(map[string]any{"access_token": code}), nil
}

func countMode(reg *memRegistry, mode entry.Mode) int {
	n := 0
	for _, e := range reg.Entries() {
		if e.Mode() == mode {
			n++
		}
	}
	return n
}

func TestConcurrentCloudCallbacksCreateOneEntry(t *testing.T) {
	reg := &memRegistry{}
	m := NewManager(Config{Registry: reg, Auth: slowAuth{delay: 50 * time.Millisecond}})

	var flows []string
	for range 2 {
		res, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceCloud})
		require.NoError(t, err)
		require.Equal(t, ResultExternal, res.Type)
		flows = append(flows, res.FlowID)
	}

	results := make([]Result, len(flows))
	var wg sync.WaitGroup
	for i, flowID := range flows {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.ResumeExternal(context.Background(), flowID, "code")
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	var created, aborted int
	for _, res := range results {
		switch res.Type {
		case ResultCreateEntry:
			created++
		case ResultAbort:
			assert.Equal(t, AbortSingleInstance, res.Reason)
			aborted++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, aborted)
	assert.Equal(t, 1, countMode(reg, entry.ModeCloud))
}

func TestConcurrentLocalSetupCreatesOneEntry(t *testing.T) {
	reg := &memRegistry{}
	discover := func(context.Context) (bool, error) {
		time.Sleep(20 * time.Millisecond)
		return true, nil
	}
	m := NewManager(Config{Registry: reg, Discover: discover})

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.StepUser(context.Background(), map[string]string{entry.KeyDataSource: entry.DataSourceLocal})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, countMode(reg, entry.ModeLocal))
}
