package entry

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Domain is the integration domain used for entries, device identifiers and
// dispatcher signals.
const Domain = "tempest"

// Entry data keys.
const (
	// KeyDataSource holds the user's mode choice ("local" or "cloud").
	KeyDataSource = "data_source"

	// KeyToken holds the normalized OAuth token. Its presence selects cloud mode.
	KeyToken = "token"

	// KeyAuthImplementation names the OAuth implementation that produced the token.
	KeyAuthImplementation = "auth_implementation"
)

// Data source values for KeyDataSource.
const (
	DataSourceLocal = "local"
	DataSourceCloud = "cloud"
)

// Entry errors.
var (
	ErrNilEntry     = errors.New("entry is nil")
	ErrInvalidToken = errors.New("token is not an object")
)

// State is the load state of an entry.
type State uint8

const (
	// StateNotLoaded is the state of a stored entry that has not been set up.
	StateNotLoaded State = iota

	// StateLoaded means setup succeeded.
	StateLoaded

	// StateSetupRetry means setup reported a transient failure and will be retried.
	StateSetupRetry

	// StateSetupError means setup failed permanently.
	StateSetupError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotLoaded:
		return "not_loaded"
	case StateLoaded:
		return "loaded"
	case StateSetupRetry:
		return "setup_retry"
	case StateSetupError:
		return "setup_error"
	default:
		return "unknown"
	}
}

// Entry is one configured integration instance.
type Entry struct {
	// ID uniquely identifies the entry.
	ID string `json:"entry_id"`

	// Domain is always Domain for entries created by this integration.
	Domain string `json:"domain"`

	// Title is the user-visible name.
	Title string `json:"title"`

	// Data is the persisted configuration.
	Data map[string]any `json:"data"`

	// CreatedAt is when the entry was created.
	CreatedAt time.Time `json:"created_at"`

	// State is the runtime load state. It is not persisted.
	State State `json:"-"`
}

// New creates an entry with a fresh ID.
func New(title string, data map[string]any) *Entry {
	if data == nil {
		data = make(map[string]any)
	}
	return &Entry{
		ID:        uuid.NewString(),
		Domain:    Domain,
		Title:     title,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// Mode returns the entry's mode.
func (e *Entry) Mode() Mode {
	return SelectMode(e.Data)
}
