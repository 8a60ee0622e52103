package configflow

import (
	"context"
	"errors"

	"github.com/tempest-bridge/tempest-go/pkg/entry"
	"github.com/tempest-bridge/tempest-go/pkg/oauth"
)

// Step and entry names.
const (
	StepUser = "user"
	StepAuth = "auth"

	TitleLocal = "Tempest Station (Local)"
	TitleCloud = "Tempest Station (Cloud)"
)

// Form errors and abort reasons.
const (
	ErrorCannotConnect     = "cannot_connect"
	ErrorNoDevicesFound    = "no_devices_found"
	AbortSingleInstance    = "single_instance_allowed"
	AbortOAuthFailed       = "oauth_error"
	errorBase              = "base"
	defaultDataSourceValue = entry.DataSourceLocal
)

// Errors.
var (
	ErrUnknownFlow     = errors.New("unknown or expired flow")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoAuthorizer    = errors.New("cloud authorization not configured")
	ErrEntryNotCreated = errors.New("entry was not created")
)

// ResultType is the kind of step result.
type ResultType string

const (
	ResultForm        ResultType = "form"
	ResultExternal    ResultType = "external"
	ResultCreateEntry ResultType = "create_entry"
	ResultAbort       ResultType = "abort"
)

// Field describes one form input.
type Field struct {
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Default  string   `json:"default,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// Result is the outcome of a flow step.
type Result struct {
	Type   ResultType        `json:"type"`
	FlowID string            `json:"flow_id,omitempty"`
	StepID string            `json:"step_id,omitempty"`
	Schema []Field           `json:"data_schema,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
	Reason string            `json:"reason,omitempty"`
	URL    string            `json:"url,omitempty"`
	Entry  *entry.Entry      `json:"entry,omitempty"`
}

// Registry is where created entries go.
type Registry interface {
	Entries() []*entry.Entry
	Entry(id string) (*entry.Entry, bool)
	AddEntry(ctx context.Context, e *entry.Entry) error
}

// Authorizer runs the OAuth PKCE exchange.
type Authorizer interface {
	Name() string
	AuthorizeURL(state string) (authURL, verifier string)
	ResolveExternalData(ctx context.Context, code, verifier string) (oauth.Token, error)
}

var _ Authorizer = (*oauth.Implementation)(nil)

// DiscoverFunc reports whether a local device answered.
type DiscoverFunc func(ctx context.Context) (bool, error)

func dataSchema() []Field {
	return []Field{{
		Name:     entry.KeyDataSource,
		Required: true,
		Default:  defaultDataSourceValue,
		Options:  []string{entry.DataSourceLocal, entry.DataSourceCloud},
	}}
}
