package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Fixed client identity and endpoints.
const (
	ClientID     = "9a14f12b-15f6-4843-b7b4-07e5418a3888"
	AuthorizeURL = "https://tempestwx.com/authorize.html"
	TokenURL     = "https://swd.weatherflow.com/id/oauth2/token"

	// ImplementationName is recorded in entries created through this flow.
	ImplementationName = "tempest"
)

// Errors.
var (
	ErrMissingCode     = errors.New("authorization code missing")
	ErrMissingVerifier = errors.New("pkce verifier missing")
	ErrExchangeFailed  = errors.New("token exchange failed")
)

// Config configures an Implementation. Empty fields take the fixed defaults.
type Config struct {
	ClientID     string
	AuthorizeURL string
	TokenURL     string
	RedirectURL  string

	// HTTPClient is used for the token exchange. Default http.DefaultClient.
	HTTPClient *http.Client
}

// Implementation performs the PKCE authorization-code flow.
type Implementation struct {
	config     oauth2.Config
	httpClient *http.Client
}

// NewImplementation creates an Implementation.
func NewImplementation(cfg Config) *Implementation {
	if cfg.ClientID == "" {
		cfg.ClientID = ClientID
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = AuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = TokenURL
	}

	return &Implementation{
		config: oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: cfg.HTTPClient,
	}
}

// Name returns the implementation name stored with tokens.
func (i *Implementation) Name() string { return ImplementationName }

// ClientID returns the OAuth client ID.
func (i *Implementation) ClientID() string { return i.config.ClientID }

// AuthorizeURL returns the URL the user must visit and the PKCE verifier
// that must be presented when the code comes back.
func (i *Implementation) AuthorizeURL(state string) (authURL, verifier string) {
	verifier = oauth2.GenerateVerifier()
	authURL = i.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	return authURL, verifier
}

// ResolveExternalData exchanges the authorization code and returns the
// normalized token.
func (i *Implementation) ResolveExternalData(ctx context.Context, code, verifier string) (Token, error) {
	if code == "" {
		return Token{}, ErrMissingCode
	}
	if verifier == "" {
		return Token{}, ErrMissingVerifier
	}

	if i.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, i.httpClient)
	}

	tok, err := i.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	return NormalizeToken(rawFromToken(tok)), nil
}

// Client returns an HTTP client that authenticates requests with tok.
func Client(ctx context.Context, tok Token) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok.OAuth2()))
}
