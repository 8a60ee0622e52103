// Package oauth implements the WeatherFlow OAuth2 authorization-code flow with
// PKCE and normalizes the provider's token response.
//
// The bridge is a public client: it carries a fixed client ID and no secret.
// The provider issues long-lived access tokens without a refresh token, so the
// normalized token reuses the access token as refresh token.
package oauth
