package oauth

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// Token defaults applied by NormalizeToken.
const (
	DefaultExpiresIn = 3600
	DefaultTokenType = "Bearer"
)

// Token is the normalized token stored in a cloud entry.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// NormalizeToken maps a raw token response onto Token.
//
// The refresh token is always set to the access token: the provider does not
// issue refresh tokens, and the host's token handling expects one. A null,
// empty or unparsable expires_in or token_type gets the default, as an
// absent one does.
func NormalizeToken(raw map[string]any) Token {
	access := stringField(raw["access_token"])

	tokenType := stringField(raw["token_type"])
	if tokenType == "" {
		tokenType = DefaultTokenType
	}

	expiresIn, ok := intField(raw["expires_in"])
	if !ok {
		expiresIn = DefaultExpiresIn
	}

	return Token{
		AccessToken:  access,
		RefreshToken: access,
		ExpiresIn:    expiresIn,
		TokenType:    tokenType,
	}
}

// Map returns the token as a generic map, the shape stored in entry data.
func (t Token) Map() map[string]any {
	return map[string]any{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"expires_in":    t.ExpiresIn,
		"token_type":    t.TokenType,
	}
}

// OAuth2 converts the token for use with an oauth2 token source.
func (t Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}
}

// rawFromToken rebuilds the provider response from an exchanged token.
func rawFromToken(tok *oauth2.Token) map[string]any {
	raw := map[string]any{
		"access_token": tok.AccessToken,
	}
	if tok.RefreshToken != "" {
		raw["refresh_token"] = tok.RefreshToken
	}
	if tok.TokenType != "" {
		raw["token_type"] = tok.TokenType
	}
	if v := tok.Extra("expires_in"); v != nil {
		raw["expires_in"] = v
	}
	return raw
}

func stringField(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

func intField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, true
		}
	}
	return 0, false
}
