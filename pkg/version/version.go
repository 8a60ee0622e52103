// Package version carries the bridge build version and HTTP API version helpers.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the bridge release. It is overridden at link time with
// -ldflags "-X github.com/tempest-bridge/tempest-go/pkg/version.Version=...".
var Version = "dev"

// API is the HTTP API version served under /api/v1.
const API = "1.0"

// APIVersion represents a parsed "major.minor" API version.
type APIVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (APIVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return APIVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return APIVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return APIVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return APIVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v APIVersion) Compatible(other APIVersion) bool {
	return v.Major == other.Major
}

// Current returns the parsed API version.
func Current() APIVersion {
	v, err := Parse(API)
	if err != nil {
		panic(err)
	}
	return v
}

// PathPrefix returns the URL prefix for a major API version: "/api/vN".
func PathPrefix(major uint16) string {
	return fmt.Sprintf("/api/v%d", major)
}

// UserAgent is sent with outgoing cloud requests.
func UserAgent() string {
	return "tempest-bridge/" + Version
}
