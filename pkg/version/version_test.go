package version

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    APIVersion
		wantErr bool
	}{
		{"1.0", APIVersion{1, 0}, false},
		{"2.13", APIVersion{2, 13}, false},
		{"1", APIVersion{}, true},
		{"1.0.0", APIVersion{}, true},
		{".1", APIVersion{}, true},
		{"a.b", APIVersion{}, true},
		{"", APIVersion{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	v1, _ := Parse("1.0")
	v11, _ := Parse("1.1")
	v2, _ := Parse("2.0")

	if !v1.Compatible(v11) {
		t.Error("1.0 should be compatible with 1.1")
	}
	if v1.Compatible(v2) {
		t.Error("1.0 should not be compatible with 2.0")
	}
}

func TestCurrentAPIMatchesPrefix(t *testing.T) {
	v := Current()
	if v.String() != API {
		t.Errorf("Current() = %s, want %s", v, API)
	}
	if got := PathPrefix(v.Major); got != "/api/v1" {
		t.Errorf("PathPrefix = %q, want /api/v1", got)
	}
}

func TestUserAgent(t *testing.T) {
	if !strings.HasPrefix(UserAgent(), "tempest-bridge/") {
		t.Errorf("UserAgent = %q", UserAgent())
	}
}
