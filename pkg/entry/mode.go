package entry

import "fmt"

// Mode is the operating mode of an entry.
type Mode uint8

const (
	// ModeLocal discovers stations through UDP broadcasts.
	ModeLocal Mode = iota

	// ModeCloud reads stations from the REST API.
	ModeCloud
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "LOCAL"
	case ModeCloud:
		return "CLOUD"
	default:
		return "UNKNOWN"
	}
}

// SelectMode returns ModeCloud if data carries a token and ModeLocal otherwise.
func SelectMode(data map[string]any) Mode {
	if _, ok := data[KeyToken]; ok {
		return ModeCloud
	}
	return ModeLocal
}

// Setup is the mode-specific setup payload of an entry.
// It is either LocalSetup or CloudSetup.
type Setup interface {
	Mode() Mode
	isSetup()
}

// LocalSetup is the payload of a local-mode entry.
type LocalSetup struct{}

// Mode returns ModeLocal.
func (LocalSetup) Mode() Mode { return ModeLocal }
func (LocalSetup) isSetup()   {}

// CloudSetup is the payload of a cloud-mode entry.
type CloudSetup struct {
	// Token is the stored token object as persisted in the entry.
	Token map[string]any

	// AuthImplementation names the OAuth implementation, if recorded.
	AuthImplementation string
}

// Mode returns ModeCloud.
func (CloudSetup) Mode() Mode { return ModeCloud }
func (CloudSetup) isSetup()   {}

// Resolve converts an entry into its Setup variant.
func Resolve(e *Entry) (Setup, error) {
	if e == nil {
		return nil, ErrNilEntry
	}

	switch SelectMode(e.Data) {
	case ModeCloud:
		token, ok := e.Data[KeyToken].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("entry %s: %w", e.ID, ErrInvalidToken)
		}
		impl, _ := e.Data[KeyAuthImplementation].(string)
		return CloudSetup{Token: token, AuthImplementation: impl}, nil
	default:
		return LocalSetup{}, nil
	}
}
