package types

import "fmt"

// DeviceLinkState is the pairing status of the external RTK receiver.
// It is owned by the host application; the engine only reads it.
type DeviceLinkState string

func (s DeviceLinkState) String() string {
	return string(s)
}

const (
	LinkUnlinked DeviceLinkState = "UNLINKED"
	LinkOnline   DeviceLinkState = "ONLINE"
	LinkOffline  DeviceLinkState = "OFFLINE"
)

// ParseDeviceLinkState parses the wire form of a link state.
func ParseDeviceLinkState(s string) (DeviceLinkState, error) {
	switch st := DeviceLinkState(s); st {
	case LinkUnlinked, LinkOnline, LinkOffline:
		return st, nil
	default:
		return "", fmt.Errorf("unknown device link state %q", s)
	}
}
