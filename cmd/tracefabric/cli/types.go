package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/frobware/go-tracefabric"
)

// Address is a physical address or register value given on the
// command line in decimal or 0x-prefixed hex.
type Address uint64

// ParseAddress parses s as an unsigned number in any base strconv
// accepts with a prefix.
func ParseAddress(s string) (Address, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Address(v), nil
}

// String renders a in hex.
func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// ParseDeviceID validates a device identifier.
func ParseDeviceID(s string) (tracefabric.DeviceID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("device ID must not be empty")
	}
	if strings.ContainsAny(s, " \t\n") {
		return "", fmt.Errorf("invalid device ID %q: contains whitespace", s)
	}
	return tracefabric.DeviceID(s), nil
}
