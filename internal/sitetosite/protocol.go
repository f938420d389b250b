package sitetosite

import (
	"fmt"
	"strings"

	"github.com/bft-labs/recordship/internal/domain"
)

// TransportProtocol selects the transfer mode.
type TransportProtocol string

const (
	ProtocolRAW  TransportProtocol = "RAW"
	ProtocolHTTP TransportProtocol = "HTTP"
)

// ParseTransportProtocol parses a protocol name case-insensitively.
func ParseTransportProtocol(s string) (TransportProtocol, error) {
	switch TransportProtocol(strings.ToUpper(strings.TrimSpace(s))) {
	case ProtocolRAW:
		return ProtocolRAW, nil
	case ProtocolHTTP:
		return ProtocolHTTP, nil
	default:
		return "", fmt.Errorf("%w: unknown transport protocol %q (want RAW or HTTP)", domain.ErrInvalidConfig, s)
	}
}

func (p TransportProtocol) String() string {
	return string(p)
}
