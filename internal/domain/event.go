package domain

// Severity classifies events raised by the transfer client.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns a human-readable representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// EventReporter receives events from the transfer client.
// Implementations must be safe for concurrent use.
type EventReporter func(severity Severity, category, message string)

// Report calls r if it is non-nil.
func (r EventReporter) Report(severity Severity, category, message string) {
	if r != nil {
		r(severity, category, message)
	}
}

// TransferDirection is the direction of a transaction relative to the client.
type TransferDirection int

const (
	DirectionSend TransferDirection = iota
	DirectionReceive
)

// String returns a human-readable representation of the direction.
func (d TransferDirection) String() string {
	switch d {
	case DirectionSend:
		return "SEND"
	case DirectionReceive:
		return "RECEIVE"
	default:
		return "UNKNOWN"
	}
}
