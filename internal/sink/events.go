package sink

import (
	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/pkg/log"
)

// NewEventReporter forwards transfer events to logger. WARNING and ERROR
// events are logged at the matching level; other severities are dropped.
func NewEventReporter(logger log.Logger) domain.EventReporter {
	return func(severity domain.Severity, category, message string) {
		switch severity {
		case domain.SeverityWarning:
			logger.Warn(message, log.String("category", category))
		case domain.SeverityError:
			logger.Error(message, log.String("category", category))
		}
	}
}
