package auth

import "context"

// NotificationPurpose tells the notifier which template to use
type NotificationPurpose string

const (
	PurposeActivateAccount NotificationPurpose = "activate_account"
)

// LoggerNotifier writes activation codes to the log instead of sending
// them. Meant for local development.
type LoggerNotifier struct {
	logger Logger
}

// NewLoggerNotifier returns a Notifier backed by logger
func NewLoggerNotifier(logger Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: normalizeLogger(logger)}
}

// SendActivationMessage implements Notifier.
func (n *LoggerNotifier) SendActivationMessage(ctx context.Context, identifier, displayName, code string, purpose NotificationPurpose) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	n.logger.Info("activation message",
		"to", identifier,
		"name", displayName,
		"code", code,
		"purpose", string(purpose),
	)
	return nil
}
