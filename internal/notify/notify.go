// README: Fire-and-forget notification boundary. Delivery is an external
// collaborator; failures never roll back state that already committed.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Notifier sends a templated message to a recipient. Implementations must
// not block the caller and must swallow their own errors.
type Notifier interface {
	Notify(ctx context.Context, recipient, template string, data map[string]any)
}

// LogNotifier writes notifications to the log; the default wiring until a
// real gateway is configured.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n *LogNotifier) Notify(_ context.Context, recipient, template string, data map[string]any) {
	n.Log.WithFields(logrus.Fields{
		"recipient": recipient,
		"template":  template,
		"data":      data,
	}).Info("notification")
}

// Noop discards notifications. Used by tests.
type Noop struct{}

func (Noop) Notify(context.Context, string, string, map[string]any) {}
