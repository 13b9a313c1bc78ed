package ports

import (
	"context"

	"futuresMegaBot/internal/domain"
)

// Notifier delivers alerts to a human-facing channel.
type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}
