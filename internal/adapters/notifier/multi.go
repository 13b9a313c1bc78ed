package notifier

import (
	"context"
	"errors"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"
)

// Multi fans an alert out to several notifiers.
type Multi []ports.Notifier

// Notify delivers to every notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, alert domain.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
