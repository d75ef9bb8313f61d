package domain

import "context"

// NotificationService defines the interface for notification services
type NotificationService interface {
	// SendCompleted announces that a user finished an item
	SendCompleted(ctx context.Context, rec UserStatus) error

	// SendError sends an error notification with error details
	SendError(ctx context.Context, err error) error
}
