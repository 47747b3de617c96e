package enums

import "slices"

// NotificationType is the closed set of inbox notification tags.
type NotificationType string

const (
	NotificationTypePurchaseCompleted NotificationType = "purchase_completed"
	NotificationTypeRepoAccessGranted NotificationType = "repo_access_granted"
	NotificationTypeRepoAccessFailed  NotificationType = "repo_access_failed"
	NotificationTypePaymentFailed     NotificationType = "payment_failed"
	NotificationTypeSystem            NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePurchaseCompleted,
	NotificationTypeRepoAccessGranted,
	NotificationTypeRepoAccessFailed,
	NotificationTypePaymentFailed,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool { return slices.Contains(validNotificationTypes, n) }

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse("notification type", validNotificationTypes, value)
}
