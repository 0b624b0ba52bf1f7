package services

import (
	"fmt"

	"github.com/containrrr/shoutrrr"

	"github.com/iotguard/guardd/internal/logger"
)

// NotificationService pushes block/failure events to external services via
// shoutrrr URLs (discord://, telegram://, smtp://, ...). URLs come from the
// bootstrap config; an empty list disables sending.
type NotificationService struct {
	urls []string
}

func NewNotificationService(urls []string) *NotificationService {
	return &NotificationService{urls: urls}
}

// Enabled reports whether any destination is configured.
func (s *NotificationService) Enabled() bool {
	return len(s.urls) > 0
}

// Send delivers title/message to every configured destination. Delivery is
// fire-and-forget so a slow notification endpoint never delays decisions.
func (s *NotificationService) Send(title, message string) {
	for _, url := range s.urls {
		go func(url string) {
			body := fmt.Sprintf("%s\n%s", title, message)
			if err := shoutrrr.Send(url, body); err != nil {
				logger.Log().WithError(err).Warn("failed to send notification")
			}
		}(url)
	}
}
