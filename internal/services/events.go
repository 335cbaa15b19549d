// internal/services/events.go
package services

import (
	"time"

	"github.com/Corphon/HealthScriptMCP/internal/models"
)

// EventPublisher 会话事件的推送目标
type EventPublisher interface {
	Publish(event models.SessionEvent)
}

// NopPublisher 丢弃所有事件
type NopPublisher struct{}

func (NopPublisher) Publish(models.SessionEvent) {}

// PublisherFunc 适配普通函数
type PublisherFunc func(event models.SessionEvent)

func (f PublisherFunc) Publish(event models.SessionEvent) { f(event) }

func newEvent(eventType models.EventType, s *Session, message string, data interface{}) models.SessionEvent {
	return models.SessionEvent{
		Type:      eventType,
		SessionID: s.ID,
		Stage:     s.Stage(),
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}
