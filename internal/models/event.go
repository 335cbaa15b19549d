// internal/models/event.go
package models

import "time"

// EventType 会话事件类型
type EventType string

const (
	EventStageChanged     EventType = "stage_changed"
	EventKeywordsUpdated  EventType = "keywords_updated"
	EventKeywordWarning   EventType = "keyword_warning"
	EventOutlinesReady    EventType = "outlines_ready"
	EventDirectionsReady  EventType = "directions_ready"
	EventVersionSaved     EventType = "version_saved"
	EventVersionLoaded    EventType = "version_loaded"
	EventAnalysisComplete EventType = "analysis_complete"
	EventOperationFailed  EventType = "operation_failed"
	EventSessionReset     EventType = "session_reset"
)

// SessionEvent 推送给会话订阅者的事件
type SessionEvent struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Stage     Stage       `json:"stage"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
