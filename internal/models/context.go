// internal/models/context.go
package models

import (
	"time"
)

// ActionKind 可重放操作的种类
type ActionKind string

const (
	ActionSubmitTopic     ActionKind = "submit_topic"
	ActionSelectOutline   ActionKind = "select_outline"
	ActionSelectDirection ActionKind = "select_direction"
	ActionModifyScript    ActionKind = "modify_script"
)

// ReplayableAction 最近一次失败尝试及其原始输入
type ReplayableAction struct {
	Kind        ActionKind `json:"kind"`
	Topic       string     `json:"topic,omitempty"`
	Index       int        `json:"index,omitempty"`
	Instruction string     `json:"instruction,omitempty"`
	FailedAt    time.Time  `json:"failed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// SessionSnapshot 会话的持久化形式
type SessionSnapshot struct {
	ID            string            `json:"id"`
	State         GenerationState   `json:"state"`
	Outlines      []Outline         `json:"outlines,omitempty"`
	Directions    []Direction       `json:"directions,omitempty"`
	Versions      []ScriptVersion   `json:"versions"`
	Keywords      []string          `json:"keywords"`
	Report        *AnalysisReport   `json:"report,omitempty"`
	PendingAction *ReplayableAction `json:"pending_action,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
