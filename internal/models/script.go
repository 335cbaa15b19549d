// internal/models/script.go
package models

import (
	"strings"
	"time"
)

// Stage 生成流程所处阶段
type Stage string

const (
	StageInitial        Stage = "initial"
	StageOutline        Stage = "outline"
	StageStoryDirection Stage = "story_direction"
	StageScript         Stage = "script"
	StageEditing        Stage = "editing"
)

// HasScript 该阶段是否允许持有当前剧本
func (s Stage) HasScript() bool {
	return s == StageScript || s == StageEditing
}

// Outline 大纲候选
type Outline struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Direction 故事走向候选
type Direction struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// GenerationState 当前会话的生成状态
type GenerationState struct {
	Stage             Stage      `json:"stage"`
	SourceTopic       string     `json:"source_topic"`
	SelectedOutline   *Outline   `json:"selected_outline,omitempty"`
	SelectedDirection *Direction `json:"selected_direction,omitempty"`
	CurrentScript     string     `json:"current_script"`
}

// NewGenerationState 返回初始状态
func NewGenerationState() GenerationState {
	return GenerationState{Stage: StageInitial}
}

// ScriptVersionTimeLayout 版本时间戳格式
const ScriptVersionTimeLayout = "2006/1/2 15:04:05"

// ScriptVersion 剧本版本快照，创建后不再修改
type ScriptVersion struct {
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// NewScriptVersion 以给定时间创建版本
func NewScriptVersion(content string, at time.Time) ScriptVersion {
	return ScriptVersion{
		Timestamp: at.Format(ScriptVersionTimeLayout),
		Content:   content,
	}
}

// HealthKeywords 有序去重的关键词集合
type HealthKeywords struct {
	items []string
}

// NewHealthKeywords 从列表构建集合，忽略空白与重复项
func NewHealthKeywords(keywords ...string) *HealthKeywords {
	k := &HealthKeywords{}
	k.Replace(keywords)
	return k
}

// Add 添加关键词，返回是否实际加入
func (k *HealthKeywords) Add(keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" || k.Contains(keyword) {
		return false
	}
	k.items = append(k.items, keyword)
	return true
}

// Remove 删除关键词，返回是否存在
func (k *HealthKeywords) Remove(keyword string) bool {
	for i, item := range k.items {
		if item == keyword {
			k.items = append(k.items[:i:i], k.items[i+1:]...)
			return true
		}
	}
	return false
}

// Contains 判断关键词是否存在
func (k *HealthKeywords) Contains(keyword string) bool {
	for _, item := range k.items {
		if item == keyword {
			return true
		}
	}
	return false
}

// Replace 用新列表整体替换
func (k *HealthKeywords) Replace(keywords []string) {
	k.items = nil
	for _, keyword := range keywords {
		k.Add(keyword)
	}
}

// Clear 清空集合
func (k *HealthKeywords) Clear() {
	k.items = nil
}

// List 返回副本
func (k *HealthKeywords) List() []string {
	out := make([]string, len(k.items))
	copy(out, k.items)
	return out
}

// Len 关键词数量
func (k *HealthKeywords) Len() int {
	return len(k.items)
}

// Join 以 ", " 连接，用于提示词
func (k *HealthKeywords) Join() string {
	return strings.Join(k.items, ", ")
}
