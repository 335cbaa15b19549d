// internal/models/analyzer.go
package models

import "time"

// NodeType 流程图节点的叙事角色
type NodeType string

const (
	NodeStart       NodeType = "start"
	NodeDevelopment NodeType = "development"
	NodeClimax      NodeType = "climax"
	NodeEnding      NodeType = "ending"
)

// NodeTypeForIndex 按位置确定节点类型
func NodeTypeForIndex(index int) NodeType {
	switch {
	case index == 0:
		return NodeStart
	case index <= 2:
		return NodeDevelopment
	case index == 3:
		return NodeClimax
	default:
		return NodeEnding
	}
}

type FlowchartNode struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        NodeType `json:"type"`
}

type TerminologyEntry struct {
	Term        string `json:"term"`
	Description string `json:"description"`
	Frequency   int    `json:"frequency"`
}

type ScriptStats struct {
	WordCount      int `json:"wordCount"`
	SceneCount     int `json:"sceneCount"`
	CharacterCount int `json:"characterCount"`
	TermCount      int `json:"termCount"`
}

// AnalysisReport 每次分析整体替换
type AnalysisReport struct {
	Flowchart   []FlowchartNode    `json:"flowchart"`
	Terminology []TerminologyEntry `json:"terminology"`
	Stats       ScriptStats        `json:"stats"`
	AnalyzedAt  time.Time          `json:"analyzed_at"`

	// 两个模型子任务是否走了降级
	FlowchartFallback   bool `json:"flowchart_fallback,omitempty"`
	TerminologyFallback bool `json:"terminology_fallback,omitempty"`
}

// IsEmpty 是否尚未产生任何分析数据
func (r *AnalysisReport) IsEmpty() bool {
	return r == nil || (len(r.Flowchart) == 0 && len(r.Terminology) == 0)
}
