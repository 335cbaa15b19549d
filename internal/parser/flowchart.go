// internal/parser/flowchart.go
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Corphon/HealthScriptMCP/internal/models"
)

const (
	flowchartTitleLen  = 20
	sceneDescLen       = 100
	maxDefaultScenes   = 5
	flowchartMinLength = 3
)

var (
	flowchartLineRe = regexp.MustCompile(`^(\d+[\.、]|\*|\-)\s*(.+)`)
	markdownMarkRe  = regexp.MustCompile(`[\*#]`)

	// SceneSplitRe 场景分隔标记
	SceneSplitRe = regexp.MustCompile(`场景|第[一二三四五六七八九十\d]+幕|第[一二三四五六七八九十\d]+场`)
)

// ParseFlowchart 解析流程图节点，script 用于默认分段
func ParseFlowchart(raw, script string) Result[models.FlowchartNode] {
	return firstNonEmpty(
		strategy[models.FlowchartNode]{TierStructured, func() []models.FlowchartNode { return structuredFlowchart(raw) }},
		strategy[models.FlowchartNode]{TierHeuristic, func() []models.FlowchartNode { return HeuristicFlowchart(raw) }},
		strategy[models.FlowchartNode]{TierFallback, func() []models.FlowchartNode { return DefaultFlowchart(script) }},
	)
}

func structuredFlowchart(raw string) []models.FlowchartNode {
	nodes := DecodeList[models.FlowchartNode](raw, "flowchart")
	for i := range nodes {
		if nodes[i].Type == "" {
			nodes[i].Type = models.NodeTypeForIndex(i)
		}
	}
	return nodes
}

// HeuristicFlowchart 每个列表行生成一个节点
func HeuristicFlowchart(raw string) []models.FlowchartNode {
	var nodes []models.FlowchartNode
	for _, line := range strings.Split(raw, "\n") {
		m := flowchartLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil || runeLen(m[2]) <= flowchartMinLength {
			continue
		}

		content := strings.TrimSpace(markdownMarkRe.ReplaceAllString(m[2], ""))
		title := content
		if runeLen(content) > flowchartTitleLen {
			title = truncateRunes(content, flowchartTitleLen) + "..."
		}
		nodes = append(nodes, models.FlowchartNode{
			Title:       title,
			Description: content,
			Type:        models.NodeTypeForIndex(len(nodes)),
		})
	}
	return nodes
}

// DefaultFlowchart 按场景标记切分剧本；切不出多段时返回固定的五段结构
func DefaultFlowchart(script string) []models.FlowchartNode {
	var scenes []string
	for _, s := range SceneSplitRe.Split(script, -1) {
		if strings.TrimSpace(s) != "" {
			scenes = append(scenes, s)
		}
	}

	if len(scenes) > 1 {
		if len(scenes) > maxDefaultScenes {
			scenes = scenes[:maxDefaultScenes]
		}
		nodes := make([]models.FlowchartNode, 0, len(scenes))
		for i, scene := range scenes {
			nodes = append(nodes, models.FlowchartNode{
				Title:       fmt.Sprintf("场景 %d", i+1),
				Description: strings.TrimSpace(truncateRunes(scene, sceneDescLen)) + "...",
				Type:        models.NodeTypeForIndex(i),
			})
		}
		return nodes
	}

	return []models.FlowchartNode{
		{Title: "开场引入", Description: "引出健康话题，吸引观众注意", Type: models.NodeStart},
		{Title: "问题展示", Description: "展示健康问题的严重性", Type: models.NodeDevelopment},
		{Title: "专业解答", Description: "提供专业的健康知识和建议", Type: models.NodeClimax},
		{Title: "实践指导", Description: "给出具体的行动建议", Type: models.NodeDevelopment},
		{Title: "总结呼吁", Description: "总结要点，呼吁健康行动", Type: models.NodeEnding},
	}
}
