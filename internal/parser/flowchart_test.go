package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/HealthScriptMCP/internal/models"
)

func TestParseFlowchartStructured(t *testing.T) {
	raw := "```json\n{\"flowchart\": [{\"title\": \"开场\", \"description\": \"引入\", \"type\": \"start\"}, {\"title\": \"发展\", \"description\": \"冲突\"}]}\n```"

	res := ParseFlowchart(raw, "")
	assert.Equal(t, TierStructured, res.Tier)
	require.Len(t, res.Items, 2)
	assert.Equal(t, models.NodeStart, res.Items[0].Type)
	assert.Equal(t, models.NodeDevelopment, res.Items[1].Type, "缺失的类型按位置补齐")
}

func TestHeuristicFlowchart(t *testing.T) {
	raw := strings.Join([]string{
		"1. **开场：小明在办公室久坐一整天之后感到腰酸背痛**",
		"- 医生",
		"* 医生讲解久坐的危害",
		"2、同事们一起做工间操",
		"- 小明坚持锻炼一个月",
		"3. 总结久坐与健康的关系",
	}, "\n")

	nodes := HeuristicFlowchart(raw)
	require.Len(t, nodes, 5)

	assert.Equal(t, "开场：小明在办公室久坐一整天之后感到腰酸...", nodes[0].Title)
	assert.Equal(t, "开场：小明在办公室久坐一整天之后感到腰酸背痛", nodes[0].Description)
	assert.Equal(t, "医生讲解久坐的危害", nodes[1].Title)

	want := []models.NodeType{models.NodeStart, models.NodeDevelopment, models.NodeDevelopment, models.NodeClimax, models.NodeEnding}
	for i, node := range nodes {
		assert.Equal(t, want[i], node.Type)
	}
}

func TestDefaultFlowchartFixedArcIsIdempotent(t *testing.T) {
	first := DefaultFlowchart("")
	second := DefaultFlowchart("")
	require.Len(t, first, 5)
	assert.Equal(t, first, second)

	titles := []string{"开场引入", "问题展示", "专业解答", "实践指导", "总结呼吁"}
	types := []models.NodeType{models.NodeStart, models.NodeDevelopment, models.NodeClimax, models.NodeDevelopment, models.NodeEnding}
	for i, node := range first {
		assert.Equal(t, titles[i], node.Title)
		assert.Equal(t, types[i], node.Type)
	}

	// 只有一段时仍为固定结构
	assert.Equal(t, first, DefaultFlowchart("场景一 只有一个场景"))
}

func TestDefaultFlowchartSplitsScenes(t *testing.T) {
	script := "场景1 客厅\n妈妈：该吃饭了\n场景2 医院\n医生：注意饮食\n第三幕 公园\n跑步\n第4场 家中\n总结\n场景5 a\n场景6 b"

	nodes := DefaultFlowchart(script)
	require.Len(t, nodes, 5)
	assert.Equal(t, "场景 1", nodes[0].Title)
	assert.Equal(t, "1 客厅\n妈妈：该吃饭了...", nodes[0].Description)
	assert.Equal(t, models.NodeClimax, nodes[3].Type)
}

func TestParseFlowchartFallsBackToScript(t *testing.T) {
	res := ParseFlowchart("无法解析", "")
	assert.Equal(t, TierFallback, res.Tier)
	assert.Len(t, res.Items, 5)
}
