package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/HealthScriptMCP/internal/models"
)

func TestDefaultsCoverAllNames(t *testing.T) {
	s := Default()
	for _, name := range Names() {
		assert.NotEmpty(t, s.Get(name), "提示词 %s 不能为空", name)
	}
}

func TestModifyContentReplacesFirstOccurrence(t *testing.T) {
	s := Default()
	s.prompts[ModifyScript] = "建议:{suggestion}|剧本:{current_script}|{suggestion}"

	got := s.ModifyContent("更口语化", "场景1 医生：你好")
	assert.Equal(t, "建议:更口语化|剧本:场景1 医生：你好|{suggestion}", got)
}

func TestUserContentBuilders(t *testing.T) {
	kw := models.NewHealthKeywords("高血压", "饮食")
	outline := models.Outline{Title: "控盐生活", Description: "从厨房说起"}
	direction := models.Direction{Title: "家庭对话", Description: "祖孙两代"}

	assert.Equal(t, "健康主题：高血压预防\n关键词：高血压, 饮食", OutlineContent("高血压预防", kw))
	assert.Equal(t, "选中的大纲：控盐生活\n描述：从厨房说起\n原始主题：高血压预防\n关键词：高血压, 饮食",
		DirectionContent(outline, "高血压预防", kw))
	assert.Equal(t, "原始主题：高血压预防\n选择的大纲：控盐生活 - 从厨房说起\n选择的故事走向：家庭对话 - 祖孙两代\n关键词：高血压, 饮食",
		ScriptContent("高血压预防", outline, direction, kw))
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("outline_generation: 自定义大纲提示\n"), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "自定义大纲提示", s.Get(OutlineGeneration))
	assert.Equal(t, defaults[ScriptGeneration], s.Get(ScriptGeneration))
}

func TestLoadRejectsBadOverrides(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("NOT_A_PROMPT: x\n"), 0644))
	_, err := Load(unknown)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("MODIFY_SCRIPT: 没有占位符\n"), 0644))
	_, err = Load(broken)
	assert.Error(t, err)

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, defaults[KeywordAnalysis], s.Get(KeywordAnalysis))
}

func TestQuickActions(t *testing.T) {
	actions := QuickActions()
	require.Len(t, actions, 4)
	assert.Equal(t, "增加更多专业解释", actions[0].Name)

	instr, ok := QuickActionInstruction("添加实际案例")
	require.True(t, ok)
	assert.Equal(t, "请在剧本中添加一些实际案例或真实故事，使内容更有说服力和代入感。", instr)

	_, ok = QuickActionInstruction("不存在")
	assert.False(t, ok)
}
