// internal/prompts/prompts.go
package prompts

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Corphon/HealthScriptMCP/internal/models"
)

// Name 系统提示词名称
type Name string

const (
	KeywordAnalysis       Name = "KEYWORD_ANALYSIS"
	OutlineGeneration     Name = "OUTLINE_GENERATION"
	StoryDirection        Name = "STORY_DIRECTION"
	ScriptGeneration      Name = "SCRIPT_GENERATION"
	ModifyScript          Name = "MODIFY_SCRIPT"
	FlowchartAnalysis     Name = "FLOWCHART_ANALYSIS"
	TerminologyExtraction Name = "TERMINOLOGY_EXTRACTION"
)

// ModifySystemPrompt 修改剧本时使用的系统提示
const ModifySystemPrompt = "你是一个专业的健康科普剧本顾问。"

var defaults = map[Name]string{
	KeywordAnalysis: `你是一名健康科普内容分析师。请从用户提供的健康主题中提取 3-8 个核心健康关键词。
只返回 JSON，格式为：{"keywords": ["关键词1", "关键词2"]}`,

	OutlineGeneration: `你是一名资深的健康科普短视频编剧。请根据用户给出的健康主题和关键词，设计 3-5 个不同风格的剧本大纲。
每个大纲需要包含标题和简要描述，描述说明切入角度、主要人物和核心知识点。
只返回 JSON，格式为：{"outlines": [{"title": "标题", "description": "描述"}]}`,

	StoryDirection: `你是一名健康科普短视频编剧。请基于用户选中的大纲，给出 3 个不同的故事走向。
每个走向说明情节推进方式和知识点的呈现方式。
只返回 JSON，格式为：{"directions": [{"title": "标题", "description": "描述"}]}`,

	ScriptGeneration: `你是一名专业的健康科普短视频编剧。请根据原始主题、选定大纲和故事走向，创作一个完整的健康科普短视频剧本。
要求：
1. 按场景组织，每个场景以"场景N"开头，注明地点和画面
2. 角色对白使用"角色名：台词"的格式
3. 医学知识准确，表达通俗易懂
4. 结尾给出明确的健康行动建议
5. 总时长控制在 3-5 分钟`,

	ModifyScript: `请根据以下修改建议，对健康科普剧本进行修改。

修改建议：{suggestion}

当前剧本：
{current_script}

请直接输出修改后的完整剧本，保持原有的场景和角色格式。`,

	FlowchartAnalysis: `你是一名剧本结构分析师。请分析用户提供的健康科普剧本，提炼 4-6 个关键情节节点，按顺序排列。
只返回 JSON，格式为：{"flowchart": [{"title": "节点标题", "description": "节点描述", "type": "start|development|climax|ending"}]}`,

	TerminologyExtraction: `你是一名医学编辑。请从用户提供的健康科普剧本中找出专业医学或健康术语，并给出通俗解释。
只返回 JSON，格式为：{"terminology": [{"term": "术语", "description": "通俗解释", "frequency": 出现次数}]}`,
}

// Set 一组系统提示词
type Set struct {
	mu      sync.RWMutex
	prompts map[Name]string
}

// Default 返回内置提示词
func Default() *Set {
	s := &Set{prompts: make(map[Name]string, len(defaults))}
	for k, v := range defaults {
		s.prompts[k] = v
	}
	return s
}

// Load 在内置提示词之上叠加 YAML 覆盖文件，path 为空时只用内置值
func Load(path string) (*Set, error) {
	s := Default()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取提示词文件失败: %w", err)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("解析提示词文件失败: %w", err)
	}

	for key, value := range overrides {
		name := Name(strings.ToUpper(strings.TrimSpace(key)))
		if !isKnown(name) {
			return nil, fmt.Errorf("未知的提示词名称: %s", key)
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		s.prompts[name] = value
	}

	if tmpl := s.prompts[ModifyScript]; !strings.Contains(tmpl, "{suggestion}") || !strings.Contains(tmpl, "{current_script}") {
		return nil, fmt.Errorf("MODIFY_SCRIPT 必须包含 {suggestion} 与 {current_script} 占位符")
	}
	return s, nil
}

// Get 按名称取提示词
func (s *Set) Get(name Name) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompts[name]
}

// Names 全部提示词名称
func Names() []Name {
	return []Name{KeywordAnalysis, OutlineGeneration, StoryDirection, ScriptGeneration, ModifyScript, FlowchartAnalysis, TerminologyExtraction}
}

func isKnown(name Name) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

// ModifyContent 把建议与当前剧本填入 MODIFY_SCRIPT，各替换第一次出现
func (s *Set) ModifyContent(suggestion, currentScript string) string {
	out := strings.Replace(s.Get(ModifyScript), "{suggestion}", suggestion, 1)
	return strings.Replace(out, "{current_script}", currentScript, 1)
}

// OutlineContent 大纲请求的用户内容
func OutlineContent(topic string, keywords *models.HealthKeywords) string {
	return fmt.Sprintf("健康主题：%s\n关键词：%s", topic, keywords.Join())
}

// DirectionContent 故事走向请求的用户内容
func DirectionContent(outline models.Outline, topic string, keywords *models.HealthKeywords) string {
	return fmt.Sprintf("选中的大纲：%s\n描述：%s\n原始主题：%s\n关键词：%s",
		outline.Title, outline.Description, topic, keywords.Join())
}

// ScriptContent 剧本请求的用户内容
func ScriptContent(topic string, outline models.Outline, direction models.Direction, keywords *models.HealthKeywords) string {
	lines := []string{
		"原始主题：" + topic,
		fmt.Sprintf("选择的大纲：%s - %s", outline.Title, outline.Description),
		fmt.Sprintf("选择的故事走向：%s - %s", direction.Title, direction.Description),
		"关键词：" + keywords.Join(),
	}
	return strings.Join(lines, "\n")
}
