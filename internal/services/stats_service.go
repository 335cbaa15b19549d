// internal/services/stats_service.go
package services

import (
	"regexp"
	"unicode"

	"github.com/Corphon/HealthScriptMCP/internal/models"
	"github.com/Corphon/HealthScriptMCP/internal/parser"
)

const (
	minSceneCount     = 1
	minCharacterCount = 2
)

// speakerRe 匹配 “角色名：” 形式的对白标记
var speakerRe = regexp.MustCompile(`[A-Za-z\x{4e00}-\x{9fa5}]+：`)

// ComputeStats 计算剧本统计，termCount 由术语提取结果给出
func ComputeStats(script string, termCount int) models.ScriptStats {
	words := 0
	for _, r := range script {
		if !unicode.IsSpace(r) {
			words++
		}
	}

	scenes := len(parser.SceneSplitRe.FindAllStringIndex(script, -1))
	if scenes < minSceneCount {
		scenes = minSceneCount
	}

	characters := len(speakerRe.FindAllStringIndex(script, -1))
	if characters < minCharacterCount {
		characters = minCharacterCount
	}

	return models.ScriptStats{
		WordCount:      words,
		SceneCount:     scenes,
		CharacterCount: characters,
		TermCount:      termCount,
	}
}
