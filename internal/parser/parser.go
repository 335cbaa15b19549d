// internal/parser/parser.go
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Tier 解析结果来自哪一级策略
type Tier string

const (
	TierStructured Tier = "structured"
	TierHeuristic  Tier = "heuristic"
	TierFallback   Tier = "fallback"
	TierNone       Tier = "none"
)

// Result 解析结果及其来源层级
type Result[T any] struct {
	Items []T
	Tier  Tier
}

type strategy[T any] struct {
	tier Tier
	run  func() []T
}

// firstNonEmpty 依次执行策略，返回第一个非空结果
func firstNonEmpty[T any](strategies ...strategy[T]) Result[T] {
	for _, s := range strategies {
		if items := s.run(); len(items) > 0 {
			return Result[T]{Items: items, Tier: s.tier}
		}
	}
	return Result[T]{Tier: TierNone}
}

var fenceRe = regexp.MustCompile("```json\\s*|\\s*```")

// StripFences 去掉所有 ```json 与 ``` 标记
func StripFences(raw string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))
}

// extractJSONObjectText 取最外层的 {...}
func extractJSONObjectText(raw string) string {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// DecodeList 从 {field: [...]} 中取出列表；整体解析失败时再尝试最外层对象
func DecodeList[T any](raw, field string) []T {
	cleaned := StripFences(raw)
	for _, candidate := range []string{cleaned, extractJSONObjectText(cleaned)} {
		if candidate == "" {
			continue
		}
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
			continue
		}
		list, ok := envelope[field]
		if !ok {
			continue
		}
		var items []T
		if err := json.Unmarshal(list, &items); err != nil {
			continue
		}
		return items
	}
	return nil
}

// truncateRunes 按字符截断
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func runeLen(s string) int {
	return len([]rune(s))
}
