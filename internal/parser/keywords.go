// internal/parser/keywords.go
package parser

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoKeywords 无法从响应中得到任何关键词
var ErrNoKeywords = errors.New("无法从API响应中提取关键词")

var (
	keywordStripRe = regexp.MustCompile(`[\[\]"]`)
	keywordSplitRe = regexp.MustCompile(`[,，、\n]`)
)

// ParseKeywords 优先解析 {"keywords": [...]}，否则按分隔符切分文本
func ParseKeywords(raw string) ([]string, error) {
	cleaned := StripFences(raw)

	var payload struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err == nil && payload.Keywords != nil {
		if kw := cleanKeywords(payload.Keywords); len(kw) > 0 {
			return kw, nil
		}
		return nil, ErrNoKeywords
	}

	text := keywordStripRe.ReplaceAllString(cleaned, "")
	if kw := cleanKeywords(keywordSplitRe.Split(text, -1)); len(kw) > 0 {
		return kw, nil
	}
	return nil, ErrNoKeywords
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
