// internal/parser/terminology.go
package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Corphon/HealthScriptMCP/internal/models"
)

const maxDefaultTerms = 10

var (
	termLineRe     = regexp.MustCompile(`^(\d+[\.、]|\*|\-)\s*([^：:]+)[:：]\s*(.+)`)
	termContinueRe = regexp.MustCompile(`^[\d\*\-]`)
)

// healthVocabulary 默认识别的健康词汇
var healthVocabulary = []string{
	"预防保健", "营养均衡", "慢性病", "免疫力", "维生素",
	"矿物质", "蛋白质", "碳水化合物", "膳食纤维", "抗氧化剂",
	"血压", "血糖", "胆固醇", "心血管", "呼吸系统",
}

// ParseTerminology 解析专业词汇，频次按 script 中的出现次数计算
func ParseTerminology(raw, script string) Result[models.TerminologyEntry] {
	return firstNonEmpty(
		strategy[models.TerminologyEntry]{TierStructured, func() []models.TerminologyEntry { return structuredTerminology(raw, script) }},
		strategy[models.TerminologyEntry]{TierHeuristic, func() []models.TerminologyEntry { return HeuristicTerminology(raw, script) }},
		strategy[models.TerminologyEntry]{TierFallback, func() []models.TerminologyEntry { return DefaultTerminology(script) }},
	)
}

func structuredTerminology(raw, script string) []models.TerminologyEntry {
	entries := DecodeList[models.TerminologyEntry](raw, "terminology")
	for i := range entries {
		if entries[i].Frequency < 1 {
			entries[i].Frequency = TermFrequency(script, entries[i].Term)
		}
	}
	return entries
}

// HeuristicTerminology 解析"1. 术语：解释"格式的行，非列表行续接到上一条解释
func HeuristicTerminology(raw, script string) []models.TerminologyEntry {
	var (
		entries []models.TerminologyEntry
		current *models.TerminologyEntry
	)

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)

		if m := termLineRe.FindStringSubmatch(trimmed); m != nil {
			if current != nil {
				entries = append(entries, *current)
			}
			term := strings.TrimSpace(m[2])
			current = &models.TerminologyEntry{
				Term:        term,
				Description: strings.TrimSpace(m[3]),
				Frequency:   TermFrequency(script, term),
			}
			continue
		}

		if current != nil && trimmed != "" && !termContinueRe.MatchString(trimmed) {
			current.Description += " " + trimmed
		}
	}

	if current != nil {
		entries = append(entries, *current)
	}
	return entries
}

// DefaultTerminology 统计内置词汇在剧本中的出现次数，取前 10 个
func DefaultTerminology(script string) []models.TerminologyEntry {
	var found []models.TerminologyEntry
	for _, term := range healthVocabulary {
		if n := strings.Count(script, term); n > 0 {
			found = append(found, models.TerminologyEntry{
				Term:        term,
				Description: term + "相关的健康知识，建议查阅专业资料了解更多详情。",
				Frequency:   n,
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Frequency > found[j].Frequency
	})
	if len(found) > maxDefaultTerms {
		found = found[:maxDefaultTerms]
	}
	return found
}

// TermFrequency 术语出现次数，至少为 1
func TermFrequency(script, term string) int {
	if term == "" {
		return 1
	}
	if n := strings.Count(script, term); n > 0 {
		return n
	}
	return 1
}
