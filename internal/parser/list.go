// internal/parser/list.go
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Corphon/HealthScriptMCP/internal/models"
)

const (
	MaxOutlines   = 5
	MaxDirections = 3

	outlineMinLineLen   = 10
	directionMinLineLen = 5
	sectionDescLen      = 200
)

var (
	listTitleRe    = regexp.MustCompile(`^(\d+[\.、]|\*\*|###?\s*)(.*)`)
	blankSectionRe = regexp.MustCompile(`\n\s*\n`)
)

// listItem 大纲与故事走向共用的条目
type listItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ParseOutlines 解析大纲候选，最多 5 个
func ParseOutlines(raw string) Result[models.Outline] {
	res := firstNonEmpty(
		strategy[models.Outline]{TierStructured, func() []models.Outline { return DecodeList[models.Outline](raw, "outlines") }},
		strategy[models.Outline]{TierHeuristic, func() []models.Outline { return HeuristicOutlines(raw) }},
		strategy[models.Outline]{TierFallback, func() []models.Outline { return DefaultOutlines(raw) }},
	)
	if len(res.Items) > MaxOutlines {
		res.Items = res.Items[:MaxOutlines]
	}
	return res
}

// ParseDirections 解析故事走向候选，最多 3 个
func ParseDirections(raw string) Result[models.Direction] {
	res := firstNonEmpty(
		strategy[models.Direction]{TierStructured, func() []models.Direction { return DecodeList[models.Direction](raw, "directions") }},
		strategy[models.Direction]{TierHeuristic, func() []models.Direction { return HeuristicDirections(raw) }},
		strategy[models.Direction]{TierFallback, func() []models.Direction { return DefaultDirections(raw) }},
	)
	if len(res.Items) > MaxDirections {
		res.Items = res.Items[:MaxDirections]
	}
	return res
}

// HeuristicOutlines 按列表标记逐行解析大纲
func HeuristicOutlines(raw string) []models.Outline {
	items := heuristicItems(raw, outlineMinLineLen)
	out := make([]models.Outline, 0, len(items))
	for _, it := range items {
		out = append(out, models.Outline(it))
	}
	return out
}

// HeuristicDirections 按列表标记逐行解析故事走向
func HeuristicDirections(raw string) []models.Direction {
	items := heuristicItems(raw, directionMinLineLen)
	out := make([]models.Direction, 0, len(items))
	for _, it := range items {
		out = append(out, models.Direction(it))
	}
	return out
}

// DefaultOutlines 按空行分段，每段一个"方案 N"
func DefaultOutlines(raw string) []models.Outline {
	items := sectionItems(raw, "方案")
	out := make([]models.Outline, 0, len(items))
	for _, it := range items {
		out = append(out, models.Outline(it))
	}
	return out
}

// DefaultDirections 按空行分段，每段一个"走向 N"
func DefaultDirections(raw string) []models.Direction {
	items := sectionItems(raw, "走向")
	out := make([]models.Direction, 0, len(items))
	for _, it := range items {
		out = append(out, models.Direction(it))
	}
	return out
}

func heuristicItems(raw string, minLen int) []listItem {
	var (
		items   []listItem
		current *listItem
	)

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)

		if m := listTitleRe.FindStringSubmatch(trimmed); m != nil && runeLen(trimmed) > minLen {
			if current != nil {
				items = append(items, *current)
			}
			current = &listItem{Title: strings.TrimSpace(strings.ReplaceAll(m[2], "**", ""))}
			continue
		}

		if current != nil && trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			if current.Description != "" {
				current.Description += " "
			}
			current.Description += trimmed
		}
	}

	if current != nil {
		items = append(items, *current)
	}
	return items
}

// sectionItems 空白段落被跳过，编号按保留的段落计；全部为空白时仍给出一项
func sectionItems(raw, titlePrefix string) []listItem {
	var items []listItem
	for _, section := range blankSectionRe.Split(raw, -1) {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		text := strings.Join(strings.Split(section, "\n"), " ")
		items = append(items, listItem{
			Title:       fmt.Sprintf("%s %d", titlePrefix, len(items)+1),
			Description: truncateRunes(text, sectionDescLen) + "...",
		})
	}
	if len(items) == 0 {
		items = append(items, listItem{Title: titlePrefix + " 1", Description: "..."})
	}
	return items
}
