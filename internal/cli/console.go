// internal/cli/console.go
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/width"
)

const boxMaxWidth = 60

// Console 逐行读取输入并输出带边框的面板
type Console struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewConsole 包装输入输出流
func NewConsole(in io.Reader, out io.Writer) *Console {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	return &Console{scanner: scanner, out: out}
}

// Prompt 打印提示并读取一行，输入结束时 ok 为 false
func (c *Console) Prompt(prompt string) (string, bool) {
	fmt.Fprint(c.out, prompt)
	if !c.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.scanner.Text()), true
}

// Println 输出一行
func (c *Console) Println(args ...interface{}) {
	fmt.Fprintln(c.out, args...)
}

// Printf 格式化输出
func (c *Console) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// Box 以边框面板输出内容，按终端显示宽度对齐，中文等宽字符占两列
func (c *Console) Box(title, content string) {
	body := wrapColumns(content, boxMaxWidth)
	if len(body) == 0 {
		body = []string{""}
	}

	inner := displayWidth(title)
	for _, line := range body {
		inner = max(inner, displayWidth(line))
	}

	var b strings.Builder
	rule := strings.Repeat("─", inner+2)
	b.WriteString("┌" + rule + "┐\n")
	if title != "" {
		writeBoxRow(&b, title, inner)
		b.WriteString("├" + rule + "┤\n")
	}
	for _, line := range body {
		writeBoxRow(&b, line, inner)
	}
	b.WriteString("└" + rule + "┘\n")
	fmt.Fprint(c.out, b.String())
}

func writeBoxRow(b *strings.Builder, text string, inner int) {
	b.WriteString("│ ")
	b.WriteString(text)
	b.WriteString(strings.Repeat(" ", inner-displayWidth(text)))
	b.WriteString(" │\n")
}

// wrapColumns 按显示列数折行，宽字符不会被拆到行尾之外
func wrapColumns(content string, columns int) []string {
	var rows []string
	for _, raw := range strings.Split(content, "\n") {
		var row strings.Builder
		used := 0
		for _, r := range strings.TrimRight(raw, " ") {
			w := runeColumns(r)
			if used+w > columns && used > 0 {
				rows = append(rows, row.String())
				row.Reset()
				used = 0
			}
			row.WriteRune(r)
			used += w
		}
		rows = append(rows, row.String())
	}
	return rows
}

func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		n += runeColumns(r)
	}
	return n
}

func runeColumns(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}
