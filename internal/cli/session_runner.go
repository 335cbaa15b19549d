// internal/cli/session_runner.go
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/Corphon/HealthScriptMCP/internal/errors"
	"github.com/Corphon/HealthScriptMCP/internal/models"
	"github.com/Corphon/HealthScriptMCP/internal/prompts"
	"github.com/Corphon/HealthScriptMCP/internal/services"
)

const helpText = `/quick [N]  快捷修改（不带序号时列出可选项）
/versions   查看历史版本
/load N     加载第 N 个版本
/analyze    分析当前剧本
/export     导出剧本与分析结果
/retry      重试上一次失败的操作
/reset      清除全部内容
/exit       退出
其他输入在编辑阶段作为修改建议`

// Runner 在终端中驱动一次会话
type Runner struct {
	Generation *services.GenerationService
	Analyzer   *services.AnalyzerService
	Export     *services.ExportService

	console *Console
	session *services.Session
	shown   models.Stage
}

// NewRunner 绑定会话与终端
func NewRunner(console *Console, sess *services.Session, generation *services.GenerationService, analyzer *services.AnalyzerService, export *services.ExportService) *Runner {
	return &Runner{
		Generation: generation,
		Analyzer:   analyzer,
		Export:     export,
		console:    console,
		session:    sess,
	}
}

// Run 读取输入直到 /exit、输入结束或 ctx 取消
func (r *Runner) Run(ctx context.Context, topic string) error {
	if strings.TrimSpace(topic) != "" {
		r.submitTopic(ctx, topic)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		r.showStage()

		input, ok := r.console.Prompt(r.promptForStage())
		if !ok {
			return nil
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if exit := r.handleCommand(ctx, input); exit {
				return nil
			}
			continue
		}
		r.handleInput(ctx, input)
	}
}

func (r *Runner) promptForStage() string {
	switch r.session.Stage() {
	case models.StageOutline:
		return "选择大纲序号> "
	case models.StageStoryDirection:
		return "选择故事走向序号> "
	case models.StageEditing:
		return "修改建议> "
	default:
		return "健康主题> "
	}
}

// showStage 阶段变化时展示候选项或当前剧本
func (r *Runner) showStage() {
	stage := r.session.Stage()
	if stage == r.shown {
		return
	}
	r.shown = stage

	switch stage {
	case models.StageOutline:
		lines := make([]string, 0)
		for i, o := range r.session.Outlines() {
			lines = append(lines, fmt.Sprintf("%d. %s\n   %s", i+1, o.Title, o.Description))
		}
		r.console.Box("剧本大纲", strings.Join(lines, "\n"))
	case models.StageStoryDirection:
		lines := make([]string, 0)
		for i, d := range r.session.Directions() {
			lines = append(lines, fmt.Sprintf("%d. %s\n   %s", i+1, d.Title, d.Description))
		}
		r.console.Box("故事走向", strings.Join(lines, "\n"))
	case models.StageEditing:
		r.showScript()
	}
}

func (r *Runner) showScript() {
	versions := r.session.Versions()
	r.console.Box(fmt.Sprintf("当前剧本（共 %d 个版本）", len(versions)), r.session.CurrentScript())
}

func (r *Runner) handleInput(ctx context.Context, input string) {
	switch r.session.Stage() {
	case models.StageInitial:
		r.submitTopic(ctx, input)
	case models.StageOutline:
		index, ok := r.parseChoice(input)
		if !ok {
			return
		}
		_, err := r.Generation.SelectOutline(ctx, r.session, index)
		r.report(err)
	case models.StageStoryDirection:
		index, ok := r.parseChoice(input)
		if !ok {
			return
		}
		r.console.Println("正在生成剧本...")
		_, err := r.Generation.SelectDirection(ctx, r.session, index)
		r.report(err)
	case models.StageEditing:
		r.modify(ctx, func() (*services.TransitionResult, error) {
			return r.Generation.ModifyScript(ctx, r.session, input)
		})
	}
}

func (r *Runner) submitTopic(ctx context.Context, topic string) {
	r.console.Println("正在分析主题并生成大纲...")
	result, err := r.Generation.SubmitTopic(ctx, r.session, topic)
	if err != nil {
		r.report(err)
		return
	}
	if result.Warning != "" {
		r.console.Println("⚠️ " + result.Warning)
	}
	if len(result.Keywords) > 0 {
		r.console.Println("关键词：" + strings.Join(result.Keywords, "、"))
	}
}

// modify 执行改写并在成功后重新展示剧本
func (r *Runner) modify(ctx context.Context, fn func() (*services.TransitionResult, error)) {
	r.console.Println("正在修改剧本...")
	result, err := fn()
	if err != nil {
		r.report(err)
		return
	}
	r.console.Printf("已保存为版本 %d\n", result.VersionNumber)
	r.showScript()
}

// parseChoice 把 1 基序号转为 0 基
func (r *Runner) parseChoice(input string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 {
		r.console.Println("请输入有效的序号")
		return 0, false
	}
	return n - 1, true
}

// handleCommand 处理斜杠命令，返回是否退出
func (r *Runner) handleCommand(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "/exit", "/quit":
		return true
	case "/help":
		r.console.Box("命令", helpText)
	case "/quick":
		r.quickAction(ctx, args)
	case "/versions":
		r.listVersions()
	case "/load":
		if len(args) == 0 {
			r.console.Println("用法：/load N")
			return false
		}
		index, ok := r.parseChoice(args[0])
		if !ok {
			return false
		}
		if _, err := r.Generation.LoadVersion(r.session, index); err != nil {
			r.report(err)
			return false
		}
		r.console.Printf("已加载版本 %d\n", index+1)
		r.showScript()
	case "/analyze":
		r.analyze(ctx)
	case "/export":
		r.export()
	case "/retry":
		r.console.Println("正在重试...")
		result, err := r.Generation.Retry(ctx, r.session)
		if err != nil {
			r.report(err)
			return false
		}
		if result != nil && result.VersionNumber > 0 && r.session.Stage() == models.StageEditing && r.shown == models.StageEditing {
			r.showScript()
		}
	case "/reset":
		answer, ok := r.console.Prompt("确定要清除所有内容和历史版本吗？此操作不可撤销。(y/N) ")
		if !ok {
			return true
		}
		confirmed := strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
		if err := r.Generation.Reset(r.session, confirmed); err != nil {
			if !apperrors.IsType(err, apperrors.ErrorTypeConfirmationRequired) {
				r.report(err)
			}
			return false
		}
		r.shown = ""
		r.console.Println("已清除全部内容")
	default:
		r.console.Println("未知命令，输入 /help 查看可用命令")
	}
	return false
}

func (r *Runner) quickAction(ctx context.Context, args []string) {
	actions := prompts.QuickActions()
	if len(args) == 0 {
		lines := make([]string, 0, len(actions))
		for i, a := range actions {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, a.Name))
		}
		r.console.Box("快捷修改", strings.Join(lines, "\n"))
		return
	}

	index, ok := r.parseChoice(args[0])
	if !ok {
		return
	}
	if index >= len(actions) {
		r.console.Println("请输入有效的序号")
		return
	}
	r.modify(ctx, func() (*services.TransitionResult, error) {
		return r.Generation.QuickAction(ctx, r.session, actions[index].Name)
	})
}

func (r *Runner) listVersions() {
	versions := r.session.Versions()
	if len(versions) == 0 {
		r.console.Println("暂无历史版本")
		return
	}
	lines := make([]string, 0, len(versions))
	for i, v := range versions {
		lines = append(lines, fmt.Sprintf("版本 %d  %s  (%d 字)", i+1, v.Timestamp, len([]rune(v.Content))))
	}
	r.console.Box("历史版本", strings.Join(lines, "\n"))
}

func (r *Runner) analyze(ctx context.Context) {
	r.console.Println("正在分析剧本...")
	report, err := r.Analyzer.AnalyzeSession(ctx, r.session)
	if err != nil {
		r.report(err)
		return
	}
	printReport(r.console, report)
}

func (r *Runner) export() {
	result, err := r.Export.ExportScript(r.session)
	if err != nil {
		r.report(err)
		return
	}
	r.console.Println("剧本已导出：" + result.FilePath)

	if report := r.session.Report(); !report.IsEmpty() {
		if result, err := r.Export.ExportFlowchart(r.session); err == nil {
			r.console.Println("流程图已导出：" + result.FilePath)
		}
		if result, err := r.Export.ExportTerminology(r.session); err == nil {
			r.console.Println("专业词汇已导出：" + result.FilePath)
		}
	}
}

// report 输出错误，模型调用失败时提示重试
func (r *Runner) report(err error) {
	if err == nil {
		return
	}
	var message string
	if appErr := asAppError(err); appErr != nil {
		message = appErr.Message
	} else {
		message = err.Error()
	}
	r.console.Println("❌ " + message)
	if apperrors.IsType(err, apperrors.ErrorTypeLLM) {
		r.console.Println("输入 /retry 重试")
	}
}

// printReport 输出统计、流程图和专业词汇
func printReport(console *Console, report *models.AnalysisReport) {
	stats := report.Stats
	console.Box("剧本统计", fmt.Sprintf("总字数：%d\n场景数：%d\n角色数：%d\n专业词汇：%d",
		stats.WordCount, stats.SceneCount, stats.CharacterCount, stats.TermCount))

	lines := make([]string, 0, len(report.Flowchart))
	for i, node := range report.Flowchart {
		lines = append(lines, fmt.Sprintf("%d. [%s] %s", i+1, node.Type, node.Title))
	}
	console.Box("剧情流程", strings.Join(lines, "\n"))

	lines = lines[:0]
	for _, entry := range report.Terminology {
		lines = append(lines, fmt.Sprintf("%s (出现%d次)：%s", entry.Term, entry.Frequency, entry.Description))
	}
	console.Box("专业词汇", strings.Join(lines, "\n"))
}
