// internal/cli/analyze.go
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Corphon/HealthScriptMCP/internal/models"
	"github.com/Corphon/HealthScriptMCP/internal/services"
	"github.com/Corphon/HealthScriptMCP/internal/storage"
)

type analyzeOptions struct {
	outDir string
}

func newAnalyzeCommand(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <script-file>",
		Short: "分析已有剧本并导出流程图与专业词汇",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("文件读取失败：%w", err)
			}

			_, svc, err := bootstrap(root)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.Analyzer.Analyze(cmd.Context(), string(data))
			if err != nil {
				return err
			}

			console := NewConsole(cmd.InOrStdin(), cmd.OutOrStdout())
			printReport(console, report)

			if opts.outDir == "" {
				return nil
			}
			paths, err := exportReport(opts.outDir, report)
			if err != nil {
				return err
			}
			for _, p := range paths {
				console.Println("已导出：" + p)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "导出目录，留空则只打印结果")
	return cmd
}

// exportReport 把流程图与专业词汇写入 dir
func exportReport(dir string, report *models.AnalysisReport) ([]string, error) {
	fs, err := storage.NewFileStorage(dir)
	if err != nil {
		return nil, err
	}
	export := services.NewExportService(fs, "")

	flowchart, err := export.ExportFlowchartReport("", report)
	if err != nil {
		return nil, err
	}
	paths := []string{flowchart.FilePath}

	// 未识别出专业词汇时只导出流程图
	if terms, err := export.ExportTerminologyReport("", report); err == nil {
		paths = append(paths, terms.FilePath)
	}
	return paths, nil
}
