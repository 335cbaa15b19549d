// internal/cli/generate.go
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type generateOptions struct {
	topic string
	file  string
}

func newGenerateCommand(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "交互式生成健康科普剧本",
		Long: `从健康主题开始，依次选择剧本大纲与故事走向，生成剧本后可继续修改、
分析和导出。输入 /help 查看编辑阶段可用的命令。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.topic != "" && opts.file != "" {
				return fmt.Errorf("--topic 与 --file 只能指定一个")
			}

			_, svc, err := bootstrap(root)
			if err != nil {
				return err
			}
			defer svc.Close()

			sess, err := svc.Sessions.Create()
			if err != nil {
				return err
			}

			console := NewConsole(cmd.InOrStdin(), cmd.OutOrStdout())
			runner := NewRunner(console, sess, svc.Generation, svc.Analyzer, svc.Export)

			topic := opts.topic
			if opts.file != "" {
				f, err := os.Open(opts.file)
				if err != nil {
					return fmt.Errorf("文件读取失败：%w", err)
				}
				_, err = svc.Generation.SubmitTopicFile(cmd.Context(), sess, opts.file, f)
				f.Close()
				if err != nil {
					runner.report(err)
				}
			}

			console.Printf("会话 %s 已创建，输入 /help 查看命令\n", sess.ID)
			return runner.Run(cmd.Context(), strings.TrimSpace(topic))
		},
	}

	cmd.Flags().StringVarP(&opts.topic, "topic", "t", "", "健康主题")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "从 .txt 或 .md 文件读取主题")
	return cmd
}
