// internal/services/export_service.go
package services

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/Corphon/HealthScriptMCP/internal/errors"
	"github.com/Corphon/HealthScriptMCP/internal/models"
	"github.com/Corphon/HealthScriptMCP/internal/storage"
	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

// DefaultExportDir 导出文件相对存储根目录的位置
const DefaultExportDir = "exports"

const (
	exportDateLayout     = "2006-01-02"
	flowchartRuleWidth   = 30
	terminologyRuleWidth = 40
)

// ExportService 生成剧本、版本、流程图、专业词汇的文本导出
type ExportService struct {
	storage *storage.FileStorage
	dir     string
	now     func() time.Time
	logger  *zap.Logger
}

// NewExportService fs 为 nil 时只生成内容不落盘；dir 为空时直接写在存储根目录下
func NewExportService(fs *storage.FileStorage, dir string) *ExportService {
	return &ExportService{
		storage: fs,
		dir:     dir,
		now:     time.Now,
		logger:  utils.GetLogger().Named("export"),
	}
}

// ExportScript 导出当前剧本
func (s *ExportService) ExportScript(sess *Session) (*models.ExportResult, error) {
	return s.ExportScriptText(sess.ID, sess.CurrentScript())
}

// ExportScriptText 导出任意剧本文本，ownerID 决定保存的子目录
func (s *ExportService) ExportScriptText(ownerID, script string) (*models.ExportResult, error) {
	if strings.TrimSpace(script) == "" {
		return nil, apperrors.NewNoContentToExportError("没有可下载的剧本")
	}
	filename := fmt.Sprintf("健康科普剧本_%s.txt", s.now().Format(exportDateLayout))
	return s.write(ownerID, models.ExportScript, filename, script)
}

// ExportVersion 导出历史版本，index 从 0 开始
func (s *ExportService) ExportVersion(sess *Session, index int) (*models.ExportResult, error) {
	versions := sess.Versions()
	if index < 0 || index >= len(versions) {
		return nil, apperrors.NewNotFoundError("找不到指定版本", nil)
	}
	version := versions[index]
	return s.write(sess.ID, models.ExportVersion, VersionFilename(index, version.Timestamp), version.Content)
}

// ExportFlowchart 导出会话最近一次分析的流程图
func (s *ExportService) ExportFlowchart(sess *Session) (*models.ExportResult, error) {
	return s.ExportFlowchartReport(sess.ID, sess.Report())
}

// ExportFlowchartReport 导出流程图与统计信息
func (s *ExportService) ExportFlowchartReport(ownerID string, report *models.AnalysisReport) (*models.ExportResult, error) {
	if report == nil || len(report.Flowchart) == 0 {
		return nil, apperrors.NewNoContentToExportError("没有可导出的流程图数据")
	}
	filename := fmt.Sprintf("剧本流程图_%s.txt", s.now().Format(exportDateLayout))
	return s.write(ownerID, models.ExportFlowchart, filename, FormatFlowchart(report))
}

// ExportTerminology 导出会话最近一次分析的专业词汇
func (s *ExportService) ExportTerminology(sess *Session) (*models.ExportResult, error) {
	return s.ExportTerminologyReport(sess.ID, sess.Report())
}

// ExportTerminologyReport 导出专业词汇解析
func (s *ExportService) ExportTerminologyReport(ownerID string, report *models.AnalysisReport) (*models.ExportResult, error) {
	if report == nil || len(report.Terminology) == 0 {
		return nil, apperrors.NewNoContentToExportError("没有可导出的专业词汇数据")
	}
	filename := fmt.Sprintf("专业词汇解析_%s.txt", s.now().Format(exportDateLayout))
	return s.write(ownerID, models.ExportTerminology, filename, FormatTerminology(report.Terminology))
}

// VersionFilename 版本导出文件名，时间戳中的 / 和 : 替换为 -
func VersionFilename(index int, timestamp string) string {
	safe := strings.NewReplacer("/", "-", ":", "-").Replace(timestamp)
	return fmt.Sprintf("健康科普剧本_版本%d_%s.txt", index+1, safe)
}

// FormatFlowchart 流程图文本：编号节点加统计信息
func FormatFlowchart(report *models.AnalysisReport) string {
	var b strings.Builder
	b.WriteString("健康科普剧本流程图\n")
	b.WriteString(strings.Repeat("=", flowchartRuleWidth) + "\n\n")

	for i, node := range report.Flowchart {
		fmt.Fprintf(&b, "%d. %s\n", i+1, node.Title)
		fmt.Fprintf(&b, "   %s\n\n", node.Description)
	}

	b.WriteString("\n统计信息：\n")
	fmt.Fprintf(&b, "总字数：%d\n", report.Stats.WordCount)
	fmt.Fprintf(&b, "场景数：%d\n", report.Stats.SceneCount)
	fmt.Fprintf(&b, "角色数：%d\n", report.Stats.CharacterCount)
	fmt.Fprintf(&b, "专业词汇：%d\n", report.Stats.TermCount)
	return b.String()
}

// FormatTerminology 专业词汇文本，每条附带搜索链接
func FormatTerminology(entries []models.TerminologyEntry) string {
	var b strings.Builder
	b.WriteString("健康科普剧本专业词汇解析\n")
	b.WriteString(strings.Repeat("=", terminologyRuleWidth) + "\n\n")

	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. %s (出现%d次)\n", i+1, entry.Term, entry.Frequency)
		fmt.Fprintf(&b, "   %s\n", entry.Description)
		fmt.Fprintf(&b, "   搜索链接：%s\n\n", SearchLink(entry.Term))
	}
	return b.String()
}

// SearchLink 术语的百度搜索链接
func SearchLink(term string) string {
	return "https://www.baidu.com/s?wd=" + encodeURIComponent(term) + "%20医学%20健康"
}

// uriComponentUnescapes 浏览器 encodeURIComponent 保留原样的字符
var uriComponentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeURIComponent 与浏览器一致：空格为 %20，!'()* 不转义
func encodeURIComponent(s string) string {
	return uriComponentUnescapes.Replace(url.QueryEscape(s))
}

func (s *ExportService) write(ownerID string, exportType models.ExportType, filename, content string) (*models.ExportResult, error) {
	result := &models.ExportResult{
		SessionID:   ownerID,
		ExportType:  exportType,
		Filename:    filename,
		Content:     content,
		GeneratedAt: s.now(),
		FileSize:    int64(len(content)),
	}

	if s.storage == nil {
		return result, nil
	}

	dir := filepath.Join(s.dir, ownerID)
	if err := s.storage.SaveTextFile(dir, filename, []byte(content)); err != nil {
		return nil, apperrors.NewProcessingError("保存导出文件失败", err)
	}
	result.FilePath = s.storage.Path(dir, filename)

	s.logger.Info("导出完成",
		zap.String("owner", ownerID),
		zap.String("type", string(exportType)),
		zap.String("path", result.FilePath))
	return result, nil
}
