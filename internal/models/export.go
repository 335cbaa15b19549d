// internal/models/export.go
package models

import (
	"time"
)

// ExportType 导出内容种类
type ExportType string

const (
	ExportScript      ExportType = "script"
	ExportVersion     ExportType = "version"
	ExportFlowchart   ExportType = "flowchart"
	ExportTerminology ExportType = "terminology"
)

// ExportResult 导出结果
type ExportResult struct {
	SessionID   string     `json:"session_id"`
	ExportType  ExportType `json:"export_type"`
	Filename    string     `json:"filename"`
	Content     string     `json:"content"`
	GeneratedAt time.Time  `json:"generated_at"`
	FilePath    string     `json:"file_path,omitempty"` // 导出文件路径
	FileSize    int64      `json:"file_size"`           // 文件大小
}
