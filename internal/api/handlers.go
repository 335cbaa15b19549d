// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/Corphon/HealthScriptMCP/internal/errors"
	"github.com/Corphon/HealthScriptMCP/internal/llm"
	"github.com/Corphon/HealthScriptMCP/internal/models"
	"github.com/Corphon/HealthScriptMCP/internal/prompts"
	"github.com/Corphon/HealthScriptMCP/internal/services"
	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

// Handler 处理 API 请求
type Handler struct {
	Sessions   *services.SessionService
	Generation *services.GenerationService
	Analyzer   *services.AnalyzerService
	Export     *services.ExportService
	LLM        *services.LLMService
	Progress   *services.ProgressService
	WS         *WebSocketManager
	Response   *ResponseHelper

	logger *zap.Logger
}

// NewHandler 创建 API 处理器
func NewHandler(
	sessions *services.SessionService,
	generation *services.GenerationService,
	analyzer *services.AnalyzerService,
	export *services.ExportService,
	llmService *services.LLMService,
	progress *services.ProgressService,
	ws *WebSocketManager,
) *Handler {
	return &Handler{
		Sessions:   sessions,
		Generation: generation,
		Analyzer:   analyzer,
		Export:     export,
		LLM:        llmService,
		Progress:   progress,
		WS:         ws,
		Response:   NewResponseHelper(),
		logger:     utils.GetLogger().Named("api"),
	}
}

// SessionView 会话对外视图
type SessionView struct {
	ID            string                   `json:"id"`
	State         models.GenerationState   `json:"state"`
	Outlines      []models.Outline         `json:"outlines"`
	Directions    []models.Direction       `json:"directions"`
	Versions      []models.ScriptVersion   `json:"versions"`
	Keywords      []string                 `json:"keywords"`
	Report        *models.AnalysisReport   `json:"report,omitempty"`
	PendingAction *models.ReplayableAction `json:"pending_action,omitempty"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

func newSessionView(sess *services.Session) SessionView {
	return SessionView{
		ID:            sess.ID,
		State:         sess.State(),
		Outlines:      sess.Outlines(),
		Directions:    sess.Directions(),
		Versions:      sess.Versions(),
		Keywords:      sess.Keywords(),
		Report:        sess.Report(),
		PendingAction: sess.PendingAction(),
		UpdatedAt:     sess.UpdatedAt(),
	}
}

// session 解析路径中的会话，失败时已写出响应
func (h *Handler) session(c *gin.Context) (*services.Session, bool) {
	sess, err := h.Sessions.Get(c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err)
		return nil, false
	}
	return sess, true
}

// bind 解析 JSON 请求体，失败时已写出响应
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.Response.BadRequest(c, "请求参数无效", err.Error())
		return false
	}
	return true
}

// pathIndex 读取路径中的 0 基序号
func (h *Handler) pathIndex(c *gin.Context, name string) (int, bool) {
	index, err := strconv.Atoi(c.Param(name))
	if err != nil {
		h.Response.BadRequest(c, "序号必须是整数", err.Error())
		return 0, false
	}
	return index, true
}

// transition 统一输出状态转换结果
func (h *Handler) transition(c *gin.Context, result *services.TransitionResult, err error, message string) {
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, result, message)
}

// ===============================
// 会话
// ===============================

// CreateSession 新建会话
func (h *Handler) CreateSession(c *gin.Context) {
	sess, err := h.Sessions.Create()
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Created(c, newSessionView(sess), "会话已创建")
}

// ListSessions 列出全部会话 ID
func (h *Handler) ListSessions(c *gin.Context) {
	ids, err := h.Sessions.List()
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"sessions": ids, "total": len(ids)})
}

// GetSession 查看会话
func (h *Handler) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.Response.Success(c, newSessionView(sess))
}

// DeleteSession 删除会话
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.Sessions.Delete(c.Param("id")); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, nil, "会话已删除")
}

// ===============================
// 生成流程
// ===============================

type topicRequest struct {
	Topic string `json:"topic"`
}

type indexRequest struct {
	Index *int `json:"index" binding:"required"`
}

type instructionRequest struct {
	Instruction string `json:"instruction"`
}

type quickActionRequest struct {
	Action string `json:"action" binding:"required"`
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

// SubmitTopic 提交健康主题
func (h *Handler) SubmitTopic(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req topicRequest
	if !h.bind(c, &req) {
		return
	}
	result, err := h.Generation.SubmitTopic(c.Request.Context(), sess, req.Topic)
	h.transition(c, result, err, "大纲已生成")
}

// UploadTopicFile 上传 .txt/.md 文件作为主题
func (h *Handler) UploadTopicFile(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxTopicFileSize+64<<10)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "文件上传失败", err.Error())
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		// 上传内容已落到服务端临时文件，打开失败属于服务端问题
		h.Response.InternalError(c, "文件读取失败", err.Error())
		return
	}
	defer file.Close()

	result, err := h.Generation.SubmitTopicFile(c.Request.Context(), sess, fileHeader.Filename, file)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeValidation {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, appErr.Message)
		return
	}
	h.transition(c, result, err, "大纲已生成")
}

// SelectOutline 选择大纲
func (h *Handler) SelectOutline(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req indexRequest
	if !h.bind(c, &req) {
		return
	}
	result, err := h.Generation.SelectOutline(c.Request.Context(), sess, *req.Index)
	h.transition(c, result, err, "故事走向已生成")
}

// SelectDirection 选择故事走向并生成剧本
func (h *Handler) SelectDirection(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req indexRequest
	if !h.bind(c, &req) {
		return
	}
	result, err := h.Generation.SelectDirection(c.Request.Context(), sess, *req.Index)
	h.transition(c, result, err, "剧本已生成")
}

// ModifyScript 按修改建议改写剧本
func (h *Handler) ModifyScript(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req instructionRequest
	if !h.bind(c, &req) {
		return
	}
	result, err := h.Generation.ModifyScript(c.Request.Context(), sess, req.Instruction)
	h.transition(c, result, err, "剧本已更新")
}

// QuickAction 执行快捷修改
func (h *Handler) QuickAction(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req quickActionRequest
	if !h.bind(c, &req) {
		return
	}
	result, err := h.Generation.QuickAction(c.Request.Context(), sess, req.Action)
	h.transition(c, result, err, "剧本已更新")
}

// ListQuickActions 列出快捷修改
func (h *Handler) ListQuickActions(c *gin.Context) {
	h.Response.Success(c, prompts.QuickActions())
}

// Retry 重放最近一次失败的操作
func (h *Handler) Retry(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	result, err := h.Generation.Retry(c.Request.Context(), sess)
	h.transition(c, result, err, "重试成功")
}

// ResetSession 清除全部内容，需要确认
func (h *Handler) ResetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req resetRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	if err := h.Generation.Reset(sess, req.Confirm); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, newSessionView(sess), "会话已重置")
}

// ===============================
// 版本
// ===============================

// ListVersions 版本历史
func (h *Handler) ListVersions(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.Response.Success(c, sess.Versions())
}

// LoadVersion 将历史版本设为当前剧本
func (h *Handler) LoadVersion(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	index, ok := h.pathIndex(c, "index")
	if !ok {
		return
	}
	result, err := h.Generation.LoadVersion(sess, index)
	h.transition(c, result, err, fmt.Sprintf("已加载版本 %d", index+1))
}

// ===============================
// 关键词
// ===============================

type keywordRequest struct {
	Keyword string `json:"keyword"`
}

type referenceRequest struct {
	Kind  string `json:"kind" binding:"required"`
	Value string `json:"value"`
}

// AddKeyword 添加关键词
func (h *Handler) AddKeyword(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req keywordRequest
	if !h.bind(c, &req) {
		return
	}
	keywords, err := h.Generation.AddKeyword(sess, req.Keyword)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, keywords)
}

// RemoveKeyword 删除关键词
func (h *Handler) RemoveKeyword(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	keywords, err := h.Generation.RemoveKeyword(sess, c.Param("keyword"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, keywords)
}

// AddReference 从参考选项添加关键词
func (h *Handler) AddReference(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req referenceRequest
	if !h.bind(c, &req) {
		return
	}
	keywords, err := h.Generation.AddReference(sess, services.ReferenceKind(req.Kind), req.Value)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, keywords)
}

// ===============================
// 分析
// ===============================

// AnalyzeScript 分析当前剧本；async=true 时立即返回任务 ID
func (h *Handler) AnalyzeScript(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		taskID, err := h.Analyzer.AnalyzeSessionAsync(sess)
		if err != nil {
			h.Response.HandleError(c, err)
			return
		}
		h.Response.Accepted(c, gin.H{
			"task_id":      taskID,
			"progress_url": "/api/progress/" + taskID,
		}, "分析已开始，请订阅进度更新")
		return
	}

	report, err := h.Analyzer.AnalyzeSession(c.Request.Context(), sess)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, report, "分析完成")
}

// GetAnalysis 最近一次分析报告
func (h *Handler) GetAnalysis(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	report := sess.Report()
	if report == nil {
		h.Response.NotFound(c, ErrorNotFound, "尚未进行剧本分析")
		return
	}
	h.Response.Success(c, report)
}

// GetTaskProgress 查询任务进度快照
func (h *Handler) GetTaskProgress(c *gin.Context) {
	tracker, exists := h.Progress.GetTracker(c.Param("taskID"))
	if !exists {
		h.Response.NotFound(c, ErrorTaskNotFound, "任务不存在")
		return
	}
	h.Response.Success(c, tracker.Snapshot())
}

// SubscribeProgress 订阅任务进度的SSE端点
func (h *Handler) SubscribeProgress(c *gin.Context) {
	tracker, exists := h.Progress.GetTracker(c.Param("taskID"))
	if !exists {
		h.Response.NotFound(c, ErrorTaskNotFound, "任务不存在")
		return
	}

	// 设置SSE响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()

	updateChan := tracker.Subscribe()
	defer tracker.Unsubscribe(updateChan)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	// 先发送当前快照，已结束的任务直接返回
	current := tracker.Snapshot()
	writeSSE(c, "progress", current)
	if current.Status != services.ProgressRunning {
		return
	}

	for {
		select {
		case <-clientGone:
			return
		case update, ok := <-updateChan:
			if !ok {
				return
			}
			writeSSE(c, "progress", update)
			if update.Status != services.ProgressRunning {
				return
			}
		case <-ticker.C:
			writeSSE(c, "heartbeat", gin.H{"time": time.Now().Unix()})
		}
	}
}

func writeSSE(c *gin.Context, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	c.Writer.Flush()
}

// ===============================
// 导出
// ===============================

// ExportScript 导出当前剧本
func (h *Handler) ExportScript(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	result, err := h.Export.ExportScript(sess)
	h.export(c, result, err)
}

// ExportVersion 导出指定历史版本
func (h *Handler) ExportVersion(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	index, ok := h.pathIndex(c, "index")
	if !ok {
		return
	}
	result, err := h.Export.ExportVersion(sess, index)
	h.export(c, result, err)
}

// ExportFlowchart 导出流程图分析
func (h *Handler) ExportFlowchart(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	result, err := h.Export.ExportFlowchart(sess)
	h.export(c, result, err)
}

// ExportTerminology 导出专业词汇表
func (h *Handler) ExportTerminology(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	result, err := h.Export.ExportTerminology(sess)
	h.export(c, result, err)
}

func (h *Handler) export(c *gin.Context, result *models.ExportResult, err error) {
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.ExportResponse(c, result, c.Query("format"))
}

// ===============================
// 模型配置
// ===============================

type llmConfigRequest struct {
	Provider string            `json:"provider" binding:"required"`
	Config   map[string]string `json:"config"`
}

// GetLLMStatus 模型服务状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	h.Response.Success(c, h.LLM.Status())
}

// GetLLMProviders 可用提供者及其模型
func (h *Handler) GetLLMProviders(c *gin.Context) {
	providers := llm.ListProviders()
	out := make([]gin.H, 0, len(providers))
	for _, name := range providers {
		out = append(out, gin.H{
			"name":   name,
			"models": llm.GetSupportedModelsForProvider(name),
		})
	}
	h.Response.Success(c, out)
}

// UpdateLLMConfig 切换模型提供者
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req llmConfigRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.LLM.UpdateProvider(strings.TrimSpace(req.Provider), req.Config); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, "模型配置无效", err.Error())
		return
	}
	h.Response.Success(c, h.LLM.Status(), "模型配置已更新")
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"status":          "ok",
		"llm_ready":       h.LLM.IsReady(),
		"active_sessions": h.Sessions.ActiveCount(),
		"websocket":       h.WS.GetStatus()["total_connections"],
	})
}
