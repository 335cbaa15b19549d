// internal/services/generation_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	apperrors "github.com/Corphon/HealthScriptMCP/internal/errors"
	"github.com/Corphon/HealthScriptMCP/internal/llm"
	"github.com/Corphon/HealthScriptMCP/internal/models"
	"github.com/Corphon/HealthScriptMCP/internal/parser"
	"github.com/Corphon/HealthScriptMCP/internal/prompts"
	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

// MaxTopicFileSize 主题文件大小上限
const MaxTopicFileSize = 1 << 20

// ReferenceKind 参考选项类别
type ReferenceKind string

const (
	ReferenceKeyword ReferenceKind = "keyword"
	ReferenceType    ReferenceKind = "type"
	ReferenceStyle   ReferenceKind = "style"
)

// TransitionResult 一次状态转换的结果
type TransitionResult struct {
	Stage         models.Stage       `json:"stage"`
	Outlines      []models.Outline   `json:"outlines,omitempty"`
	Directions    []models.Direction `json:"directions,omitempty"`
	Script        string             `json:"script,omitempty"`
	VersionNumber int                `json:"version_number,omitempty"`
	Keywords      []string           `json:"keywords,omitempty"`
	Warning       string             `json:"warning,omitempty"`
	ParseTier     parser.Tier        `json:"parse_tier,omitempty"`
}

// GenerationService 主题 → 大纲 → 走向 → 剧本 → 编辑 的状态机
type GenerationService struct {
	completer llm.Completer
	prompts   *prompts.Set
	sessions  *SessionService
	locks     *LockManager
	events    EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewGenerationService 创建生成服务
func NewGenerationService(completer llm.Completer, promptSet *prompts.Set, sessions *SessionService, locks *LockManager, events EventPublisher) *GenerationService {
	if promptSet == nil {
		promptSet = prompts.Default()
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &GenerationService{
		completer: completer,
		prompts:   promptSet,
		sessions:  sessions,
		locks:     locks,
		events:    events,
		logger:    utils.GetLogger().Named("generation"),
		now:       time.Now,
	}
}

// SubmitTopic 提交健康主题，提取关键词并生成大纲候选
func (g *GenerationService) SubmitTopic(ctx context.Context, s *Session, topic string) (*TransitionResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, apperrors.NewEmptyInputError("请输入健康相关的主题或上传文件")
	}

	action := models.ReplayableAction{Kind: models.ActionSubmitTopic, Topic: topic}
	return g.runTransition(s, action, func() (*TransitionResult, error) {
		return g.submitTopic(ctx, s, topic)
	})
}

// SubmitTopicFile 读取 .txt / .md 文件内容作为主题
func (g *GenerationService) SubmitTopicFile(ctx context.Context, s *Session, filename string, r io.Reader) (*TransitionResult, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".txt" && ext != ".md" {
		return nil, apperrors.NewValidationError("仅支持 .txt 或 .md 文件", nil)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxTopicFileSize+1))
	if err != nil {
		return nil, apperrors.NewValidationError("文件读取失败："+err.Error(), err)
	}
	if len(data) > MaxTopicFileSize {
		return nil, apperrors.NewValidationError("文件大小不能超过 1MB", nil)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, apperrors.NewValidationError("文件不是有效的 UTF-8 文本", nil)
	}

	return g.SubmitTopic(ctx, s, string(data))
}

func (g *GenerationService) submitTopic(ctx context.Context, s *Session, topic string) (*TransitionResult, error) {
	keywords := s.keywordsSnapshot()

	var warning string
	extracted, kwErr := g.extractKeywords(ctx, topic)
	if kwErr != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewLLMError("操作已取消", ctx.Err())
		}
		// 关键词提取失败不阻塞大纲生成
		warning = "关键词提取失败：" + kwErr.Error()
		g.logger.Warn("关键词提取失败", zap.String("session_id", s.ID), zap.Error(kwErr))
		g.events.Publish(newEvent(models.EventKeywordWarning, s, warning, nil))
	} else {
		keywords = models.NewHealthKeywords(extracted...)
	}

	raw, err := g.completer.Complete(ctx, llm.SystemAndUser(
		g.prompts.Get(prompts.OutlineGeneration),
		prompts.OutlineContent(topic, keywords),
	))
	if err != nil {
		return nil, apperrors.NewLLMError("生成大纲失败", err)
	}

	parsed := parser.ParseOutlines(raw)
	utils.RecordParserTier("outline", string(parsed.Tier))
	s.mutate(func() {
		s.state = models.GenerationState{Stage: models.StageOutline, SourceTopic: topic}
		s.outlines = parsed.Items
		s.directions = nil
		s.report = nil
		if kwErr == nil {
			s.keywords.Replace(extracted)
		}
	})

	if kwErr == nil {
		g.events.Publish(newEvent(models.EventKeywordsUpdated, s, "", s.Keywords()))
	}
	g.events.Publish(newEvent(models.EventOutlinesReady, s, "已生成大纲预览，请选择您喜欢的方向", parsed.Items))
	g.events.Publish(newEvent(models.EventStageChanged, s, "", nil))

	return &TransitionResult{
		Stage:     models.StageOutline,
		Outlines:  parsed.Items,
		Keywords:  s.Keywords(),
		Warning:   warning,
		ParseTier: parsed.Tier,
	}, nil
}

func (g *GenerationService) extractKeywords(ctx context.Context, topic string) ([]string, error) {
	raw, err := g.completer.Complete(ctx, llm.SystemAndUser(g.prompts.Get(prompts.KeywordAnalysis), topic))
	if err != nil {
		return nil, err
	}
	return parser.ParseKeywords(raw)
}

// SelectOutline 选择大纲并生成故事走向
func (g *GenerationService) SelectOutline(ctx context.Context, s *Session, index int) (*TransitionResult, error) {
	action := models.ReplayableAction{Kind: models.ActionSelectOutline, Index: index}
	return g.runTransition(s, action, func() (*TransitionResult, error) {
		state := s.State()
		if state.Stage != models.StageOutline {
			return nil, apperrors.NewInvalidStageError("请先提交健康主题并生成大纲")
		}
		outlines := s.Outlines()
		if index < 0 || index >= len(outlines) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("无效的大纲序号: %d", index), nil)
		}
		outline := outlines[index]

		raw, err := g.completer.Complete(ctx, llm.SystemAndUser(
			g.prompts.Get(prompts.StoryDirection),
			prompts.DirectionContent(outline, state.SourceTopic, s.keywordsSnapshot()),
		))
		if err != nil {
			return nil, apperrors.NewLLMError("生成故事走向失败", err)
		}

		parsed := parser.ParseDirections(raw)
		utils.RecordParserTier("direction", string(parsed.Tier))
		s.mutate(func() {
			s.state.Stage = models.StageStoryDirection
			s.state.SelectedOutline = &outline
			s.state.SelectedDirection = nil
			s.directions = parsed.Items
		})

		g.events.Publish(newEvent(models.EventDirectionsReady, s, "请选择故事走向", parsed.Items))
		g.events.Publish(newEvent(models.EventStageChanged, s, "", nil))

		return &TransitionResult{
			Stage:      models.StageStoryDirection,
			Directions: parsed.Items,
			ParseTier:  parsed.Tier,
		}, nil
	})
}

// SelectDirection 选择故事走向并生成完整剧本（版本 1）
func (g *GenerationService) SelectDirection(ctx context.Context, s *Session, index int) (*TransitionResult, error) {
	action := models.ReplayableAction{Kind: models.ActionSelectDirection, Index: index}
	return g.runTransition(s, action, func() (*TransitionResult, error) {
		state := s.State()
		if state.Stage != models.StageStoryDirection || state.SelectedOutline == nil {
			return nil, apperrors.NewInvalidStageError("请先选择剧本大纲")
		}
		directions := s.Directions()
		if index < 0 || index >= len(directions) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("无效的故事走向序号: %d", index), nil)
		}
		direction := directions[index]

		script, err := g.completer.Complete(ctx, llm.SystemAndUser(
			g.prompts.Get(prompts.ScriptGeneration),
			prompts.ScriptContent(state.SourceTopic, *state.SelectedOutline, direction, s.keywordsSnapshot()),
		))
		if err != nil {
			return nil, apperrors.NewLLMError("生成剧本失败", err)
		}

		var number int
		s.mutate(func() {
			s.state.SelectedDirection = &direction
			s.state.CurrentScript = script
			s.versions = append(s.versions, models.NewScriptVersion(script, g.now()))
			number = len(s.versions)
			s.state.Stage = models.StageEditing
			s.report = nil
		})

		scriptEvent := newEvent(models.EventStageChanged, s, "已为您生成完整的健康科普剧本", nil)
		scriptEvent.Stage = models.StageScript
		g.events.Publish(scriptEvent)
		g.events.Publish(newEvent(models.EventVersionSaved, s, fmt.Sprintf("版本 %d 已保存", number), number))
		g.events.Publish(newEvent(models.EventStageChanged, s, "", nil))

		return &TransitionResult{
			Stage:         models.StageEditing,
			Script:        script,
			VersionNumber: number,
		}, nil
	})
}

// ModifyScript 按修改建议改写当前剧本并追加版本
func (g *GenerationService) ModifyScript(ctx context.Context, s *Session, instruction string) (*TransitionResult, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, apperrors.NewEmptyInputError("请输入修改建议")
	}

	action := models.ReplayableAction{Kind: models.ActionModifyScript, Instruction: instruction}
	return g.runTransition(s, action, func() (*TransitionResult, error) {
		state := s.State()
		if state.Stage != models.StageEditing || state.CurrentScript == "" {
			return nil, apperrors.NewNoActiveScriptError("请先生成剧本或选择一个剧本版本")
		}

		script, err := g.completer.Complete(ctx, llm.SystemAndUser(
			prompts.ModifySystemPrompt,
			g.prompts.ModifyContent(instruction, state.CurrentScript),
		))
		if err != nil {
			return nil, apperrors.NewLLMError("修改剧本失败", err)
		}

		var number int
		s.mutate(func() {
			s.state.CurrentScript = script
			s.versions = append(s.versions, models.NewScriptVersion(script, g.now()))
			number = len(s.versions)
		})

		g.events.Publish(newEvent(models.EventVersionSaved, s, "已根据您的建议修改", number))

		return &TransitionResult{
			Stage:         models.StageEditing,
			Script:        script,
			VersionNumber: number,
		}, nil
	})
}

// QuickAction 以预置指令修改剧本
func (g *GenerationService) QuickAction(ctx context.Context, s *Session, name string) (*TransitionResult, error) {
	instruction, ok := prompts.QuickActionInstruction(strings.TrimSpace(name))
	if !ok {
		return nil, apperrors.NewValidationError("未知的快捷操作: "+name, nil)
	}
	return g.ModifyScript(ctx, s, instruction)
}

// Retry 以原始输入重放最近一次失败的操作
func (g *GenerationService) Retry(ctx context.Context, s *Session) (*TransitionResult, error) {
	pending := s.PendingAction()
	if pending == nil {
		return nil, apperrors.NewValidationError("没有可重试的操作", nil)
	}

	g.logger.Info("重试操作", zap.String("session_id", s.ID), zap.String("kind", string(pending.Kind)))

	switch pending.Kind {
	case models.ActionSubmitTopic:
		return g.SubmitTopic(ctx, s, pending.Topic)
	case models.ActionSelectOutline:
		return g.SelectOutline(ctx, s, pending.Index)
	case models.ActionSelectDirection:
		return g.SelectDirection(ctx, s, pending.Index)
	case models.ActionModifyScript:
		return g.ModifyScript(ctx, s, pending.Instruction)
	default:
		return nil, apperrors.NewValidationError("未知的操作类型: "+string(pending.Kind), nil)
	}
}

// Reset 清除状态、版本历史、关键词、分析报告和待重试操作
func (g *GenerationService) Reset(s *Session, confirmed bool) error {
	if !confirmed {
		return apperrors.NewConfirmationRequiredError("确定要清除所有内容和历史版本吗？此操作不可撤销。")
	}

	err := g.locks.TryExecute(s.ID, func() error {
		s.mutate(func() {
			s.state = models.NewGenerationState()
			s.outlines = nil
			s.directions = nil
			s.versions = nil
			s.keywords.Clear()
			s.report = nil
			s.pending = nil
		})
		g.save(s)
		g.events.Publish(newEvent(models.EventSessionReset, s, "会话已重置", nil))
		return nil
	})
	if err == nil {
		utils.RecordTransition("reset", "success")
	}
	return err
}

// LoadVersion 将历史版本设为当前剧本，历史本身不变
func (g *GenerationService) LoadVersion(s *Session, index int) (*TransitionResult, error) {
	var result *TransitionResult
	err := g.locks.TryExecute(s.ID, func() error {
		if s.Stage() != models.StageEditing {
			return apperrors.NewInvalidStageError("请先生成剧本")
		}
		versions := s.Versions()
		if index < 0 || index >= len(versions) {
			return apperrors.NewNotFoundError("找不到指定版本", nil)
		}

		content := versions[index].Content
		s.mutate(func() {
			s.state.CurrentScript = content
		})
		g.save(s)
		g.events.Publish(newEvent(models.EventVersionLoaded, s, fmt.Sprintf("已加载版本 %d", index+1), index+1))

		result = &TransitionResult{Stage: models.StageEditing, Script: content, VersionNumber: index + 1}
		return nil
	})
	return result, err
}

// AddKeyword 添加关键词，重复时不做修改
func (g *GenerationService) AddKeyword(s *Session, keyword string) ([]string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, apperrors.NewEmptyInputError("关键词不能为空")
	}

	var added bool
	s.mutate(func() {
		added = s.keywords.Add(keyword)
	})
	if added {
		g.save(s)
		g.events.Publish(newEvent(models.EventKeywordsUpdated, s, "", s.Keywords()))
	}
	return s.Keywords(), nil
}

// RemoveKeyword 删除关键词
func (g *GenerationService) RemoveKeyword(s *Session, keyword string) ([]string, error) {
	var removed bool
	s.mutate(func() {
		removed = s.keywords.Remove(strings.TrimSpace(keyword))
	})
	if !removed {
		return nil, apperrors.NewNotFoundError("关键词不存在", nil)
	}
	g.save(s)
	g.events.Publish(newEvent(models.EventKeywordsUpdated, s, "", s.Keywords()))
	return s.Keywords(), nil
}

// AddReference 把参考关键词、类型或风格加入关键词集合
func (g *GenerationService) AddReference(s *Session, kind ReferenceKind, value string) ([]string, error) {
	switch kind {
	case ReferenceKeyword, ReferenceType, ReferenceStyle:
	default:
		return nil, apperrors.NewValidationError("未知的参考类别: "+string(kind), nil)
	}
	return g.AddKeyword(s, value)
}

// runTransition 在会话锁内执行转换；模型调用失败时记录可重放操作
func (g *GenerationService) runTransition(s *Session, action models.ReplayableAction, fn func() (*TransitionResult, error)) (*TransitionResult, error) {
	var result *TransitionResult

	err := g.locks.TryExecute(s.ID, func() error {
		r, err := fn()
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeLLM) {
				failed := action
				failed.FailedAt = g.now()
				failed.Error = err.Error()
				s.mutate(func() {
					s.pending = &failed
				})
				g.save(s)
				g.events.Publish(newEvent(models.EventOperationFailed, s, err.Error(), failed))
				g.logger.Warn("状态转换失败",
					zap.String("session_id", s.ID),
					zap.String("action", string(action.Kind)),
					zap.Error(err))
			}
			return err
		}

		s.mutate(func() {
			s.pending = nil
		})
		g.save(s)
		result = r
		return nil
	})

	status := "success"
	if err != nil {
		status = string(apperrors.TypeOf(err))
		if status == "" {
			status = "error"
		}
	}
	utils.RecordTransition(string(action.Kind), status)
	return result, err
}

func (g *GenerationService) save(s *Session) {
	if g.sessions == nil {
		return
	}
	if err := g.sessions.Save(s); err != nil {
		g.logger.Error("保存会话快照失败", zap.String("session_id", s.ID), zap.Error(err))
	}
}
