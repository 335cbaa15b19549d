// internal/services/analyzer_service.go
package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/Corphon/HealthScriptMCP/internal/errors"
	"github.com/Corphon/HealthScriptMCP/internal/llm"
	"github.com/Corphon/HealthScriptMCP/internal/models"
	"github.com/Corphon/HealthScriptMCP/internal/parser"
	"github.com/Corphon/HealthScriptMCP/internal/prompts"
	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

const (
	maxConcurrentAnalyses = 3
	analysisCacheTTL      = 30 * time.Minute
	asyncAnalysisTimeout  = 5 * time.Minute
)

// AnalyzerService 剧本分析：流程图、专业词汇、统计三项并行
type AnalyzerService struct {
	completer llm.Completer
	prompts   *prompts.Set
	sessions  *SessionService
	locks     *LockManager
	progress  *ProgressService
	events    EventPublisher
	logger    *zap.Logger
	now       func() time.Time

	semaphore     chan struct{}
	analysisCache *gocache.Cache
}

// NewAnalyzerService 创建分析服务
func NewAnalyzerService(completer llm.Completer, promptSet *prompts.Set, sessions *SessionService, locks *LockManager, progress *ProgressService, events EventPublisher) *AnalyzerService {
	if promptSet == nil {
		promptSet = prompts.Default()
	}
	if progress == nil {
		progress = NewProgressService()
	}
	if events == nil {
		events = NopPublisher{}
	}

	return &AnalyzerService{
		completer:     completer,
		prompts:       promptSet,
		sessions:      sessions,
		locks:         locks,
		progress:      progress,
		events:        events,
		logger:        utils.GetLogger().Named("analyzer"),
		now:           time.Now,
		semaphore:     make(chan struct{}, maxConcurrentAnalyses),
		analysisCache: gocache.New(analysisCacheTTL, 2*analysisCacheTTL),
	}
}

// Analyze 分析一段剧本文本；模型子任务失败时使用本地降级结果
func (s *AnalyzerService) Analyze(ctx context.Context, script string) (*models.AnalysisReport, error) {
	return s.analyze(ctx, script, nil)
}

func (s *AnalyzerService) analyze(ctx context.Context, script string, tracker *ProgressTracker) (*models.AnalysisReport, error) {
	if strings.TrimSpace(script) == "" {
		return nil, apperrors.NewNoActiveScriptError("请先生成剧本")
	}

	cacheKey := s.generateCacheKey(script)
	if cached, ok := s.analysisCache.Get(cacheKey); ok {
		s.logger.Debug("使用缓存的分析结果", zap.String("key", cacheKey))
		report := copyReport(cached.(*models.AnalysisReport))
		report.AnalyzedAt = s.now()
		return report, nil
	}

	// 获取并发许可
	select {
	case s.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.semaphore }()

	var (
		flowchart           []models.FlowchartNode
		terminology         []models.TerminologyEntry
		stats               models.ScriptStats
		flowchartFallback   bool
		terminologyFallback bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		flowchart, flowchartFallback = s.analyzeFlowchart(gctx, script)
		advance(tracker, 30, "流程图分析完成")
		return nil
	})
	g.Go(func() error {
		terminology, terminologyFallback = s.extractTerminology(gctx, script)
		advance(tracker, 30, "专业词汇提取完成")
		return nil
	})
	g.Go(func() error {
		stats = ComputeStats(script, 0)
		advance(tracker, 10, "统计计算完成")
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats.TermCount = len(terminology)
	report := &models.AnalysisReport{
		Flowchart:           flowchart,
		Terminology:         terminology,
		Stats:               stats,
		AnalyzedAt:          s.now(),
		FlowchartFallback:   flowchartFallback,
		TerminologyFallback: terminologyFallback,
	}

	// 降级结果不缓存，模型恢复后下一次分析重新调用
	if !flowchartFallback && !terminologyFallback {
		s.analysisCache.SetDefault(cacheKey, copyReport(report))
	}
	return report, nil
}

func (s *AnalyzerService) analyzeFlowchart(ctx context.Context, script string) ([]models.FlowchartNode, bool) {
	raw, err := s.completer.Complete(ctx, llm.SystemAndUser(s.prompts.Get(prompts.FlowchartAnalysis), script))
	if err != nil {
		s.logger.Warn("流程图分析失败，使用默认分段", zap.Error(err))
		utils.RecordAnalysisFallback("flowchart")
		return parser.DefaultFlowchart(script), true
	}

	res := parser.ParseFlowchart(raw, script)
	utils.RecordParserTier("flowchart", string(res.Tier))
	return res.Items, res.Tier == parser.TierFallback
}

func (s *AnalyzerService) extractTerminology(ctx context.Context, script string) ([]models.TerminologyEntry, bool) {
	raw, err := s.completer.Complete(ctx, llm.SystemAndUser(s.prompts.Get(prompts.TerminologyExtraction), script))
	if err != nil {
		s.logger.Warn("专业词汇提取失败，使用内置词表", zap.Error(err))
		utils.RecordAnalysisFallback("terminology")
		return parser.DefaultTerminology(script), true
	}

	res := parser.ParseTerminology(raw, script)
	utils.RecordParserTier("terminology", string(res.Tier))
	return res.Items, res.Tier == parser.TierFallback
}

// AnalyzeSession 分析会话的当前剧本并保存报告
func (s *AnalyzerService) AnalyzeSession(ctx context.Context, sess *Session) (*models.AnalysisReport, error) {
	return s.analyzeSession(ctx, sess, nil)
}

// AnalyzeSessionAsync 后台分析，返回任务 ID，进度通过 ProgressService 查询
func (s *AnalyzerService) AnalyzeSessionAsync(sess *Session) (string, error) {
	if err := requireScript(sess); err != nil {
		return "", err
	}
	if s.locks.IsBusy(sess.ID) {
		return "", apperrors.NewConflictError("当前会话有操作正在进行，请稍后再试", nil)
	}

	taskID := uuid.NewString()
	tracker := s.progress.CreateTracker(taskID, sess.ID)
	tracker.UpdateProgress(5, "开始分析剧本...")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncAnalysisTimeout)
		defer cancel()

		report, err := s.analyzeSession(ctx, sess, tracker)
		if err != nil {
			tracker.Fail(err.Error())
			return
		}
		tracker.Complete("分析完成", report)
	}()

	return taskID, nil
}

// Progress 查询异步分析任务
func (s *AnalyzerService) Progress(taskID string) (*ProgressTracker, bool) {
	return s.progress.GetTracker(taskID)
}

func (s *AnalyzerService) analyzeSession(ctx context.Context, sess *Session, tracker *ProgressTracker) (*models.AnalysisReport, error) {
	var report *models.AnalysisReport

	err := s.locks.TryExecute(sess.ID, func() error {
		if err := requireScript(sess); err != nil {
			return err
		}

		r, err := s.analyze(ctx, sess.CurrentScript(), tracker)
		if err != nil {
			return err
		}

		sess.mutate(func() {
			sess.report = copyReport(r)
		})
		if s.sessions != nil {
			if err := s.sessions.Save(sess); err != nil {
				s.logger.Error("保存分析报告失败", zap.String("session_id", sess.ID), zap.Error(err))
			}
		}
		s.events.Publish(newEvent(models.EventAnalysisComplete, sess, "剧本分析完成", r.Stats))
		report = r
		return nil
	})

	status := "success"
	if err != nil {
		status = string(apperrors.TypeOf(err))
		if status == "" {
			status = "error"
		}
	}
	utils.RecordTransition("analyze", status)
	return report, err
}

func requireScript(sess *Session) error {
	state := sess.State()
	if !state.Stage.HasScript() || strings.TrimSpace(state.CurrentScript) == "" {
		return apperrors.NewNoActiveScriptError("请先生成剧本")
	}
	return nil
}

func advance(tracker *ProgressTracker, delta int, message string) {
	if tracker != nil {
		tracker.Advance(delta, message)
	}
}

// generateCacheKey 以剧本内容的哈希为缓存键
func (s *AnalyzerService) generateCacheKey(script string) string {
	sum := md5.Sum([]byte(script))
	return hex.EncodeToString(sum[:])
}
