// internal/services/session.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/HealthScriptMCP/internal/models"
)

// Session 一次剧本生成会话：状态、版本历史、关键词、分析报告和待重试操作
type Session struct {
	ID string

	mu         sync.RWMutex
	state      models.GenerationState
	outlines   []models.Outline
	directions []models.Direction
	versions   []models.ScriptVersion
	keywords   *models.HealthKeywords
	report     *models.AnalysisReport
	pending    *models.ReplayableAction
	createdAt  time.Time
	updatedAt  time.Time
}

// NewSession 创建初始状态的会话
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		state:     models.NewGenerationState(),
		keywords:  models.NewHealthKeywords(),
		createdAt: now,
		updatedAt: now,
	}
}

// SessionFromSnapshot 从持久化数据恢复
func SessionFromSnapshot(snap models.SessionSnapshot) *Session {
	s := &Session{
		ID:         snap.ID,
		state:      copyState(snap.State),
		outlines:   append([]models.Outline(nil), snap.Outlines...),
		directions: append([]models.Direction(nil), snap.Directions...),
		versions:   append([]models.ScriptVersion(nil), snap.Versions...),
		keywords:   models.NewHealthKeywords(snap.Keywords...),
		report:     copyReport(snap.Report),
		createdAt:  snap.CreatedAt,
		updatedAt:  snap.UpdatedAt,
	}
	if s.state.Stage == "" {
		s.state.Stage = models.StageInitial
	}
	if snap.PendingAction != nil {
		p := *snap.PendingAction
		s.pending = &p
	}
	return s
}

// Snapshot 深拷贝当前会话
func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.SessionSnapshot{
		ID:         s.ID,
		State:      copyState(s.state),
		Outlines:   append([]models.Outline(nil), s.outlines...),
		Directions: append([]models.Direction(nil), s.directions...),
		Versions:   append([]models.ScriptVersion{}, s.versions...),
		Keywords:   s.keywords.List(),
		Report:     copyReport(s.report),
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	if s.pending != nil {
		p := *s.pending
		snap.PendingAction = &p
	}
	return snap
}

// Stage 当前阶段
func (s *Session) Stage() models.Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Stage
}

// State 生成状态副本
func (s *Session) State() models.GenerationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyState(s.state)
}

// CurrentScript 当前剧本
func (s *Session) CurrentScript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CurrentScript
}

// Outlines 大纲候选副本
func (s *Session) Outlines() []models.Outline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Outline(nil), s.outlines...)
}

// Directions 故事走向候选副本
func (s *Session) Directions() []models.Direction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Direction(nil), s.directions...)
}

// Versions 版本历史副本
func (s *Session) Versions() []models.ScriptVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ScriptVersion{}, s.versions...)
}

// Keywords 关键词列表副本
func (s *Session) Keywords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keywords.List()
}

// Report 最近一次分析报告
func (s *Session) Report() *models.AnalysisReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyReport(s.report)
}

// PendingAction 待重试的操作
func (s *Session) PendingAction() *models.ReplayableAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return nil
	}
	p := *s.pending
	return &p
}

// UpdatedAt 最后修改时间
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// mutate 在写锁内修改会话并刷新修改时间
func (s *Session) mutate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
	s.updatedAt = time.Now()
}

func (s *Session) keywordsSnapshot() *models.HealthKeywords {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.NewHealthKeywords(s.keywords.List()...)
}

func copyState(in models.GenerationState) models.GenerationState {
	out := in
	if in.SelectedOutline != nil {
		o := *in.SelectedOutline
		out.SelectedOutline = &o
	}
	if in.SelectedDirection != nil {
		d := *in.SelectedDirection
		out.SelectedDirection = &d
	}
	return out
}

func copyReport(in *models.AnalysisReport) *models.AnalysisReport {
	if in == nil {
		return nil
	}
	out := *in
	out.Flowchart = append([]models.FlowchartNode(nil), in.Flowchart...)
	out.Terminology = append([]models.TerminologyEntry(nil), in.Terminology...)
	return &out
}
