// internal/services/progress_service.go
package services

import (
	"fmt"
	"sync"
	"time"
)

const (
	ProgressRunning   = "running"
	ProgressCompleted = "completed"
	ProgressFailed    = "failed"
)

// ProgressUpdate 表示进度更新
type ProgressUpdate struct {
	TaskID   string      `json:"task_id"`
	Progress int         `json:"progress"` // 0-100
	Message  string      `json:"message"`
	Status   string      `json:"status"`
	Result   interface{} `json:"result,omitempty"` // 仅在完成时携带
}

// ProgressTracker 跟踪长时间运行任务的进度
type ProgressTracker struct {
	TaskID     string
	SessionID  string
	Progress   int
	Message    string
	Status     string
	Result     interface{}
	StartTime  time.Time
	UpdateTime time.Time
	Done       chan struct{}

	subscribers map[chan ProgressUpdate]bool
	mutex       sync.Mutex
}

// ProgressService 管理所有进度跟踪器
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// CreateTracker 创建新的进度跟踪器，已存在时返回现有的
func (s *ProgressService) CreateTracker(taskID, sessionID string) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tracker, exists := s.trackers[taskID]; exists {
		return tracker
	}

	now := time.Now()
	tracker := &ProgressTracker{
		TaskID:      taskID,
		SessionID:   sessionID,
		Message:     "任务初始化中...",
		Status:      ProgressRunning,
		StartTime:   now,
		UpdateTime:  now,
		Done:        make(chan struct{}),
		subscribers: make(map[chan ProgressUpdate]bool),
	}

	s.trackers[taskID] = tracker
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

func (t *ProgressTracker) snapshotLocked() ProgressUpdate {
	return ProgressUpdate{
		TaskID:   t.TaskID,
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
		Result:   t.Result,
	}
}

// broadcastLocked 非阻塞发送，通道已满则跳过
func (t *ProgressTracker) broadcastLocked() {
	update := t.snapshotLocked()
	for subscriber := range t.subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
}

// Snapshot 当前状态
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshotLocked()
}

// UpdateProgress 更新任务进度，进度只增不减
func (t *ProgressTracker) UpdateProgress(progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != ProgressRunning {
		return
	}
	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()
	t.broadcastLocked()
}

// Advance 增加进度，任务结束前不超过 99
func (t *ProgressTracker) Advance(delta int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != ProgressRunning {
		return
	}
	t.Progress += delta
	if t.Progress > 99 {
		t.Progress = 99
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()
	t.broadcastLocked()
}

// Complete 标记任务完成
func (t *ProgressTracker) Complete(message string, result interface{}) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != ProgressRunning {
		return
	}
	t.Progress = 100
	t.Message = message
	if t.Message == "" {
		t.Message = "任务已完成"
	}
	t.Status = ProgressCompleted
	t.Result = result
	t.UpdateTime = time.Now()

	t.broadcastLocked()
	close(t.Done)
}

// Fail 标记任务失败
func (t *ProgressTracker) Fail(errorMsg string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Status != ProgressRunning {
		return
	}
	t.Message = fmt.Sprintf("任务失败: %s", errorMsg)
	t.Status = ProgressFailed
	t.UpdateTime = time.Now()

	t.broadcastLocked()
	close(t.Done)
}

// Subscribe 订阅进度更新，立即收到当前状态
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscriber := make(chan ProgressUpdate, 10)
	t.subscribers[subscriber] = true
	subscriber <- t.snapshotLocked()
	return subscriber
}

// Unsubscribe 取消订阅
func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.subscribers[subscriber]; ok {
		delete(t.subscribers, subscriber)
		close(subscriber)
	}
}

// CleanupCompletedTasks 清理已结束且超过 maxAge 的任务
func (s *ProgressService) CleanupCompletedTasks(maxAge time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		finished := tracker.Status != ProgressRunning
		isOld := now.Sub(tracker.UpdateTime) > maxAge
		tracker.mutex.Unlock()

		if finished && isOld {
			delete(s.trackers, id)
			removed++
		}
	}
	return removed
}
