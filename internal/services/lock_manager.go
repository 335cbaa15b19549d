// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"

	apperrors "github.com/Corphon/HealthScriptMCP/internal/errors"
)

// LockManager 会话级别的状态转换锁
type LockManager struct {
	sessionLocks  map[string]*LockInfo
	globalLock    sync.Mutex
	lockTTL       time.Duration
	cleanupTicker *time.Ticker
	stop          chan struct{}
	stopOnce      sync.Once
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex    *sync.Mutex
	LastUsed time.Time
	inUse    bool
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	lm := &LockManager{
		sessionLocks: make(map[string]*LockInfo),
		lockTTL:      30 * time.Minute,
		stop:         make(chan struct{}),
	}

	lm.startCleanup()
	return lm
}

func (lm *LockManager) acquireInfo(sessionID string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, exists := lm.sessionLocks[sessionID]
	if !exists {
		info = &LockInfo{Mutex: &sync.Mutex{}}
		lm.sessionLocks[sessionID] = info
	}
	info.LastUsed = time.Now()
	return info
}

// TryExecute 会话空闲时执行 fn；已有操作进行中则立即返回冲突错误
func (lm *LockManager) TryExecute(sessionID string, fn func() error) error {
	info := lm.acquireInfo(sessionID)
	if !info.Mutex.TryLock() {
		return apperrors.NewConflictError("当前会话有操作正在进行，请稍后再试", nil)
	}

	lm.globalLock.Lock()
	info.inUse = true
	lm.globalLock.Unlock()

	defer func() {
		lm.globalLock.Lock()
		info.inUse = false
		info.LastUsed = time.Now()
		lm.globalLock.Unlock()
		info.Mutex.Unlock()
	}()

	return fn()
}

// IsBusy 会话是否有进行中的操作
func (lm *LockManager) IsBusy(sessionID string) bool {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, exists := lm.sessionLocks[sessionID]
	return exists && info.inUse
}

// Release 删除会话的锁记录
func (lm *LockManager) Release(sessionID string) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	if info, exists := lm.sessionLocks[sessionID]; exists && !info.inUse {
		delete(lm.sessionLocks, sessionID)
	}
}

// Stop 停止后台清理
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() {
		lm.cleanupTicker.Stop()
		close(lm.stop)
	})
}

// 定期清理未使用的锁
func (lm *LockManager) startCleanup() {
	lm.cleanupTicker = time.NewTicker(5 * time.Minute)
	go func() {
		for {
			select {
			case <-lm.cleanupTicker.C:
				lm.cleanupUnusedLocks()
			case <-lm.stop:
				return
			}
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks() {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	now := time.Now()
	for sessionID, info := range lm.sessionLocks {
		if !info.inUse && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.sessionLocks, sessionID)
		}
	}
}
