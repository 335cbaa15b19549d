// internal/services/session_service.go
package services

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	apperrors "github.com/Corphon/HealthScriptMCP/internal/errors"
	"github.com/Corphon/HealthScriptMCP/internal/models"
	"github.com/Corphon/HealthScriptMCP/internal/storage"
	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

const sessionsDir = "sessions"

// SessionService 内存中保存活跃会话，空闲超时后淘汰；每次修改写入快照
type SessionService struct {
	cache   *gocache.Cache
	storage *storage.FileStorage
	locks   *LockManager
	logger  *zap.Logger
}

// NewSessionService fs 为 nil 时只保存在内存中；locks 用于删除时检查并释放会话锁
func NewSessionService(fs *storage.FileStorage, locks *LockManager, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	s := &SessionService{
		cache:   gocache.New(ttl, ttl/4+time.Minute),
		storage: fs,
		locks:   locks,
		logger:  utils.GetLogger().Named("sessions"),
	}
	s.cache.OnEvicted(func(id string, _ interface{}) {
		utils.SetActiveSessions(s.cache.ItemCount())
	})
	return s
}

// Create 新建会话
func (s *SessionService) Create() (*Session, error) {
	session := NewSession(uuid.NewString())
	s.cache.SetDefault(session.ID, session)
	utils.SetActiveSessions(s.cache.ItemCount())

	if err := s.Save(session); err != nil {
		return nil, err
	}
	s.logger.Info("会话已创建", zap.String("session_id", session.ID))
	return session, nil
}

// Get 取会话；内存中没有时尝试从快照恢复
func (s *SessionService) Get(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if !validSessionID(id) {
		return nil, apperrors.NewNotFoundError("会话不存在", nil)
	}

	if cached, ok := s.cache.Get(id); ok {
		session := cached.(*Session)
		// 访问即续期
		s.cache.SetDefault(id, session)
		return session, nil
	}

	if s.storage == nil || !s.storage.FileExists(sessionsDir, id+".json") {
		return nil, apperrors.NewNotFoundError("会话不存在", nil)
	}

	var snap models.SessionSnapshot
	if err := s.storage.LoadJSONFile(sessionsDir, id+".json", &snap); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, apperrors.NewNotFoundError("会话不存在", nil)
		}
		return nil, apperrors.NewProcessingError("加载会话失败", err)
	}

	session := SessionFromSnapshot(snap)
	// 并发恢复时保留先放入的实例
	if err := s.cache.Add(id, session, gocache.DefaultExpiration); err != nil {
		if cached, ok := s.cache.Get(id); ok {
			return cached.(*Session), nil
		}
	}
	utils.SetActiveSessions(s.cache.ItemCount())
	s.logger.Info("会话已从快照恢复", zap.String("session_id", id))
	return session, nil
}

// Save 写入快照
func (s *SessionService) Save(session *Session) error {
	if s.storage == nil {
		return nil
	}
	if err := s.storage.SaveJSONFile(sessionsDir, session.ID+".json", session.Snapshot()); err != nil {
		return apperrors.WrapError(err, "保存会话失败", apperrors.ErrorTypeError)
	}
	return nil
}

// Delete 删除会话、快照与导出文件；有进行中的操作时拒绝
func (s *SessionService) Delete(id string) error {
	if !validSessionID(id) {
		return apperrors.NewNotFoundError("会话不存在", nil)
	}
	if s.locks != nil && s.locks.IsBusy(id) {
		return apperrors.NewConflictError("当前会话有操作正在进行，请稍后再删除", nil)
	}

	_, inMemory := s.cache.Get(id)
	s.cache.Delete(id)
	utils.SetActiveSessions(s.cache.ItemCount())
	if s.locks != nil {
		s.locks.Release(id)
	}

	if s.storage == nil {
		if !inMemory {
			return apperrors.NewNotFoundError("会话不存在", nil)
		}
		return nil
	}

	if err := s.storage.DeleteDir(filepath.Join(DefaultExportDir, id)); err != nil {
		s.logger.Warn("删除导出文件失败", zap.String("session_id", id), zap.Error(err))
	}

	if err := s.storage.DeleteFile(sessionsDir, id+".json"); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			if inMemory {
				return nil
			}
			return apperrors.NewNotFoundError("会话不存在", nil)
		}
		return apperrors.WrapError(err, "删除会话失败", apperrors.ErrorTypeError)
	}
	s.logger.Info("会话已删除", zap.String("session_id", id))
	return nil
}

// List 内存与快照中的全部会话 ID，按字典序
func (s *SessionService) List() ([]string, error) {
	seen := make(map[string]struct{})
	for id := range s.cache.Items() {
		seen[id] = struct{}{}
	}

	if s.storage != nil {
		files, err := s.storage.ListFiles(sessionsDir, ".json")
		if err != nil {
			return nil, apperrors.WrapError(err, "读取会话列表失败", apperrors.ErrorTypeError)
		}
		for _, name := range files {
			if id := strings.TrimSuffix(name, ".json"); validSessionID(id) {
				seen[id] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ActiveCount 内存中的会话数
func (s *SessionService) ActiveCount() int {
	return s.cache.ItemCount()
}

// validSessionID 会话 ID 会用作文件名，只接受 UUID
func validSessionID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
