// internal/services/session_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Corphon/VogueVault/internal/errors"
	"github.com/Corphon/VogueVault/internal/models"
	"github.com/Corphon/VogueVault/internal/state"
	"github.com/Corphon/VogueVault/internal/storage"
	"github.com/Corphon/VogueVault/internal/utils"
)

// Session 一个浏览器会话：共享视图状态、请求代次和各屏幕的局部状态
type Session struct {
	ID          string
	Store       *state.Store
	Generations *state.Generations
	Screens     *Screens

	lastUsed atomic.Int64
}

func newSession(id string, store *state.Store) *Session {
	sess := &Session{
		ID:          id,
		Store:       store,
		Generations: state.NewGenerations(),
		Screens:     NewScreens(),
	}
	sess.touch()
	return sess
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed 最近一次访问时间
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// SessionService 管理内存中的会话，可选地把快照写入持久存储
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	snapshots storage.SnapshotStore
	metrics   *utils.APIMetrics
	logger    *utils.Logger

	idleTTL       time.Duration
	cleanupTicker *time.Ticker
	stopOnce      sync.Once
	stopCh        chan struct{}
}

// NewSessionService 创建会话服务；snapshots 为 nil 时只保存在内存中
func NewSessionService(snapshots storage.SnapshotStore, metrics *utils.APIMetrics) *SessionService {
	if metrics == nil {
		metrics = utils.NewAPIMetrics(nil, nil)
	}
	return &SessionService{
		sessions:  make(map[string]*Session),
		snapshots: snapshots,
		metrics:   metrics,
		logger:    utils.GetLogger(),
		idleTTL:   2 * time.Hour,
		stopCh:    make(chan struct{}),
	}
}

// Create 以初始状态创建新会话
func (s *SessionService) Create(ctx context.Context, id string) *Session {
	sess := newSession(id, state.NewStore(state.Initial()))

	s.mu.Lock()
	s.sessions[id] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.Collector().SetGauge("sessions_active", int64(count))
	s.persist(ctx, sess.ID, sess.Store.Snapshot())
	s.logger.Info("session created", utils.Fields{"session": id})
	return sess
}

// Get 获取会话；内存中没有时尝试从持久存储恢复
func (s *SessionService) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		sess.touch()
		return sess, nil
	}

	if s.snapshots == nil {
		return nil, apperrors.NewNotFoundError("session not found", nil)
	}

	rec, err := s.snapshots.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("session not found", err)
	}
	if err != nil {
		return nil, apperrors.WrapError(err, "loading session", apperrors.ErrorTypeError)
	}

	var st state.State
	if err := json.Unmarshal(rec.State, &st); err != nil {
		return nil, apperrors.WrapError(err, "decoding session snapshot", apperrors.ErrorTypeError)
	}
	if st.Outfit == nil {
		st.Outfit = []models.WardrobeItem{}
	}
	if !st.View.Valid() {
		st.View = models.ViewDashboard
	}

	restored := newSession(id, state.NewStoreAt(st, rec.Version))

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		restored = existing
	} else {
		s.sessions[id] = restored
	}
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.Collector().SetGauge("sessions_active", int64(count))
	s.logger.Info("session restored", utils.Fields{"session": id, "version": rec.Version})
	return restored, nil
}

// GetOrCreate 获取会话，不存在时创建
func (s *SessionService) GetOrCreate(ctx context.Context, id string) (*Session, bool, error) {
	sess, err := s.Get(ctx, id)
	if err == nil {
		return sess, false, nil
	}
	if !apperrors.IsNotFoundError(err) {
		return nil, false, err
	}
	return s.Create(ctx, id), true, nil
}

// Dispatch 应用一个动作并持久化结果
func (s *SessionService) Dispatch(ctx context.Context, sess *Session, action state.Action) state.Snapshot {
	sess.touch()
	snap := sess.Store.Dispatch(action)
	s.metrics.Collector().IncrementCounter("state_actions_" + state.ActionName(action))
	s.persist(ctx, sess.ID, snap)
	return snap
}

// Delete 删除会话
func (s *SessionService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.Collector().SetGauge("sessions_active", int64(count))

	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, id); err != nil {
			return apperrors.WrapError(err, "deleting session", apperrors.ErrorTypeError)
		}
		return nil
	}
	if !ok {
		return apperrors.NewNotFoundError("session not found", nil)
	}
	return nil
}

// Count 内存中的会话数量
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SnapshotCount 持久存储中的快照数量；未配置存储时 ok 为 false
func (s *SessionService) SnapshotCount(ctx context.Context) (n int, ok bool) {
	if s.snapshots == nil {
		return 0, false
	}
	n, err := s.snapshots.Count(ctx)
	if err != nil {
		s.logger.Warn("counting session snapshots failed", utils.Fields{"error": err})
		return 0, false
	}
	return n, true
}

func (s *SessionService) persist(ctx context.Context, id string, snap state.Snapshot) {
	if s.snapshots == nil {
		return
	}
	data, err := json.Marshal(snap.State)
	if err != nil {
		s.logger.Error("encoding session snapshot failed", utils.Fields{"session": id, "error": err})
		return
	}
	// 请求被取消时仍然写入
	if err := s.snapshots.Save(context.WithoutCancel(ctx), storage.Record{
		SessionID: id,
		Version:   snap.Version,
		State:     data,
	}); err != nil {
		s.metrics.RecordError("storage", "session")
		s.logger.Error("saving session snapshot failed", utils.Fields{"session": id, "error": err})
	}
}

// StartCleanup 定期从内存中移除长时间未使用的会话（快照仍保留在持久存储中）
func (s *SessionService) StartCleanup(interval time.Duration) {
	s.cleanupTicker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.cleanupIdleSessions()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop 停止清理协程
func (s *SessionService) Stop() {
	s.stopOnce.Do(func() {
		if s.cleanupTicker != nil {
			s.cleanupTicker.Stop()
		}
		close(s.stopCh)
	})
}

func (s *SessionService) cleanupIdleSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastUsed()) > s.idleTTL && sess.Store.Subscribers() == 0 {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.metrics.Collector().SetGauge("sessions_active", int64(len(s.sessions)))
		s.logger.Info("idle sessions evicted", utils.Fields{"count": removed})
	}
	return removed
}
