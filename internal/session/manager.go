package session

import (
	"context"
	"slices"
	"strings"
	"sync"

	"rewardwatch/internal/logger"
	"rewardwatch/pkg/model"
)

// Session 一个已附加的 DevTools 目标
type Session struct {
	Info   model.TargetInfo
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Stop 取消观察并等待结束
func (s *Session) Stop() error {
	s.cancel()
	<-s.done
	return s.err
}

// Done 观察结束时关闭
func (s *Session) Done() <-chan struct{} { return s.done }

// Finish 标记观察结束，只应调用一次
func (s *Session) Finish(err error) {
	s.err = err
	close(s.done)
}

// Manager 已附加目标的会话表
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.TargetID]*Session
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.TargetID]*Session),
		log:      l,
	}
}

// Create 登记新会话，目标已附加时返回 false
func (m *Manager) Create(info model.TargetInfo, cancel context.CancelFunc) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[info.ID]; ok {
		return nil, false
	}
	info.Attached = true
	s := &Session{Info: info, cancel: cancel, done: make(chan struct{})}
	m.sessions[info.ID] = s
	m.log.Info("附加目标会话", "targetID", string(info.ID))
	return s, true
}

// Get 获取会话
func (m *Manager) Get(id model.TargetID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete 移除会话（不负责停止）
func (m *Manager) Delete(id model.TargetID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.log.Info("分离目标会话", "targetID", string(id))
	}
	return s, ok
}

// List 返回所有活动会话，按目标ID排序
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	slices.SortFunc(list, func(a, b *Session) int {
		return strings.Compare(string(a.Info.ID), string(b.Info.ID))
	})
	return list
}

// StopAll 停止并移除全部会话
func (m *Manager) StopAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[model.TargetID]*Session)
	m.mu.Unlock()

	for id, s := range all {
		if err := s.Stop(); err != nil {
			m.log.Err(err, "会话结束时出错", "targetID", string(id))
		}
	}
}
