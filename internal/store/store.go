package store

import (
	"sync"

	"rewardwatch/pkg/model"
)

// Store 按 appId 去重的应用记录表，新值整体覆盖旧值
type Store struct {
	mu    sync.RWMutex
	items map[string]model.EnrichedRecord
	order []string
}

// New 创建空表
func New() *Store {
	return &Store{items: make(map[string]model.EnrichedRecord)}
}

// Upsert 插入或替换，替换时保留首次出现的位置
func (s *Store) Upsert(key string, value model.EnrichedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		s.order = append(s.order, key)
	}
	s.items[key] = value
}

// Get 按 appId 读取
func (s *Store) Get(key string) (model.EnrichedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Values 返回当前全部记录的快照，调用方可任意修改
func (s *Store) Values() []model.EnrichedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.EnrichedRecord, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	return out
}

func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Reset 清空（仅供外部显式调用）
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]model.EnrichedRecord)
	s.order = nil
}
