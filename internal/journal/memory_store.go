package journal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 以内存方式保存流水，进程退出即丢失。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record), now: time.Now}
}

// Append 实现 Store 接口。
func (m *MemoryStore) Append(_ context.Context, record *Record) error {
	if err := validate(record); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; ok {
		return ErrRecordConflict
	}
	now := m.now().Unix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	clone := *record
	m.records[record.ID] = &clone
	return nil
}

// Resolve 更新流水状态。
func (m *MemoryStore) Resolve(_ context.Context, id string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	applyOutcome(record, outcome)
	record.UpdatedAt = m.now().Unix()
	return nil
}

// Get 返回流水记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

// List 返回符合条件的流水。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		if !opts.matches(record) {
			continue
		}
		clone := *record
		results = append(results, &clone)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if opts.Order == SortOldestFirst {
			a, b = b, a
		}
		if a.UpdatedAt == b.UpdatedAt {
			if a.CreatedAt == b.CreatedAt {
				return a.ID > b.ID
			}
			return a.CreatedAt > b.CreatedAt
		}
		return a.UpdatedAt > b.UpdatedAt
	})

	if opts.Offset >= len(results) {
		return []*Record{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func applyOutcome(record *Record, outcome Outcome) {
	if outcome.Status != "" {
		record.Status = outcome.Status
	}
	if outcome.TxHash != "" {
		record.TxHash = outcome.TxHash
	}
	if outcome.BlockNumber != 0 {
		record.BlockNumber = outcome.BlockNumber
	}
	if outcome.GasUsed != 0 {
		record.GasUsed = outcome.GasUsed
	}
	record.ErrorCode = outcome.ErrorCode
	record.LastError = outcome.LastError
}

var _ Store = (*MemoryStore)(nil)
