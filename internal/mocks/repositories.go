package mocks

import (
	"context"
	"sync"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
)

// MockHistoryRepository is a mock implementation of HistoryRepository.
// Saved records are kept in memory so tests can assert on them.
type MockHistoryRepository struct {
	mu        sync.Mutex
	Sessions  []domain.SessionRecord
	Snapshots []domain.EnergySnapshot
	Events    []domain.SecurityEvent

	SaveSessionFunc        func(ctx context.Context, rec *domain.SessionRecord) error
	SaveEnergySnapshotFunc func(ctx context.Context, snap *domain.EnergySnapshot) error
	SaveSecurityEventFunc  func(ctx context.Context, ev *domain.SecurityEvent) error
	RecentSessionsFunc     func(ctx context.Context, limit int) ([]domain.SessionRecord, error)
	CloseFunc              func() error
}

func NewMockHistoryRepository() *MockHistoryRepository {
	return &MockHistoryRepository{}
}

func (m *MockHistoryRepository) SaveSession(ctx context.Context, rec *domain.SessionRecord) error {
	if m.SaveSessionFunc != nil {
		return m.SaveSessionFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions = append(m.Sessions, *rec)
	return nil
}

func (m *MockHistoryRepository) SaveEnergySnapshot(ctx context.Context, snap *domain.EnergySnapshot) error {
	if m.SaveEnergySnapshotFunc != nil {
		return m.SaveEnergySnapshotFunc(ctx, snap)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshots = append(m.Snapshots, *snap)
	return nil
}

func (m *MockHistoryRepository) SaveSecurityEvent(ctx context.Context, ev *domain.SecurityEvent) error {
	if m.SaveSecurityEventFunc != nil {
		return m.SaveSecurityEventFunc(ctx, ev)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, *ev)
	return nil
}

func (m *MockHistoryRepository) RecentSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	if m.RecentSessionsFunc != nil {
		return m.RecentSessionsFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.Sessions) {
		limit = len(m.Sessions)
	}
	out := make([]domain.SessionRecord, limit)
	copy(out, m.Sessions[len(m.Sessions)-limit:])
	return out, nil
}

func (m *MockHistoryRepository) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// SavedSessions returns a copy of the sessions saved so far.
func (m *MockHistoryRepository) SavedSessions() []domain.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SessionRecord, len(m.Sessions))
	copy(out, m.Sessions)
	return out
}

// SavedEvents returns a copy of the security events saved so far.
func (m *MockHistoryRepository) SavedEvents() []domain.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SecurityEvent, len(m.Events))
	copy(out, m.Events)
	return out
}
