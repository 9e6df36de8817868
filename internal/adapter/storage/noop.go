// Package storage holds the history-store fallback used when persistence
// is disabled.
package storage

import (
	"context"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// NoopHistory discards everything. It keeps the CSMS and simulator fully
// in-memory when database.enabled is off.
type NoopHistory struct{}

func NewNoopHistory() ports.HistoryRepository { return NoopHistory{} }

func (NoopHistory) SaveSession(context.Context, *domain.SessionRecord) error        { return nil }
func (NoopHistory) SaveEnergySnapshot(context.Context, *domain.EnergySnapshot) error { return nil }
func (NoopHistory) SaveSecurityEvent(context.Context, *domain.SecurityEvent) error  { return nil }
func (NoopHistory) RecentSessions(context.Context, int) ([]domain.SessionRecord, error) {
	return nil, nil
}
func (NoopHistory) Close() error { return nil }
