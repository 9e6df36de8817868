package ports

import (
	"context"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
)

// HistoryRepository persists what the in-memory core otherwise forgets:
// finished sessions, fleet energy snapshots, and security events. The
// simulator and CSMS stay fully functional without one.
type HistoryRepository interface {
	SaveSession(ctx context.Context, rec *domain.SessionRecord) error
	SaveEnergySnapshot(ctx context.Context, snap *domain.EnergySnapshot) error
	SaveSecurityEvent(ctx context.Context, ev *domain.SecurityEvent) error
	RecentSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error)
	Close() error
}
