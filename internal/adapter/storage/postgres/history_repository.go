package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

type sessionRow struct {
	ID            uint   `gorm:"primaryKey"`
	TransactionID int    `gorm:"index"`
	StationID     string `gorm:"index;size:64"`
	ConnectorID   int
	IDTag         string `gorm:"size:32"`
	MeterStart    int
	MeterStop     int
	EnergyKWh     float64
	StartedAt     time.Time
	StoppedAt     time.Time
	StopReason    string `gorm:"size:32"`
	CreatedAt     time.Time
}

func (sessionRow) TableName() string { return "charging_sessions" }

type snapshotRow struct {
	ID             uint `gorm:"primaryKey"`
	Stations       int
	Running        int
	TotalEnergyKWh float64
	TotalEarnings  float64
	PricePerKWh    float64
	TakenAt        time.Time `gorm:"index"`
	CreatedAt      time.Time
}

func (snapshotRow) TableName() string { return "energy_snapshots" }

type securityEventRow struct {
	ID        uint   `gorm:"primaryKey"`
	StationID string `gorm:"index;size:64"`
	EventType string `gorm:"index;size:32"`
	Severity  string `gorm:"size:16"`
	Message   string
	Timestamp time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (securityEventRow) TableName() string { return "security_events" }

// HistoryRepository is the PostgreSQL-backed ports.HistoryRepository.
type HistoryRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewHistoryRepository(db *gorm.DB, log *zap.Logger) ports.HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log,
	}
}

func (r *HistoryRepository) SaveSession(ctx context.Context, rec *domain.SessionRecord) error {
	row := sessionRow{
		TransactionID: rec.TransactionID,
		StationID:     rec.StationID,
		ConnectorID:   rec.ConnectorID,
		IDTag:         rec.IDTag,
		MeterStart:    rec.MeterStart,
		MeterStop:     rec.MeterStop,
		EnergyKWh:     rec.EnergyKWh,
		StartedAt:     rec.StartedAt,
		StoppedAt:     rec.StoppedAt,
		StopReason:    rec.StopReason,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *HistoryRepository) SaveEnergySnapshot(ctx context.Context, snap *domain.EnergySnapshot) error {
	row := snapshotRow{
		Stations:       snap.Stations,
		Running:        snap.Running,
		TotalEnergyKWh: snap.TotalEnergyKWh,
		TotalEarnings:  snap.TotalEarnings,
		PricePerKWh:    snap.PricePerKWh,
		TakenAt:        snap.TakenAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *HistoryRepository) SaveSecurityEvent(ctx context.Context, ev *domain.SecurityEvent) error {
	row := securityEventRow{
		StationID: ev.StationID,
		EventType: string(ev.Type),
		Severity:  string(ev.Severity),
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// RecentSessions returns the newest completed sessions first.
func (r *HistoryRepository) RecentSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []sessionRow
	err := r.db.WithContext(ctx).Order("stopped_at desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.SessionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.SessionRecord{
			TransactionID: row.TransactionID,
			StationID:     row.StationID,
			ConnectorID:   row.ConnectorID,
			IDTag:         row.IDTag,
			MeterStart:    row.MeterStart,
			MeterStop:     row.MeterStop,
			EnergyKWh:     row.EnergyKWh,
			StartedAt:     row.StartedAt,
			StoppedAt:     row.StoppedAt,
			StopReason:    row.StopReason,
		})
	}
	return out, nil
}

func (r *HistoryRepository) Close() error {
	return Close(r.db)
}
