package websocket

import (
	"context"
	"time"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
)

const defaultPublishInterval = 2 * time.Second

// FleetSource is the slice of the fleet manager the live feed reads.
type FleetSource interface {
	Snapshots() []domain.StationSnapshot
	Totals() domain.FleetTotals
}

// Publisher pushes fleet state onto the hub on a fixed cadence. Frames are
// only produced while at least one client is connected.
type Publisher struct {
	hub    *Hub
	source FleetSource
	every  time.Duration
}

func NewPublisher(hub *Hub, source FleetSource, every time.Duration) *Publisher {
	if every <= 0 {
		every = defaultPublishInterval
	}
	return &Publisher{hub: hub, source: source, every: every}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.hub.ClientCount() == 0 {
				continue
			}
			p.hub.BroadcastJSON("totals", p.source.Totals())
			p.hub.BroadcastJSON("stations", p.source.Snapshots())
		}
	}
}
