package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// MonitorStore aggregates session statistics for the dashboard.
type MonitorStore interface {
	CountActiveSessions(ctx context.Context) (int64, error)
	AverageProgress(ctx context.Context) (float64, error)
}

// DashboardStats is the admin dashboard summary.
type DashboardStats struct {
	ActiveSessions      int64   `json:"active_sessions"`
	UnresolvedIncidents int64   `json:"unresolved_incidents"`
	AverageProgress     float64 `json:"average_progress"`
	ConnectedAdmins     int     `json:"connected_admins"`
}

// AdminCounter reports the number of connected admin observers.
type AdminCounter interface {
	AdminCount() int
}

// MonitorService assembles dashboard statistics. The independent queries run
// concurrently; a failing one zeroes its stat rather than failing the page.
type MonitorService struct {
	store     MonitorStore
	incidents *IncidentService
	admins    AdminCounter
	log       zerolog.Logger
}

func NewMonitorService(store MonitorStore, incidents *IncidentService, admins AdminCounter, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		store:     store,
		incidents: incidents,
		admins:    admins,
		log:       log.With().Str("component", "monitor_service").Logger(),
	}
}

// Stats gathers the dashboard summary.
func (s *MonitorService) Stats(ctx context.Context) *DashboardStats {
	stats := &DashboardStats{ConnectedAdmins: s.admins.AdminCount()}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		n, err := s.store.CountActiveSessions(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to count active sessions")
			return
		}
		stats.ActiveSessions = n
	}()

	go func() {
		defer wg.Done()
		n, err := s.incidents.CountUnresolved(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to count unresolved incidents")
			return
		}
		stats.UnresolvedIncidents = n
	}()

	go func() {
		defer wg.Done()
		p, err := s.store.AverageProgress(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to compute average progress")
			return
		}
		stats.AverageProgress = p
	}()

	wg.Wait()
	return stats
}
