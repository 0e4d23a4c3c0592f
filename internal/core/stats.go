package core

import (
	"context"
	"fmt"
	"time"

	"classhub/internal/repository"
	"classhub/pkg/models"
)

// OverviewService assembles the periodic usage snapshot the scheduler
// persists on every overview_statistics event.
type OverviewService interface {
	Collect(ctx context.Context, now time.Time) (*models.OverviewStatistics, error)
	Persist(ctx context.Context, row *models.OverviewStatistics) error
}

type overviewService struct {
	stats  repository.StatsRepository
	events repository.EventRepository
}

// NewOverviewService creates the overview statistics service.
func NewOverviewService(stats repository.StatsRepository, events repository.EventRepository) OverviewService {
	return &overviewService{stats: stats, events: events}
}

// Collect gathers entity counts, activity windows, aggregated action types
// and total spent time into one snapshot row.
func (s *overviewService) Collect(ctx context.Context, now time.Time) (*models.OverviewStatistics, error) {
	row := &models.OverviewStatistics{CreatedAt: now}

	var err error
	counts := []struct {
		dst *int
		fn  func(context.Context) (int, error)
	}{
		{&row.Users, s.stats.CountUsers},
		{&row.Instructors, s.stats.CountInstructors},
		{&row.Lessons, s.stats.CountLessons},
		{&row.Cohorts, s.stats.CountCohorts},
		{&row.Namespaces, s.stats.CountNamespaces},
		{&row.Events, s.events.Count},
		{&row.Files, s.stats.CountFiles},
		{&row.Tickets, s.stats.CountTickets},
		{&row.SessionData, s.stats.CountSessionData},
	}
	for _, c := range counts {
		if *c.dst, err = c.fn(ctx); err != nil {
			return nil, fmt.Errorf("collect counts: %w", err)
		}
	}

	windows := []struct {
		dst *int
		ago time.Duration
	}{
		{&row.ActiveHour, time.Hour},
		{&row.ActiveDay, 24 * time.Hour},
		{&row.ActiveWeek, 7 * 24 * time.Hour},
		{&row.ActiveMonth, 30 * 24 * time.Hour},
	}
	for _, w := range windows {
		if *w.dst, err = s.stats.CountActiveUsersSince(ctx, now.Add(-w.ago)); err != nil {
			return nil, fmt.Errorf("collect active windows: %w", err)
		}
	}

	if row.ActionCounts, err = s.stats.AggregateActionTypes(ctx); err != nil {
		return nil, fmt.Errorf("aggregate action types: %w", err)
	}
	if row.SpentTime, err = s.stats.TotalSpentTime(ctx); err != nil {
		return nil, fmt.Errorf("total spent time: %w", err)
	}

	return row, nil
}

// Persist writes the snapshot row.
func (s *overviewService) Persist(ctx context.Context, row *models.OverviewStatistics) error {
	return s.stats.InsertOverview(ctx, row)
}
