package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"classhub/pkg/models"
)

// EventRepository is the persisted event log the scheduler drains.
type EventRepository interface {
	QueryDue(ctx context.Context, now time.Time) ([]*models.ScheduledEvent, error)
	MarkDone(ctx context.Context, id string) error
	Insert(ctx context.Context, event *models.ScheduledEvent) error
	Count(ctx context.Context) (int, error)
}

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a PostgreSQL event repository.
func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

func (r *eventRepository) QueryDue(ctx context.Context, now time.Time) ([]*models.ScheduledEvent, error) {
	query := `
		SELECT id, type, time, data, done, user_id, saved_at
		FROM events
		WHERE time < $1 AND done = FALSE
		ORDER BY time ASC
	`
	rows, err := r.pool.Query(ctx, query, now.UnixMilli())
	if err != nil {
		return nil, mapDBError(err, "query_due_events")
	}
	defer rows.Close()

	var events []*models.ScheduledEvent
	for rows.Next() {
		ev := &models.ScheduledEvent{}
		err := rows.Scan(&ev.ID, &ev.Type, &ev.Time, &ev.Data, &ev.Done, &ev.User, &ev.SavedAt)
		if err != nil {
			return nil, mapDBError(err, "scan_due_event")
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *eventRepository) MarkDone(ctx context.Context, id string) error {
	query := `UPDATE events SET done = TRUE, saved_at = CURRENT_TIMESTAMP WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return mapDBError(err, "mark_event_done")
	}
	return nil
}

func (r *eventRepository) Insert(ctx context.Context, event *models.ScheduledEvent) error {
	if event.ID == "" {
		event.ID = newID("evt")
	}
	query := `
		INSERT INTO events (id, type, time, data, done, user_id, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Type,
		event.Time,
		event.Data,
		event.Done,
		event.User,
	)
	if err != nil {
		return mapDBError(err, "insert_event")
	}
	return nil
}

func (r *eventRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, mapDBError(err, "count_events")
	}
	return n, nil
}
