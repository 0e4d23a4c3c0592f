package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"classhub/pkg/models"
)

// StatsRepository is the metrics/statistics store the overview snapshot is
// built from. Counting queries are cheap aggregates; the action-type
// aggregation is bounded by models.MaxNumActions.
type StatsRepository interface {
	CountUsers(ctx context.Context) (int, error)
	CountInstructors(ctx context.Context) (int, error)
	CountLessons(ctx context.Context) (int, error)
	CountCohorts(ctx context.Context) (int, error)
	CountNamespaces(ctx context.Context) (int, error)
	CountFiles(ctx context.Context) (int, error)
	CountTickets(ctx context.Context) (int, error)
	CountSessionData(ctx context.Context) (int, error)
	CountActiveUsersSince(ctx context.Context, since time.Time) (int, error)
	AggregateActionTypes(ctx context.Context) (map[string]int, error)
	TotalSpentTime(ctx context.Context) (int64, error)
	InsertOverview(ctx context.Context, row *models.OverviewStatistics) error
}

type statsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates a PostgreSQL statistics repository.
func NewStatsRepository(pool *pgxpool.Pool) StatsRepository {
	return &statsRepository{pool: pool}
}

func (r *statsRepository) count(ctx context.Context, query, operation string, args ...any) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapDBError(err, operation)
	}
	return n, nil
}

func (r *statsRepository) CountUsers(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users`, "count_users")
}

func (r *statsRepository) CountInstructors(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users WHERE role = 'instructor' OR admin = TRUE`, "count_instructors")
}

func (r *statsRepository) CountLessons(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM lessons`, "count_lessons")
}

func (r *statsRepository) CountCohorts(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM cohorts`, "count_cohorts")
}

func (r *statsRepository) CountNamespaces(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM namespaces`, "count_namespaces")
}

func (r *statsRepository) CountFiles(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM files`, "count_files")
}

func (r *statsRepository) CountTickets(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM tickets`, "count_tickets")
}

func (r *statsRepository) CountSessionData(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM session_data`, "count_session_data")
}

func (r *statsRepository) CountActiveUsersSince(ctx context.Context, since time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users WHERE updated_at >= $1`, "count_active_users", since)
}

// AggregateActionTypes groups the session-data store by action type over a
// bounded window of the most recent rows.
func (r *statsRepository) AggregateActionTypes(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT action_type, COUNT(*)
		FROM (
			SELECT action_type
			FROM session_data
			ORDER BY created_at DESC
			LIMIT $1
		) recent
		GROUP BY action_type
	`
	rows, err := r.pool.Query(ctx, query, models.MaxNumActions)
	if err != nil {
		return nil, mapDBError(err, "aggregate_action_types")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var actionType string
		var n int
		if err := rows.Scan(&actionType, &n); err != nil {
			return nil, mapDBError(err, "scan_action_type")
		}
		out[actionType] = n
	}
	return out, rows.Err()
}

func (r *statsRepository) TotalSpentTime(ctx context.Context) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(spent_time), 0) FROM users`
	if err := r.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, mapDBError(err, "total_spent_time")
	}
	return total, nil
}

func (r *statsRepository) InsertOverview(ctx context.Context, row *models.OverviewStatistics) error {
	if row.ID == "" {
		row.ID = newID("stats")
	}
	actions, err := json.Marshal(row.ActionCounts)
	if err != nil {
		return mapDBError(err, "marshal_action_counts")
	}
	query := `
		INSERT INTO overview_statistics
			(id, users, instructors, lessons, cohorts, namespaces, events, files, tickets,
			 session_data, active_hour, active_day, active_week, active_month,
			 action_counts, spent_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, CURRENT_TIMESTAMP)
	`
	_, err = r.pool.Exec(ctx, query,
		row.ID,
		row.Users,
		row.Instructors,
		row.Lessons,
		row.Cohorts,
		row.Namespaces,
		row.Events,
		row.Files,
		row.Tickets,
		row.SessionData,
		row.ActiveHour,
		row.ActiveDay,
		row.ActiveWeek,
		row.ActiveMonth,
		actions,
		row.SpentTime,
	)
	if err != nil {
		return mapDBError(err, "insert_overview_statistics")
	}
	return nil
}
