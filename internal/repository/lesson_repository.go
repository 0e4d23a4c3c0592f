package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"classhub/pkg/models"
)

// LessonRepository is the lesson store contract the core consumes: lookup
// by titles plus the two mutations the scheduler performs on unlock.
type LessonRepository interface {
	FindByTitles(ctx context.Context, namespaceTitle, lessonTitle string) (*models.Lesson, error)
	SetActive(ctx context.Context, id string, active bool) error
	ClearLockUntil(ctx context.Context, id string) error
}

type lessonRepository struct {
	pool *pgxpool.Pool
}

// NewLessonRepository creates a PostgreSQL lesson repository.
func NewLessonRepository(pool *pgxpool.Pool) LessonRepository {
	return &lessonRepository{pool: pool}
}

func (r *lessonRepository) FindByTitles(ctx context.Context, namespaceTitle, lessonTitle string) (*models.Lesson, error) {
	query := `
		SELECT l.id, l.namespace_id, l.title, l.active, l.lock_until, l.created_at, l.updated_at
		FROM lessons l
		INNER JOIN namespaces n ON l.namespace_id = n.id
		WHERE n.title = $1 AND l.title = $2
	`
	lesson := &models.Lesson{}
	err := r.pool.QueryRow(ctx, query, namespaceTitle, lessonTitle).Scan(
		&lesson.ID,
		&lesson.NamespaceID,
		&lesson.Title,
		&lesson.Active,
		&lesson.LockUntil,
		&lesson.CreatedAt,
		&lesson.UpdatedAt,
	)
	if err != nil {
		return nil, mapDBError(err, "find_lesson")
	}
	return lesson, nil
}

func (r *lessonRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE lessons SET active = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return mapDBError(err, "set_lesson_active")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set_lesson_active: %w", models.ErrLessonNotFound)
	}
	return nil
}

func (r *lessonRepository) ClearLockUntil(ctx context.Context, id string) error {
	query := `UPDATE lessons SET lock_until = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return mapDBError(err, "clear_lock_until")
	}
	return nil
}
