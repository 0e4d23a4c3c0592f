package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"classhub/pkg/models"
)

// CollabDocRepository is the persistent store behind the document instance
// registry. Load returns models.ErrNotFound (wrapped) when no row exists.
type CollabDocRepository interface {
	Load(ctx context.Context, namespaceID, lessonID, componentID string) (*models.CollabDocRecord, error)
	Save(ctx context.Context, rec *models.CollabDocRecord) error
}

type collabDocRepository struct {
	pool *pgxpool.Pool
}

// NewCollabDocRepository creates a PostgreSQL collaborative-document repository.
func NewCollabDocRepository(pool *pgxpool.Pool) CollabDocRepository {
	return &collabDocRepository{pool: pool}
}

func (r *collabDocRepository) Load(ctx context.Context, namespaceID, lessonID, componentID string) (*models.CollabDocRecord, error) {
	query := `
		SELECT component_id, namespace_id, lesson_id, version, doc, comments, steps, users, updated_at
		FROM collab_documents
		WHERE component_id = $1 AND namespace_id = $2 AND lesson_id = $3
	`
	rec := &models.CollabDocRecord{}
	err := r.pool.QueryRow(ctx, query, componentID, namespaceID, lessonID).Scan(
		&rec.ComponentID,
		&rec.NamespaceID,
		&rec.LessonID,
		&rec.Version,
		&rec.Doc,
		&rec.Comments,
		&rec.Steps,
		&rec.Users,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, mapDBError(err, "load_collab_document")
	}
	return rec, nil
}

func (r *collabDocRepository) Save(ctx context.Context, rec *models.CollabDocRecord) error {
	query := `
		INSERT INTO collab_documents
			(component_id, namespace_id, lesson_id, version, doc, comments, steps, users, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)
		ON CONFLICT (component_id, namespace_id, lesson_id) DO UPDATE
		SET version = EXCLUDED.version,
			doc = EXCLUDED.doc,
			comments = EXCLUDED.comments,
			steps = EXCLUDED.steps,
			users = EXCLUDED.users,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ComponentID,
		rec.NamespaceID,
		rec.LessonID,
		rec.Version,
		rec.Doc,
		rec.Comments,
		rec.Steps,
		rec.Users,
	)
	if err != nil {
		return mapDBError(err, "save_collab_document")
	}
	return nil
}
