package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"classhub/pkg/models"
)

// NamespaceRepository answers ownership questions for the dispatcher.
type NamespaceRepository interface {
	GetByTitle(ctx context.Context, title string) (*models.Namespace, error)
	IsOwner(ctx context.Context, userID, namespaceTitle string) (bool, error)
}

type namespaceRepository struct {
	pool *pgxpool.Pool
}

// NewNamespaceRepository creates a PostgreSQL namespace repository.
func NewNamespaceRepository(pool *pgxpool.Pool) NamespaceRepository {
	return &namespaceRepository{pool: pool}
}

func (r *namespaceRepository) GetByTitle(ctx context.Context, title string) (*models.Namespace, error) {
	query := `SELECT id, title, slug, created_at FROM namespaces WHERE title = $1`
	ns := &models.Namespace{}
	err := r.pool.QueryRow(ctx, query, title).Scan(&ns.ID, &ns.Title, &ns.Slug, &ns.CreatedAt)
	if err != nil {
		return nil, mapDBError(err, "get_namespace")
	}
	return ns, nil
}

func (r *namespaceRepository) IsOwner(ctx context.Context, userID, namespaceTitle string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM namespace_owners no
			INNER JOIN namespaces n ON no.namespace_id = n.id
			WHERE no.user_id = $1 AND n.title = $2
		)
	`
	var owner bool
	if err := r.pool.QueryRow(ctx, query, userID, namespaceTitle).Scan(&owner); err != nil {
		return false, mapDBError(err, "is_namespace_owner")
	}
	return owner, nil
}
