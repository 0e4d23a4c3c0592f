package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"classhub/pkg/models"
)

// mapDBError translates driver errors into application sentinels so callers
// can branch on errors.Is without importing pgx.
func mapDBError(err error, operation string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", operation, models.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: invalid reference: %w", operation, err)
		case "23505": // unique_violation
			return fmt.Errorf("%s: duplicate key: %w", operation, err)
		case "22001": // string_data_right_truncation
			return fmt.Errorf("%s: value too long: %w", operation, err)
		}
	}

	return fmt.Errorf("database error during %s: %w", operation, err)
}
