package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"go-auth-service/internal/model"
)

const uniqueViolation = "23505"

// storeErr tags a driver failure so callers can tell an unreachable store from a
// domain miss.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrPersistenceUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// validID guards uuid columns against text that postgres would reject with a
// syntax error instead of a miss.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
