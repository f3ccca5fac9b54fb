// Package sqlite implements the stores over database/sql with the modernc driver.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go-auth-service/internal/model"
)

// timeLayout is fixed width so that TEXT comparisons order like instants.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", raw, err)
	}
	return t, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrPersistenceUnavailable, err)
}

func rowsAffected(op string, res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(op, err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
