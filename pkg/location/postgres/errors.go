package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marmos91/tierkeeper/pkg/location"
)

// mapPgError maps driver errors onto location store errors.
func mapPgError(err error, operation string, hash location.ContentHash) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return location.ErrRecordNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23514", "22P02": // check_violation, invalid_text_representation
			return fmt.Errorf("%s %s: %w: %s", operation, hash, location.ErrInvalidLocation, pgErr.Message)
		case "57014": // query_canceled, statement_timeout
			return fmt.Errorf("%s %s: query canceled: %w", operation, hash, err)
		}
		return fmt.Errorf("%s %s: postgres error %s: %w", operation, hash, pgErr.Code, err)
	}
	return fmt.Errorf("%s %s: %w", operation, hash, err)
}
