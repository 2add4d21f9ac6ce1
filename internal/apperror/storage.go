package apperror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes the core reacts to.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgExclusionViolation   = "23P01"
)

// FromStorage translates an error from the persistence collaborator into
// one of the package's kinds. Errors that already belong to the taxonomy
// pass through unchanged. A nil error stays nil.
func FromStorage(err error) error {
	if err == nil {
		return nil
	}
	if isKnown(err) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return &ConflictError{}
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}

	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

func isKnown(err error) bool {
	var verr *ValidationError
	var cerr *ConflictError
	var terr *InvalidTransitionError
	return errors.As(err, &verr) || errors.As(err, &cerr) || errors.As(err, &terr) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrBusy) || errors.Is(err, ErrStorageUnavailable)
}
