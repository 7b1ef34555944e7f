package gateway

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"anoa.com/kudosfeed/pkg/apperror"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// classify turns a driver or ORM failure into a StoreError.
func classify(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var se *apperror.StoreError
	if errors.As(err, &se) {
		return err
	}
	return apperror.NewStoreError(kindOf(err), op, collection, err)
}

func kindOf(err error) apperror.Kind {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperror.KindNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, driver.ErrBadConn):
		return apperror.KindTransient
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated),
		errors.Is(err, gorm.ErrCheckConstraintViolated), errors.Is(err, gorm.ErrInvalidData),
		errors.Is(err, gorm.ErrInvalidValue), errors.Is(err, gorm.ErrInvalidField),
		errors.Is(err, gorm.ErrPrimaryKeyRequired), errors.Is(err, gorm.ErrMissingWhereClause):
		return apperror.KindValidation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return kindOfSQLState(pgErr.Code)
	}
	return apperror.KindTransient
}

// kindOfSQLState maps a Postgres SQLSTATE code.
// Class 23 is integrity violations, class 22 data exceptions, 42501 insufficient privilege
// and 28xxx authorization failures.
func kindOfSQLState(code string) apperror.Kind {
	switch {
	case code == "42501", strings.HasPrefix(code, "28"):
		return apperror.KindUnauthorized
	case strings.HasPrefix(code, "23"), strings.HasPrefix(code, "22"), code == "42703", code == "42P01":
		return apperror.KindValidation
	}
	return apperror.KindTransient
}
