package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrStaleRefreshToken    = errors.New("refresh token was modified concurrently")
	ErrUserNotFound         = errors.New("user not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrDuplicateKey         = errors.New("duplicate key")
	ErrUserInUse            = errors.New("user still owns tokens or appointments")
)

const (
	mysqlDuplicateEntry         = 1062
	mysqlRowIsReferenced        = 1451
	postgresUniqueViolation     = "23505"
	postgresForeignKeyViolation = "23503"
)

// isDuplicateKey reports whether err is a unique-constraint violation from
// either supported driver.
func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation {
		return true
	}
	return false
}

// isForeignKeyViolation reports whether err rejected a delete because other
// rows still reference the deleted one.
func isForeignKeyViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlRowIsReferenced {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == postgresForeignKeyViolation {
		return true
	}
	return false
}
