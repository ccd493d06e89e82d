package db

import (
	"database/sql"

	libdb "coursehub/backend/libs/db"
)

// NewPostgres returns shared DB connection pool.
func NewPostgres(dsn string) (*sql.DB, error) {
	return libdb.NewPostgresDB(dsn, libdb.DefaultPoolOptions())
}
