package memory

import "database/sql"

// KeywordDB exposes the keyword index database for tests in memory_test.
// This file only compiles during `go test`.
func (s *Store) KeywordDB() *sql.DB {
	return s.keywords.db
}

// SetOpenDB swaps the database opener and returns a restore func.
func SetOpenDB(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	prev := openDB
	openDB = fn
	return func() { openDB = prev }
}
