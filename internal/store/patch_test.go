package store

import "database/sql"

// openForPatch opens a built store read-write so tests can tamper with it.
func openForPatch(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path)
}
