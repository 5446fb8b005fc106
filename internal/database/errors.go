package database

import "errors"

// ErrDatabaseNotFound is returned by Open when the database file does not
// exist and creation is disabled.
var ErrDatabaseNotFound = errors.New("database not found")
