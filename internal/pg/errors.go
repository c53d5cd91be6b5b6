package pg

import (
	"errors"
	"fmt"
)

// ErrNoStatStatements marks a database without the pg_stat_statements
// extension. The slow-query check degrades to informational on it.
var ErrNoStatStatements = errors.New("pg_stat_statements extension not enabled")

// ConnectError wraps a failure to establish or verify a connection.
// Callers map it to an operational exit, distinct from check severity.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to database: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
