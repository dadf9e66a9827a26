package repository

import "strings"

// pageOffset converts a 1-based page number into a row offset.
func pageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// isUniqueViolation detects unique-constraint failures for both Postgres
// (SQLSTATE 23505 in the pgdriver error text) and SQLite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
