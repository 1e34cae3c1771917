package storage

import (
	"fmt"
	"strings"
)

// Dialect abstracts database-specific SQL syntax differences so the same
// store logic works across SQLite and PostgreSQL.
type Dialect interface {
	// Name returns the dialect name (e.g., "sqlite", "postgres")
	Name() string

	// Placeholder returns a parameter placeholder for the given 1-based index.
	// SQLite uses ?, PostgreSQL uses $1, $2, etc.
	Placeholder(index int) string

	// AutoIncrement returns the column type for auto-incrementing primary keys.
	AutoIncrement(big bool) string

	// TimestampType returns the column type for timestamps.
	TimestampType() string

	// BoolType returns the column type for boolean values.
	BoolType() string

	// CurrentTimestamp returns the SQL expression for current timestamp.
	CurrentTimestamp() string

	// UpsertConflict returns the upsert clause for the database.
	UpsertConflict(conflictColumns []string) string

	// TextType returns the TEXT column type.
	TextType() string
}

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return "?"
}

func (d *SQLiteDialect) AutoIncrement(big bool) string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d *SQLiteDialect) TimestampType() string {
	return "DATETIME"
}

func (d *SQLiteDialect) BoolType() string {
	return "INTEGER"
}

func (d *SQLiteDialect) CurrentTimestamp() string {
	return "CURRENT_TIMESTAMP"
}

func (d *SQLiteDialect) UpsertConflict(conflictColumns []string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET", strings.Join(conflictColumns, ", "))
}

func (d *SQLiteDialect) TextType() string {
	return "TEXT"
}

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

var _ Dialect = (*PostgresDialect)(nil)

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) AutoIncrement(big bool) string {
	if big {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "SERIAL PRIMARY KEY"
}

func (d *PostgresDialect) TimestampType() string {
	return "TIMESTAMPTZ"
}

func (d *PostgresDialect) BoolType() string {
	return "BOOLEAN"
}

func (d *PostgresDialect) CurrentTimestamp() string {
	return "NOW()"
}

func (d *PostgresDialect) UpsertConflict(conflictColumns []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET", strings.Join(conflictColumns, ", "))
}

func (d *PostgresDialect) TextType() string {
	return "TEXT"
}

// ConvertPlaceholders converts SQLite-style ? placeholders to PostgreSQL-style
// $n placeholders so queries can be written once.
func ConvertPlaceholders(query string) string {
	var result strings.Builder
	result.Grow(len(query) + 10)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result.WriteString(fmt.Sprintf("$%d", n))
			n++
		} else {
			result.WriteByte(query[i])
		}
	}
	return result.String()
}
