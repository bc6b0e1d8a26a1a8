package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect covers the SQL differences between the supported databases.
type Dialect interface {
	// Name is the config.LoaderConfig driver name.
	Name() string
	// DriverName is the database/sql driver registered for the dialect.
	DriverName() string
	Quote(ident string) string
	// Placeholder returns the bind parameter for the n-th argument, starting at 1.
	Placeholder(n int) string
	ColumnType(kind ColumnKind) string
	// MaxParams bounds the bind parameters of one statement; 0 means the dialect copies rows.
	MaxParams() int
	Truncate(table string) string
}

// DialectFor returns the dialect for a config.LoaderConfig driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return postgresDialect{}, nil
	case "mysql":
		return mysqlDialect{}, nil
	case "sqlite":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string              { return "postgres" }
func (postgresDialect) DriverName() string        { return "postgres" }
func (postgresDialect) Quote(ident string) string { return pq.QuoteIdentifier(ident) }
func (postgresDialect) Placeholder(n int) string  { return "$" + strconv.Itoa(n) }
func (postgresDialect) MaxParams() int            { return 0 }

func (postgresDialect) ColumnType(kind ColumnKind) string {
	switch kind {
	case KindFloat:
		return "DOUBLE PRECISION"
	case KindInt:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (d postgresDialect) Truncate(table string) string {
	return "TRUNCATE TABLE " + d.Quote(table)
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string           { return "mysql" }
func (mysqlDialect) DriverName() string     { return "mysql" }
func (mysqlDialect) Placeholder(int) string { return "?" }
func (mysqlDialect) MaxParams() int         { return 65535 }

func (mysqlDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) ColumnType(kind ColumnKind) string {
	switch kind {
	case KindFloat:
		return "DOUBLE"
	case KindInt:
		return "INT"
	default:
		return "TEXT"
	}
}

// Truncate uses DELETE because TRUNCATE commits the surrounding transaction in MySQL.
func (d mysqlDialect) Truncate(table string) string {
	return "DELETE FROM " + d.Quote(table)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) DriverName() string     { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) MaxParams() int         { return 32766 }

func (sqliteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) ColumnType(kind ColumnKind) string {
	switch kind {
	case KindFloat:
		return "REAL"
	case KindInt:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (d sqliteDialect) Truncate(table string) string {
	return "DELETE FROM " + d.Quote(table)
}
