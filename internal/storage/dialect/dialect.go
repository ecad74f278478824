// Package dialect describes the SQL differences between the databases the
// sqldb store runs on.
package dialect

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect is the per-database vocabulary used when building schema and
// queries. The zero value is not usable; use SQLite, Postgres or Lookup.
type Dialect struct {
	// Name is the canonical dialect name ("sqlite" or "postgres").
	Name string
	// Driver is the database/sql driver name.
	Driver string

	Serial    string // column definition of an auto-increment key
	Boolean   string
	Timestamp string

	// Pragmas are applied to every pooled connection through the DSN,
	// as name(value) pairs.
	Pragmas []string
	// MaxOpenConns caps the pool; zero leaves it unlimited.
	MaxOpenConns int
	// RowLock is appended to a SELECT that reads a row about to be updated
	// inside a transaction.
	RowLock string

	numbered bool
	uniqueOf func(error) bool
}

// SQLite is modernc.org/sqlite.
var SQLite = Dialect{
	Name:      "sqlite",
	Driver:    "sqlite",
	Serial:    "INTEGER PRIMARY KEY AUTOINCREMENT",
	Boolean:   "INTEGER",
	Timestamp: "TIMESTAMP",
	Pragmas: []string{
		"busy_timeout(5000)",
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"foreign_keys(1)",
	},
	// One writer at a time: a read-modify-write transaction holds the only
	// connection, so updates of one chain serialize inside the process.
	MaxOpenConns: 1,
	uniqueOf: func(err error) bool {
		var se *sqlite.Error
		if !errors.As(err, &se) {
			return false
		}
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(se.Error(), "UNIQUE")
		}
		return false
	},
}

// Postgres is lib/pq.
var Postgres = Dialect{
	Name:      "postgres",
	Driver:    "postgres",
	Serial:    "BIGSERIAL PRIMARY KEY",
	Boolean:   "BOOLEAN",
	Timestamp: "TIMESTAMP WITH TIME ZONE",
	RowLock:   " FOR UPDATE",
	numbered:  true,
	uniqueOf: func(err error) bool {
		var pe *pq.Error
		return errors.As(err, &pe) && pe.Code == "23505"
	},
}

// Lookup returns the dialect for a driver name or one of its aliases.
func Lookup(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// DSN adds the dialect's connection parameters to dsn. For SQLite these are
// the pragmas and an immediate transaction lock, so a transaction takes the
// write lock up front instead of failing on upgrade.
func (d Dialect) DSN(dsn string) string {
	if len(d.Pragmas) == 0 {
		return dsn
	}
	params := url.Values{}
	for _, p := range d.Pragmas {
		params.Add("_pragma", p)
	}
	params.Set("_txlock", "immediate")

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + params.Encode()
}

// Rebind rewrites ? placeholders into the dialect's form. Question marks
// inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n, quoted := 0, false
	for _, ch := range query {
		switch {
		case ch == '\'':
			quoted = !quoted
			b.WriteRune(ch)
		case ch == '?' && !quoted:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// Upsert returns the ON CONFLICT clause that overwrites columns when the
// conflict column already exists. With no columns the insert is skipped.
func (d Dialect) Upsert(conflict string, columns ...string) string {
	if len(columns) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", conflict)
	}
	sets := make([]string, len(columns))
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", conflict, strings.Join(sets, ", "))
}

// IsUniqueViolation reports whether err is the driver's unique or primary
// key constraint error.
func (d Dialect) IsUniqueViolation(err error) bool {
	return err != nil && d.uniqueOf != nil && d.uniqueOf(err)
}
