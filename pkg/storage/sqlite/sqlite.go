// Package sqlite provides a SQLite-backed storage driver using ent.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/mattn/go-sqlite3"

	entdriver "github.com/papercomputeco/wenshu/pkg/storage/ent/driver"
)

// Driver implements storage.Driver using SQLite via the ent driver.
type Driver struct {
	*entdriver.EntDriver
}

// NewDriver creates a new SQLite-backed driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is its own database, and the pragmas
	// below are per connection.
	db.SetMaxOpenConns(1)

	// SQLite-specific pragmas
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	// Wrap the database connection with ent's SQL driver
	driver := entdriver.New(entsql.OpenDB(dialect.SQLite, db))

	// Run ent's auto-migration to create/update the schema
	if err := driver.Schema.Create(ctx); err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{EntDriver: driver}, nil
}
