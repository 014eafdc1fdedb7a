package dynamicschema

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lib/pq"
)

// TableEditor performs the DDL on the datastore holding the imported tables.
type TableEditor interface {
	DropTable(ctx context.Context, table string) error
	// CopyTable creates to as a copy of from, data included.
	CopyTable(ctx context.Context, from, to string) error
}

// PostgresTableEditor runs the DDL on the PostGIS datastore.
type PostgresTableEditor struct {
	db *sql.DB
}

func NewPostgresTableEditor(db *sql.DB) *PostgresTableEditor {
	return &PostgresTableEditor{db: db}
}

func (e *PostgresTableEditor) DropTable(ctx context.Context, table string) error {
	_, err := e.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+pq.QuoteIdentifier(table)) // #nosec G202
	if err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}

	return nil
}

func (e *PostgresTableEditor) CopyTable(ctx context.Context, from, to string) error {
	_, err := e.db.ExecContext(ctx, "CREATE TABLE "+pq.QuoteIdentifier(to)+" AS TABLE "+pq.QuoteIdentifier(from)) // #nosec G202
	if err != nil {
		return fmt.Errorf("failed to copy table %s into %s: %w", from, to, err)
	}

	return nil
}

// MemoryTableEditor records tables in memory, for tests and deployments without a datastore.
type MemoryTableEditor struct {
	mu     sync.Mutex
	tables map[string]bool
}

func NewMemoryTableEditor(tables ...string) *MemoryTableEditor {
	e := &MemoryTableEditor{tables: map[string]bool{}}
	for _, t := range tables {
		e.tables[t] = true
	}

	return e
}

// Create registers table, standing in for ogr2ogr.
func (e *MemoryTableEditor) Create(table string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tables[table] = true
}

func (e *MemoryTableEditor) Has(table string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.tables[table]
}

func (e *MemoryTableEditor) DropTable(_ context.Context, table string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.tables, table)

	return nil
}

func (e *MemoryTableEditor) CopyTable(_ context.Context, from, to string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.tables[from] {
		return fmt.Errorf("table %s does not exist", from)
	}

	if e.tables[to] {
		return fmt.Errorf("table %s already exists", to)
	}

	e.tables[to] = true

	return nil
}
