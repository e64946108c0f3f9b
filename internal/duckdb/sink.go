package duckdb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/seqfill/internal/output"
)

// DefaultDatasetTable is the table TableSink writes to unless told otherwise.
const DefaultDatasetTable = "dataset"

// TableSink writes dataset blocks into a DuckDB table. The first block
// replaces the table (all columns VARCHAR); later blocks are appended.
type TableSink struct {
	store  *Store
	table  string
	header []string
}

var _ output.Sink = (*TableSink)(nil)

// NewTableSink creates a sink writing to table in store.
func NewTableSink(store *Store, table string) *TableSink {
	if table == "" {
		table = DefaultDatasetTable
	}
	return &TableSink{store: store, table: table}
}

// WriteBlock appends rows using the Appender API.
func (t *TableSink) WriteBlock(header []string, rows [][]string) error {
	if t.header == nil {
		if err := t.createTable(header); err != nil {
			return err
		}
		t.header = slices.Clone(header)
	} else if err := output.CheckHeader(t.header, header); err != nil {
		return err
	}

	if len(rows) == 0 {
		return nil
	}

	conn, err := t.store.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", t.table)
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	values := make([]driver.Value, len(header))
	for _, row := range rows {
		for i := range values {
			values[i] = row[i]
		}
		if err := appender.AppendRow(values...); err != nil {
			return fmt.Errorf("append dataset row: %w", err)
		}
	}

	return appender.Flush()
}

// Count returns the number of rows in the dataset table.
func (t *TableSink) Count() (int64, error) {
	var n int64
	if err := t.store.db.QueryRow("SELECT COUNT(*) FROM " + quoteIdent(t.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dataset rows: %w", err)
	}
	return n, nil
}

// Close is a no-op; the store is owned by the caller.
func (t *TableSink) Close() error {
	return nil
}

func (t *TableSink) createTable(header []string) error {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = quoteIdent(h) + " VARCHAR"
	}
	if _, err := t.store.db.Exec("DROP TABLE IF EXISTS " + quoteIdent(t.table)); err != nil {
		return fmt.Errorf("drop dataset table: %w", err)
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.table), strings.Join(cols, ", "))
	if _, err := t.store.db.Exec(stmt); err != nil {
		return fmt.Errorf("create dataset table: %w", err)
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
