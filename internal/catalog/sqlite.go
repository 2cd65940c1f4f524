package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"
)

// RecordsTable is the table a dataset database stores its JSON records in.
const RecordsTable = "results"

// StreamRecords iterates over every record of a dataset database in id order,
// calling fn for each one. Only one parsed record is alive at a time.
func StreamRecords(ctx context.Context, dbPath string, fn func(id string, record any) error) error {
	// sql.Open would create a missing file.
	if _, err := os.Stat(dbPath); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.QueryContext(ctx, "SELECT id, record FROM "+RecordsTable+" ORDER BY id")
	if err != nil {
		return fmt.Errorf("query %s: %w", RecordsTable, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		parsed, err := oj.ParseString(raw)
		if err != nil {
			return fmt.Errorf("parse record %s: %w", id, err)
		}
		if err := fn(id, parsed); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LoadRecords reads every record of a dataset database.
func LoadRecords(ctx context.Context, dbPath string) ([]any, error) {
	var records []any
	err := StreamRecords(ctx, dbPath, func(_ string, record any) error {
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
