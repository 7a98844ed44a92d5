package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// connectTimeout and statementTimeout are the connection-discipline floors
// of §4.4.1: every SQL adapter opens a fresh connection per request and
// tears it down in an always-run release path, never pooling across
// requests or tenants (§5, §9 — the pool key would otherwise have to be the
// credential id).
const (
	connectTimeout   = 10 * time.Second
	statementTimeout = 30 * time.Second
)

// sslRequested reports whether a credential's "ssl" config field is truthy
// (§4.4.1: "true"/"1"/"on").
func sslRequested(config Config) bool {
	v := strings.ToLower(strings.TrimSpace(config["ssl"]))
	return v == "true" || v == "1" || v == "on"
}

// openAndPing opens driverName/dsn, caps it to a single connection (so
// "fresh connection per request" holds even though database/sql pools by
// default), and pings with connectTimeout. The caller must always Close the
// returned *sql.DB, including on error paths further down the call.
func openAndPing(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return db, nil
}

// withStatementTimeout bounds a single query/exec with statementTimeout,
// further bounded by the caller's own context (the edge's request
// deadline) — the shorter of the two applies (§5).
func withStatementTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, statementTimeout)
}

// scanRowsToMaps drains rows into a slice of column-name → value maps,
// which is the shape every SQL adapter returns to the client as JSON.
func scanRowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	out := []map[string]any{}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeScanValue(raw[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// normalizeScanValue converts driver-specific scan types (notably []byte for
// text-ish columns) into JSON-friendly values.
func normalizeScanValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
