package adapter

import (
	"context"
	"fmt"
	"net/url"

	_ "github.com/denisenkom/go-mssqldb" // registers the "sqlserver" database/sql driver

	"github.com/wisbric/mcpgateway/internal/sqlguard"
)

var mssqlTools = []ToolDef{
	{Name: "list_tables", Description: "List base tables across all non-system schemas, prefixed schema.table.", InputSchema: map[string]any{"type": "object", "properties": map[string]any{}}},
	{Name: "describe_table", Description: "Describe a table's columns.", InputSchema: map[string]any{
		"type": "object", "required": []string{"table_name"},
		"properties": map[string]any{"table_name": map[string]any{"type": "string"}},
	}},
	{Name: "query_table", Description: "Run a parameterized SELECT against one table.", InputSchema: map[string]any{
		"type": "object", "required": []string{"table_name"},
		"properties": map[string]any{
			"table_name":      map[string]any{"type": "string"},
			"select":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"filters":         map[string]any{"type": "object"},
			"limit":           map[string]any{"type": "integer"},
			"offset":          map[string]any{"type": "integer"},
			"order_by":        map[string]any{"type": "string"},
			"order_direction": map[string]any{"type": "string", "enum": []string{"asc", "desc"}},
		},
	}},
	{Name: "execute_sql", Description: "Run an arbitrary read-only SQL statement.", InputSchema: map[string]any{
		"type": "object", "required": []string{"sql"},
		"properties": map[string]any{"sql": map[string]any{"type": "string"}},
	}},
}

// systemSchemas are excluded from MSSQLAdapter's list_tables (§4.4.1: "all
// non-system schemas").
var systemSchemas = map[string]bool{
	"sys":                true,
	"INFORMATION_SCHEMA": true,
}

// MSSQLAdapter implements the §4.4.1 SQL adapter for Microsoft SQL Server.
type MSSQLAdapter struct{}

func NewMSSQLAdapter() *MSSQLAdapter { return &MSSQLAdapter{} }

func (a *MSSQLAdapter) Service() string  { return "mssql" }
func (a *MSSQLAdapter) Tools() []ToolDef { return mssqlTools }

func (a *MSSQLAdapter) Handle(ctx context.Context, tool string, args map[string]any, config Config) (Result, error) {
	dsn, err := mssqlDSN(config)
	if err != nil {
		return Result{Err: err.Error()}, nil
	}

	db, err := openAndPing(ctx, "sqlserver", dsn)
	if err != nil {
		return Result{Err: err.Error()}, nil
	}
	defer db.Close()

	queryCtx, cancel := withStatementTimeout(ctx)
	defer cancel()

	switch tool {
	case "list_tables":
		rows, err := db.QueryContext(queryCtx, `
			SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_TYPE = 'BASE TABLE'
			ORDER BY TABLE_SCHEMA, TABLE_NAME`)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		defer rows.Close()

		var tables []string
		for rows.Next() {
			var schema, name string
			if err := rows.Scan(&schema, &name); err != nil {
				return Result{Err: err.Error()}, nil
			}
			if systemSchemas[schema] {
				continue
			}
			tables = append(tables, fmt.Sprintf("%s.%s", schema, name))
		}
		return Result{Ok: map[string]any{"tables": tables}}, nil

	case "describe_table":
		tableName, _ := args["table_name"].(string)
		if tableName == "" {
			return Result{Err: "table_name is required"}, nil
		}
		if _, err := sqlguard.SanitizeIdentifier(tableName); err != nil {
			return Result{Err: err.Error()}, nil
		}

		rows, err := db.QueryContext(queryCtx, `
			SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT, CHARACTER_MAXIMUM_LENGTH
			FROM INFORMATION_SCHEMA.COLUMNS
			WHERE TABLE_NAME = @p1
			ORDER BY ORDINAL_POSITION`, tableName)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		defer rows.Close()

		columns, err := scanRowsToMaps(rows)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		if len(columns) == 0 {
			return Result{Err: fmt.Sprintf("table %q not found", tableName)}, nil
		}
		return Result{Ok: map[string]any{"columns": columns}}, nil

	case "query_table":
		parsed, err := parseQueryTableArgs(args)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		sqlText, sqlArgs, err := buildQueryTableSQL(mssqlDialect, parsed)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		rows, err := db.QueryContext(queryCtx, sqlText, sqlArgs...)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		defer rows.Close()

		records, err := scanRowsToMaps(rows)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		return Result{Ok: map[string]any{"rows": records}}, nil

	case "execute_sql":
		stmt, _ := args["sql"].(string)
		if err := sqlguard.CheckReadOnly(stmt); err != nil {
			return Result{Err: err.Error()}, nil
		}
		rows, err := db.QueryContext(queryCtx, stmt)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		defer rows.Close()

		records, err := scanRowsToMaps(rows)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		return Result{Ok: map[string]any{"rows": records}}, nil

	default:
		return Result{Err: fmt.Sprintf("unknown tool %q", tool)}, nil
	}
}

func mssqlDSN(config Config) (string, error) {
	host := config["host"]
	if host == "" {
		return "", fmt.Errorf("credential missing required field %q", "host")
	}
	port := config["port"]
	if port == "" {
		port = "1433"
	}

	q := url.Values{}
	q.Set("database", config["database"])
	q.Set("connection timeout", "10")
	q.Set("dial timeout", "10")

	if sslRequested(config) {
		// §4.4.1: accept upstream certificates without chain validation.
		q.Set("encrypt", "true")
		q.Set("TrustServerCertificate", "true")
	} else {
		q.Set("encrypt", "disable")
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(config["user"], config["password"]),
		Host:     fmt.Sprintf("%s:%s", host, port),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}
