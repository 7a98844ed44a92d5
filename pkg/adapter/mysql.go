package adapter

import (
	"context"
	"crypto/tls"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/wisbric/mcpgateway/internal/sqlguard"
)

var mysqlTools = []ToolDef{
	{Name: "list_tables", Description: "List base tables in the connection's default schema.", InputSchema: map[string]any{"type": "object", "properties": map[string]any{}}},
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

// MySQLAdapter implements the §4.4.1 SQL adapter for MySQL.
type MySQLAdapter struct{}

func NewMySQLAdapter() *MySQLAdapter { return &MySQLAdapter{} }

func (a *MySQLAdapter) Service() string  { return "mysql" }
func (a *MySQLAdapter) Tools() []ToolDef { return mysqlTools }

func (a *MySQLAdapter) Handle(ctx context.Context, tool string, args map[string]any, config Config) (Result, error) {
	dsn, err := mysqlDSN(config)
	if err != nil {
		return Result{Err: err.Error()}, nil
	}

	db, err := openAndPing(ctx, "mysql", dsn)
	if err != nil {
		return Result{Err: err.Error()}, nil
	}
	defer db.Close()

	queryCtx, cancel := withStatementTimeout(ctx)
	defer cancel()

	switch tool {
	case "list_tables":
		rows, err := db.QueryContext(queryCtx, `
			SELECT table_name FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
			ORDER BY table_name`)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		defer rows.Close()

		var tables []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return Result{Err: err.Error()}, nil
			}
			tables = append(tables, name)
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
			SELECT column_name, data_type, is_nullable, column_default, character_maximum_length
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`, tableName)
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
		sqlText, sqlArgs, err := buildQueryTableSQL(mysqlDialect, parsed)
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

func mysqlDSN(config Config) (string, error) {
	host := config["host"]
	if host == "" {
		return "", fmt.Errorf("credential missing required field %q", "host")
	}
	port := config["port"]
	if port == "" {
		port = "3306"
	}
	user := config["user"]
	password := config["password"]
	dbname := config["database"]

	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", host, port)
	cfg.User = user
	cfg.Passwd = password
	cfg.DBName = dbname
	cfg.Timeout = connectTimeout
	cfg.ParseTime = true

	if sslRequested(config) {
		tlsConfigName := "gateway-" + host
		// §4.4.1: accept upstream certificates without chain validation.
		if err := mysqldriver.RegisterTLSConfig(tlsConfigName, &tls.Config{InsecureSkipVerify: true}); err != nil {
			return "", fmt.Errorf("registering TLS config: %w", err)
		}
		cfg.TLSConfig = tlsConfigName
	}

	return cfg.FormatDSN(), nil
}
