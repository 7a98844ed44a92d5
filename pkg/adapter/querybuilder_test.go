package adapter

import (
	"strings"
	"testing"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want int
	}{
		{"absent", nil, DefaultQueryLimit},
		{"negative", float64(-5), DefaultQueryLimit},
		{"within range", float64(200), 200},
		{"above max", float64(10_000), MaxQueryLimit},
		{"exactly max", float64(500), MaxQueryLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampLimit(tt.raw); got != tt.want {
				t.Errorf("ClampLimit(%v) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestClampOffset(t *testing.T) {
	if got := ClampOffset(nil); got != 0 {
		t.Errorf("ClampOffset(nil) = %d, want 0", got)
	}
	if got := ClampOffset(float64(-1)); got != 0 {
		t.Errorf("ClampOffset(-1) = %d, want 0", got)
	}
	if got := ClampOffset(float64(25)); got != 25 {
		t.Errorf("ClampOffset(25) = %d, want 25", got)
	}
}

func TestBuildQueryTableSQLPostgres(t *testing.T) {
	args, err := parseQueryTableArgs(map[string]any{
		"table_name": "users",
		"select":     []any{"id", "email"},
		"filters":    map[string]any{"active": true, "deleted_at": nil},
		"order_by":   "created_at",
		"limit":      float64(10),
	})
	if err != nil {
		t.Fatalf("parseQueryTableArgs() error: %v", err)
	}

	sql, sqlArgs, err := buildQueryTableSQL(postgresDialect, args)
	if err != nil {
		t.Fatalf("buildQueryTableSQL() error: %v", err)
	}

	if !strings.Contains(sql, `SELECT "id", "email" FROM "users"`) {
		t.Errorf("sql = %q, missing expected select/from clause", sql)
	}
	if !strings.Contains(sql, `"deleted_at" IS NULL`) {
		t.Errorf("sql = %q, missing null filter", sql)
	}
	if !strings.Contains(sql, `"active" = $1`) {
		t.Errorf("sql = %q, missing bound equality filter", sql)
	}
	if !strings.Contains(sql, `ORDER BY "created_at" ASC`) {
		t.Errorf("sql = %q, missing order by", sql)
	}
	if !strings.Contains(sql, "LIMIT $2 OFFSET $3") {
		t.Errorf("sql = %q, missing limit/offset clause", sql)
	}
	if len(sqlArgs) != 3 {
		t.Fatalf("sqlArgs = %v, want 3 positional args", sqlArgs)
	}
	if sqlArgs[1] != 10 || sqlArgs[2] != 0 {
		t.Errorf("sqlArgs = %v, want limit=10 offset=0", sqlArgs)
	}
}

func TestBuildQueryTableSQLRejectsBadIdentifier(t *testing.T) {
	args, err := parseQueryTableArgs(map[string]any{"table_name": "users; DROP TABLE x"})
	if err != nil {
		t.Fatalf("parseQueryTableArgs() error: %v", err)
	}
	if _, _, err := buildQueryTableSQL(postgresDialect, args); err == nil {
		t.Errorf("buildQueryTableSQL() with malicious table name = nil error, want rejection")
	}
}

func TestBuildQueryTableSQLMSSQLRequiresOrderBy(t *testing.T) {
	args, err := parseQueryTableArgs(map[string]any{"table_name": "users"})
	if err != nil {
		t.Fatalf("parseQueryTableArgs() error: %v", err)
	}
	sql, _, err := buildQueryTableSQL(mssqlDialect, args)
	if err != nil {
		t.Fatalf("buildQueryTableSQL() error: %v", err)
	}
	if !strings.Contains(sql, "ORDER BY") {
		t.Errorf("mssql sql = %q, must always include ORDER BY for OFFSET/FETCH", sql)
	}
	if !strings.Contains(sql, "OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY") {
		t.Errorf("mssql sql = %q, missing expected OFFSET/FETCH clause", sql)
	}
}
