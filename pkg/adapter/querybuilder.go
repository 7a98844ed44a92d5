package adapter

import (
	"fmt"
	"strings"

	"github.com/wisbric/mcpgateway/internal/sqlguard"
)

// MaxQueryLimit and DefaultQueryLimit implement §4.4.1's query_table clamp:
// limit is clamped to <= 500, defaulting to 50 when absent or negative.
const (
	MaxQueryLimit     = 500
	DefaultQueryLimit = 50
)

// ClampLimit normalizes a raw limit argument per §4.4.1 / §8 "Limit
// clamping": absent or negative becomes DefaultQueryLimit; anything above
// MaxQueryLimit is capped.
func ClampLimit(raw any) int {
	n, ok := toInt(raw)
	if !ok || n < 0 {
		return DefaultQueryLimit
	}
	if n > MaxQueryLimit {
		return MaxQueryLimit
	}
	return n
}

// ClampOffset normalizes a raw offset argument: absent or negative becomes 0.
func ClampOffset(raw any) int {
	n, ok := toInt(raw)
	if !ok || n < 0 {
		return 0
	}
	return n
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

// dialect captures the three things that differ between the SQL adapters
// (§4.4.1): identifier quoting, positional placeholder syntax, and the
// LIMIT/OFFSET clause shape.
type dialect struct {
	name       string
	quoteIdent func(string) string
	// placeholder returns the bound-parameter marker for the nth (1-based)
	// positional argument.
	placeholder func(n int) string
	// limitOffsetClause renders the trailing pagination clause given the
	// positional-argument indices that will hold limit and offset.
	limitOffsetClause func(limitArgIdx, offsetArgIdx int) string
}

func quoteDouble(s string) string { return `"` + s + `"` }
func quoteBacktick(s string) string { return "`" + s + "`" }
func quoteBracket(s string) string  { return "[" + s + "]" }

func dollarPlaceholder(n int) string  { return fmt.Sprintf("$%d", n) }
func questionPlaceholder(n int) string { return "?" }
func atPlaceholder(n int) string       { return fmt.Sprintf("@p%d", n) }

var postgresDialect = dialect{
	name:        "postgres",
	quoteIdent:  quoteDouble,
	placeholder: dollarPlaceholder,
	limitOffsetClause: func(limitIdx, offsetIdx int) string {
		return fmt.Sprintf("LIMIT %s OFFSET %s", dollarPlaceholder(limitIdx), dollarPlaceholder(offsetIdx))
	},
}

var mysqlDialect = dialect{
	name:        "mysql",
	quoteIdent:  quoteBacktick,
	placeholder: questionPlaceholder,
	limitOffsetClause: func(limitIdx, offsetIdx int) string {
		return "LIMIT ? OFFSET ?"
	},
}

var mssqlDialect = dialect{
	name:        "mssql",
	quoteIdent:  quoteBracket,
	placeholder: atPlaceholder,
	limitOffsetClause: func(limitIdx, offsetIdx int) string {
		return fmt.Sprintf("OFFSET %s ROWS FETCH NEXT %s ROWS ONLY", atPlaceholder(offsetIdx), atPlaceholder(limitIdx))
	},
}

// queryTableArgs is the parsed, clamped form of query_table's input (§4.4.1).
type queryTableArgs struct {
	TableName      string
	Select         []string
	Filters        map[string]any
	Limit          int
	Offset         int
	OrderBy        string
	OrderDirection string
}

func parseQueryTableArgs(args map[string]any) (queryTableArgs, error) {
	tableName, _ := args["table_name"].(string)
	if tableName == "" {
		return queryTableArgs{}, fmt.Errorf("table_name is required")
	}

	out := queryTableArgs{
		TableName: tableName,
		Limit:     ClampLimit(args["limit"]),
		Offset:    ClampOffset(args["offset"]),
	}

	if rawSelect, ok := args["select"].([]any); ok {
		for _, c := range rawSelect {
			if s, ok := c.(string); ok {
				out.Select = append(out.Select, s)
			}
		}
	}

	if rawFilters, ok := args["filters"].(map[string]any); ok {
		out.Filters = rawFilters
	}

	if orderBy, ok := args["order_by"].(string); ok {
		out.OrderBy = orderBy
	}

	dir, _ := args["order_direction"].(string)
	dir = strings.ToLower(strings.TrimSpace(dir))
	if dir != "desc" {
		dir = "asc"
	}
	out.OrderDirection = dir

	return out, nil
}

// buildQueryTableSQL renders a parameterized SELECT for query_table (§4.4.1).
// Every identifier passes through sqlguard.SanitizeIdentifier before
// dialect-native quoting; every value is bound as a positional parameter.
func buildQueryTableSQL(d dialect, a queryTableArgs) (string, []any, error) {
	table, err := sqlguard.SanitizeIdentifier(a.TableName)
	if err != nil {
		return "", nil, err
	}

	columns := "*"
	if len(a.Select) > 0 {
		quoted := make([]string, 0, len(a.Select))
		for _, c := range a.Select {
			ident, err := sqlguard.SanitizeIdentifier(c)
			if err != nil {
				return "", nil, err
			}
			quoted = append(quoted, d.quoteIdent(ident))
		}
		columns = strings.Join(quoted, ", ")
	}

	var (
		where []string
		args  []any
	)
	argIdx := 1

	// Stable iteration order (sorted keys) so identical filter sets always
	// produce identical SQL — useful for adapter tests and query logs.
	keys := make([]string, 0, len(a.Filters))
	for k := range a.Filters {
		keys = append(keys, k)
	}
	sortStrings(keys)

	for _, key := range keys {
		ident, err := sqlguard.SanitizeIdentifier(key)
		if err != nil {
			return "", nil, err
		}
		value := a.Filters[key]
		if value == nil {
			where = append(where, fmt.Sprintf("%s IS NULL", d.quoteIdent(ident)))
			continue
		}
		where = append(where, fmt.Sprintf("%s = %s", d.quoteIdent(ident), d.placeholder(argIdx)))
		args = append(args, value)
		argIdx++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, d.quoteIdent(table))
	if len(where) > 0 {
		fmt.Fprintf(&b, " WHERE %s", strings.Join(where, " AND "))
	}

	if a.OrderBy != "" {
		orderCol, err := sqlguard.SanitizeIdentifier(a.OrderBy)
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", d.quoteIdent(orderCol), strings.ToUpper(a.OrderDirection))
	} else if d.name == "mssql" {
		// SQL Server's OFFSET/FETCH requires an ORDER BY.
		fmt.Fprintf(&b, " ORDER BY (SELECT NULL)")
	}

	limitIdx, offsetIdx := argIdx, argIdx+1
	if d.name == "mssql" {
		// OFFSET precedes FETCH in SQL Server's clause order.
		offsetIdx, limitIdx = argIdx, argIdx+1
		args = append(args, a.Offset, a.Limit)
	} else {
		args = append(args, a.Limit, a.Offset)
	}
	b.WriteString(" ")
	b.WriteString(d.limitOffsetClause(limitIdx, offsetIdx))

	return b.String(), args, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
