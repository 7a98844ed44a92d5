package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wisbric/mcpgateway/internal/sqlguard"
)

var supabaseTools = []ToolDef{
	{Name: "list_tables", Description: "List tables exposed by the project's PostgREST OpenAPI spec.", InputSchema: map[string]any{"type": "object", "properties": map[string]any{}}},
	{Name: "describe_table", Description: "Describe a table's columns from the OpenAPI spec.", InputSchema: map[string]any{
		"type": "object", "required": []string{"table_name"},
		"properties": map[string]any{"table_name": map[string]any{"type": "string"}},
	}},
	{Name: "query_table", Description: "Query a table via PostgREST filter/ordering syntax.", InputSchema: map[string]any{
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
	{Name: "execute_sql", Description: "Run a read-only SQL statement via the project's execute_readonly_query RPC helper.", InputSchema: map[string]any{
		"type": "object", "required": []string{"sql"},
		"properties": map[string]any{"sql": map[string]any{"type": "string"}},
	}},
}

// SupabaseAdapter implements §4.4.2. Required credential fields: "project_url"
// (e.g. https://xyzcompany.supabase.co) and "api_key" (the service role key,
// sent as both apikey and Authorization: Bearer).
type SupabaseAdapter struct {
	httpClient *http.Client
}

func NewSupabaseAdapter() *SupabaseAdapter {
	return &SupabaseAdapter{httpClient: &http.Client{Timeout: statementTimeout}}
}

func (a *SupabaseAdapter) Service() string  { return "supabase" }
func (a *SupabaseAdapter) Tools() []ToolDef { return supabaseTools }

func (a *SupabaseAdapter) Handle(ctx context.Context, tool string, args map[string]any, config Config) (Result, error) {
	projectURL := strings.TrimRight(config["project_url"], "/")
	apiKey := config["api_key"]
	if projectURL == "" || apiKey == "" {
		return Result{Err: "credential missing required field \"project_url\" or \"api_key\""}, nil
	}

	switch tool {
	case "list_tables":
		spec, err := a.fetchOpenAPISpec(ctx, projectURL, apiKey)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		var tables []string
		for path := range spec.Paths {
			if name, ok := restTableName(path); ok {
				tables = append(tables, name)
			}
		}
		return Result{Ok: map[string]any{"tables": tables}}, nil

	case "describe_table":
		tableName, _ := args["table_name"].(string)
		if tableName == "" {
			return Result{Err: "table_name is required"}, nil
		}
		spec, err := a.fetchOpenAPISpec(ctx, projectURL, apiKey)
		if err != nil {
			return Result{Err: err.Error()}, nil
		}
		def, ok := spec.Definitions[tableName]
		if !ok {
			return Result{Err: fmt.Sprintf("table %q not found", tableName)}, nil
		}
		var columns []map[string]any
		for name, prop := range def.Properties {
			columns = append(columns, map[string]any{
				"column_name": name,
				"data_type":   prop.Format,
			})
		}
		return Result{Ok: map[string]any{"columns": columns}}, nil

	case "query_table":
		return a.queryTable(ctx, projectURL, apiKey, args)

	case "execute_sql":
		stmt, _ := args["sql"].(string)
		if err := sqlguard.CheckReadOnly(stmt); err != nil {
			return Result{Err: err.Error()}, nil
		}
		return a.executeSQL(ctx, projectURL, apiKey, stmt)

	default:
		return Result{Err: fmt.Sprintf("unknown tool %q", tool)}, nil
	}
}

func restTableName(path string) (string, bool) {
	path = strings.TrimPrefix(path, "/")
	if path == "" || strings.Contains(path, "{") || strings.HasPrefix(path, "rpc/") {
		return "", false
	}
	return path, true
}

type openAPISpec struct {
	Paths       map[string]any         `json:"paths"`
	Definitions map[string]openAPIDef  `json:"definitions"`
}

type openAPIDef struct {
	Properties map[string]openAPIProp `json:"properties"`
}

type openAPIProp struct {
	Format string `json:"format"`
	Type   string `json:"type"`
}

func (a *SupabaseAdapter) fetchOpenAPISpec(ctx context.Context, projectURL, apiKey string) (*openAPISpec, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, projectURL+"/rest/v1/", nil)
	if err != nil {
		return nil, fmt.Errorf("building OpenAPI request: %w", err)
	}
	a.setAuthHeaders(req, apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching OpenAPI spec: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supabase API error: unexpected status %d fetching OpenAPI spec", resp.StatusCode)
	}

	var spec openAPISpec
	if err := json.NewDecoder(resp.Body).Decode(&spec); err != nil {
		return nil, fmt.Errorf("decoding OpenAPI spec: %w", err)
	}
	return &spec, nil
}

func (a *SupabaseAdapter) queryTable(ctx context.Context, projectURL, apiKey string, args map[string]any) (Result, error) {
	tableName, _ := args["table_name"].(string)
	if tableName == "" {
		return Result{Err: "table_name is required"}, nil
	}
	if _, err := sqlguard.SanitizeIdentifier(tableName); err != nil {
		return Result{Err: err.Error()}, nil
	}

	parsed, err := parseQueryTableArgs(args)
	if err != nil {
		return Result{Err: err.Error()}, nil
	}

	q := url.Values{}
	if len(parsed.Select) > 0 {
		q.Set("select", strings.Join(parsed.Select, ","))
	}
	for key, value := range parsed.Filters {
		if value == nil {
			q.Set(key, "is.null")
		} else {
			q.Set(key, fmt.Sprintf("eq.%v", value))
		}
	}
	if parsed.OrderBy != "" {
		q.Set("order", fmt.Sprintf("%s.%s", parsed.OrderBy, parsed.OrderDirection))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, projectURL+"/rest/v1/"+tableName+"?"+q.Encode(), nil)
	if err != nil {
		return Result{Err: err.Error()}, nil
	}
	a.setAuthHeaders(req, apiKey)
	req.Header.Set("Range-Unit", "items")
	req.Header.Set("Range", fmt.Sprintf("%d-%d", parsed.Offset, parsed.Offset+parsed.Limit-1))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Result{Err: fmt.Sprintf("supabase API error: %v", err)}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Result{Err: fmt.Sprintf("supabase API error: unexpected status %d", resp.StatusCode)}, nil
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return Result{Err: fmt.Sprintf("supabase API error: decoding response: %v", err)}, nil
	}
	return Result{Ok: map[string]any{"rows": rows}}, nil
}

// executeSQL follows §4.4.2 / §9's documented open question: when the
// project has not installed the execute_readonly_query helper function,
// return a structured hint pointing at query_table instead of raising.
func (a *SupabaseAdapter) executeSQL(ctx context.Context, projectURL, apiKey, stmt string) (Result, error) {
	body, err := json.Marshal(map[string]string{"query_text": stmt})
	if err != nil {
		return Result{Err: err.Error()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, projectURL+"/rest/v1/rpc/execute_readonly_query", strings.NewReader(string(body)))
	if err != nil {
		return Result{Err: err.Error()}, nil
	}
	a.setAuthHeaders(req, apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Result{Err: fmt.Sprintf("supabase API error: %v", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Result{Ok: map[string]any{
			"hint": "execute_readonly_query helper is not installed on this project; use query_table instead",
		}}, nil
	}
	if resp.StatusCode >= 300 {
		return Result{Err: fmt.Sprintf("supabase API error: unexpected status %d", resp.StatusCode)}, nil
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return Result{Err: fmt.Sprintf("supabase API error: decoding response: %v", err)}, nil
	}
	return Result{Ok: map[string]any{"rows": rows}}, nil
}

func (a *SupabaseAdapter) setAuthHeaders(req *http.Request, apiKey string) {
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+apiKey)
}
