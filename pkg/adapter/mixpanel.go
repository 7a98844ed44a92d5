package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Mixpanel has no Go SDK anywhere in the reference corpus, so this adapter
// is a hand-rolled REST client in the same shape as the corpus's other
// SDK-less service wrappers: a *http.Client plus one method per endpoint,
// each building a request, setting auth, and decoding JSON.

var mixpanelTools = []ToolDef{
	{Name: "export_events", Description: "Export raw events in a date range.", InputSchema: map[string]any{
		"type": "object", "required": []string{"from_date", "to_date"},
		"properties": map[string]any{
			"from_date": map[string]any{"type": "string", "description": "YYYY-MM-DD"},
			"to_date":   map[string]any{"type": "string", "description": "YYYY-MM-DD"},
			"event":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"limit":     map[string]any{"type": "integer"},
		},
	}},
	{Name: "query_insights", Description: "Run a saved Insights report.", InputSchema: map[string]any{
		"type": "object", "required": []string{"bookmark_id"},
		"properties": map[string]any{
			"bookmark_id": map[string]any{"type": "integer"},
		},
	}},
}

const mixpanelMaxLimit = 1000

// MixpanelAdapter implements §4.4.3's Mixpanel wrapper. Required credential
// fields: "project_id", "service_account_username", "service_account_secret".
type MixpanelAdapter struct {
	httpClient *http.Client
}

func NewMixpanelAdapter() *MixpanelAdapter {
	return &MixpanelAdapter{httpClient: &http.Client{Timeout: statementTimeout}}
}

func (a *MixpanelAdapter) Service() string  { return "mixpanel" }
func (a *MixpanelAdapter) Tools() []ToolDef { return mixpanelTools }

func (a *MixpanelAdapter) Handle(ctx context.Context, tool string, args map[string]any, config Config) (Result, error) {
	projectID := config["project_id"]
	username := config["service_account_username"]
	secret := config["service_account_secret"]
	if projectID == "" || username == "" || secret == "" {
		return Result{Err: "credential missing required Mixpanel service-account fields"}, nil
	}

	switch tool {
	case "export_events":
		return a.exportEvents(ctx, projectID, username, secret, args)
	case "query_insights":
		return a.queryInsights(ctx, projectID, username, secret, args)
	default:
		return Result{Err: fmt.Sprintf("unknown tool %q", tool)}, nil
	}
}

func (a *MixpanelAdapter) exportEvents(ctx context.Context, projectID, username, secret string, args map[string]any) (Result, error) {
	fromDate, _ := args["from_date"].(string)
	toDate, _ := args["to_date"].(string)
	if fromDate == "" || toDate == "" {
		return Result{Err: "from_date and to_date are required"}, nil
	}

	q := url.Values{}
	q.Set("project_id", projectID)
	q.Set("from_date", fromDate)
	q.Set("to_date", toDate)
	if events, ok := args["event"].([]any); ok && len(events) > 0 {
		names := make([]string, 0, len(events))
		for _, e := range events {
			if s, ok := e.(string); ok {
				names = append(names, s)
			}
		}
		encoded, _ := json.Marshal(names)
		q.Set("event", string(encoded))
	}
	limit, ok := toInt(args["limit"])
	if !ok || limit < 0 {
		limit = DefaultQueryLimit
	}
	if limit > mixpanelMaxLimit {
		limit = mixpanelMaxLimit
	}
	q.Set("limit", fmt.Sprintf("%d", limit))

	resp, err := a.doBasicAuthGet(ctx, "https://data.mixpanel.com/api/2.0/export/?"+q.Encode(), username, secret)
	if err != nil {
		return Result{Err: err.Error()}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Err: fmt.Sprintf("mixpanel API error: unexpected status %d", resp.StatusCode)}, nil
	}

	// The export endpoint streams newline-delimited JSON, one event per line.
	var events []map[string]any
	decoder := json.NewDecoder(resp.Body)
	for decoder.More() {
		var event map[string]any
		if err := decoder.Decode(&event); err != nil {
			break
		}
		events = append(events, event)
	}
	return Result{Ok: map[string]any{"events": events}}, nil
}

func (a *MixpanelAdapter) queryInsights(ctx context.Context, projectID, username, secret string, args map[string]any) (Result, error) {
	bookmarkID, ok := toInt(args["bookmark_id"])
	if !ok {
		return Result{Err: "bookmark_id is required"}, nil
	}

	q := url.Values{}
	q.Set("project_id", projectID)
	q.Set("bookmark_id", fmt.Sprintf("%d", bookmarkID))

	resp, err := a.doBasicAuthGet(ctx, "https://mixpanel.com/api/2.0/insights/?"+q.Encode(), username, secret)
	if err != nil {
		return Result{Err: err.Error()}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Err: fmt.Sprintf("mixpanel API error: unexpected status %d", resp.StatusCode)}, nil
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{Err: fmt.Sprintf("mixpanel API error: decoding response: %v", err)}, nil
	}
	return Result{Ok: payload}, nil
}

func (a *MixpanelAdapter) doBasicAuthGet(ctx context.Context, rawURL, username, secret string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(username, secret)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mixpanel API error: %w", err)
	}
	return resp, nil
}
