package httpserver

import (
	"testing"
)

// toolsCallPayload mirrors the shape internal/rpc validates on every
// tools/call request (name required, arguments free-form).
type toolsCallPayload struct {
	Name      string         `json:"name" validate:"required"`
	Arguments map[string]any `json:"arguments"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		payload   toolsCallPayload
		wantCount int
	}{
		{
			name:      "valid payload",
			payload:   toolsCallPayload{Name: "list_tables"},
			wantCount: 0,
		},
		{
			name:      "valid payload with arguments",
			payload:   toolsCallPayload{Name: "query_table", Arguments: map[string]any{"table_name": "users"}},
			wantCount: 0,
		},
		{
			name:      "missing name",
			payload:   toolsCallPayload{},
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.payload)
			if len(errs) != tt.wantCount {
				t.Errorf("Validate() returned %d errors, want %d: %+v", len(errs), tt.wantCount, errs)
			}
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Name", "name"},
		{"CreatedAt", "created_at"},
		{"ID", "i_d"},
		{"PageSize", "page_size"},
		{"lowercase", "lowercase"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := toSnakeCase(tt.in)
			if got != tt.want {
				t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
