package sqlguard

import "testing"

func TestCheckReadOnlyAccepts(t *testing.T) {
	tests := []string{
		"SELECT * FROM users",
		"  select id from orders  ",
		"WITH recent AS (SELECT 1) SELECT * FROM recent",
		"SELECT name FROM \"Customers\"",
	}
	for _, sql := range tests {
		if err := CheckReadOnly(sql); err != nil {
			t.Errorf("CheckReadOnly(%q) = %v, want accept", sql, err)
		}
	}
}

func TestCheckReadOnlyRejects(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"insert", "INSERT INTO users (id) VALUES (1)"},
		{"update", "UPDATE users SET name = 'x'"},
		{"delete", "DELETE FROM users"},
		{"drop", "DROP TABLE users"},
		{"truncate", "TRUNCATE users"},
		{"alter", "ALTER TABLE users ADD COLUMN x int"},
		{"create", "CREATE TABLE x (id int)"},
		{"grant", "SELECT 1; GRANT ALL ON users TO public"},
		{"revoke", "SELECT * FROM users WHERE 1=1 AND REVOKE"},
		{"exec", "EXEC sp_who"},
		{"execute", "EXECUTE sp_who"},
		{"multi-statement", "SELECT 1; DROP TABLE users"},
		{"line comment", "SELECT 1 -- DROP TABLE users"},
		{"block comment", "SELECT 1 /* sneaky */"},
		{"not a select", "TABLE users"},
		{"update disguised as identifier prefix", "UPDATEXYZ users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := CheckReadOnly(tt.sql); err == nil {
				t.Errorf("CheckReadOnly(%q) = nil, want error", tt.sql)
			}
		})
	}
}

func TestCheckReadOnlyWholeWordNotSubstring(t *testing.T) {
	// "updated_at" contains "UPDATE" as a substring but not as a whole word.
	if err := CheckReadOnly("SELECT updated_at FROM users"); err != nil {
		t.Errorf("CheckReadOnly() rejected a column name containing a keyword substring: %v", err)
	}
}

func TestSanitizeIdentifierAccepts(t *testing.T) {
	tests := []string{"users", "public.users", "Order_Items", "a", "_leading"}
	for _, name := range tests {
		got, err := SanitizeIdentifier(name)
		if err != nil {
			t.Errorf("SanitizeIdentifier(%q) error: %v", name, err)
		}
		if got != name {
			t.Errorf("SanitizeIdentifier(%q) = %q, want unchanged", name, got)
		}
	}
}

func TestSanitizeIdentifierRejects(t *testing.T) {
	tests := []string{
		"",
		"users; DROP TABLE x",
		"users--",
		"users/*",
		"users table",
		"users'",
		"users\"",
		string(make([]byte, 129)),
	}
	for _, name := range tests {
		if _, err := SanitizeIdentifier(name); err == nil {
			t.Errorf("SanitizeIdentifier(%q) = nil error, want rejection", name)
		}
	}
}
