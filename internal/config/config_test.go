package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("gradeinsight-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8090" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Policy.IsolationColumn != "teacher_id" {
		t.Fatalf("Policy.IsolationColumn = %q", cfg.Policy.IsolationColumn)
	}
	if cfg.Policy.MaxRows != 50 {
		t.Fatalf("Policy.MaxRows = %d", cfg.Policy.MaxRows)
	}
	if cfg.Policy.QueryTimeout != 5*time.Second {
		t.Fatalf("Policy.QueryTimeout = %v", cfg.Policy.QueryTimeout)
	}
	if len(cfg.Policy.AllowedTables) != 6 {
		t.Fatalf("Policy.AllowedTables = %v", cfg.Policy.AllowedTables)
	}
	if cfg.Assistant.HistoryWindow != 6 {
		t.Fatalf("Assistant.HistoryWindow = %d", cfg.Assistant.HistoryWindow)
	}
	if cfg.Assistant.StrugglingThreshold != 70.0 {
		t.Fatalf("Assistant.StrugglingThreshold = %v", cfg.Assistant.StrugglingThreshold)
	}
	if cfg.AI.Model != "llama3.2:3b" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Timeout != 30*time.Second {
		t.Fatalf("AI.Timeout = %v", cfg.AI.Timeout)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"GRADEINSIGHT_PROFILE": "prod"})
	cfg, err := Load("gradeinsight-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"GRADEINSIGHT_HTTP_ADDR":                ":9999",
		"GRADEINSIGHT_DB_DSN":                   "postgres://example/db",
		"GRADEINSIGHT_POLICY_ALLOWED_TABLES":    "students, grades",
		"GRADEINSIGHT_POLICY_BLOCKED_KEYWORDS":  "DROP,DELETE",
		"GRADEINSIGHT_POLICY_ISOLATION_COLUMN":  "tenant_id",
		"GRADEINSIGHT_POLICY_QUERY_TIMEOUT":     "2s",
		"GRADEINSIGHT_POLICY_MAX_ROWS":          "25",
		"GRADEINSIGHT_AI_TIMEOUT":               "45s",
		"GRADEINSIGHT_AUTH_REQUIRED":            "true",
		"GRADEINSIGHT_AUTH_STATIC_KEYS":         "k1:7:chat",
		"GRADEINSIGHT_ASSISTANT_HISTORY_WINDOW": "4",
	})
	cfg, err := Load("gradeinsight-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Database.DSN != "postgres://example/db" {
		t.Fatalf("Database.DSN = %q", cfg.Database.DSN)
	}
	if len(cfg.Policy.AllowedTables) != 2 || cfg.Policy.AllowedTables[1] != "grades" {
		t.Fatalf("Policy.AllowedTables = %v", cfg.Policy.AllowedTables)
	}
	if len(cfg.Policy.BlockedKeywords) != 2 {
		t.Fatalf("Policy.BlockedKeywords = %v", cfg.Policy.BlockedKeywords)
	}
	if cfg.Policy.IsolationColumn != "tenant_id" {
		t.Fatalf("Policy.IsolationColumn = %q", cfg.Policy.IsolationColumn)
	}
	if cfg.Policy.QueryTimeout != 2*time.Second {
		t.Fatalf("Policy.QueryTimeout = %v", cfg.Policy.QueryTimeout)
	}
	if cfg.Policy.MaxRows != 25 {
		t.Fatalf("Policy.MaxRows = %d", cfg.Policy.MaxRows)
	}
	if cfg.AI.Timeout != 45*time.Second {
		t.Fatalf("AI.Timeout = %v", cfg.AI.Timeout)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should be true")
	}
	if cfg.Assistant.HistoryWindow != 4 {
		t.Fatalf("Assistant.HistoryWindow = %d", cfg.Assistant.HistoryWindow)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad profile":       {"GRADEINSIGHT_PROFILE": "staging"},
		"bad duration":      {"GRADEINSIGHT_POLICY_QUERY_TIMEOUT": "fast"},
		"bad int":           {"GRADEINSIGHT_POLICY_MAX_ROWS": "many"},
		"bad bool":          {"GRADEINSIGHT_AUTH_REQUIRED": "yep"},
		"bad log level":     {"GRADEINSIGHT_LOG_LEVEL": "loud"},
		"empty table list":  {"GRADEINSIGHT_POLICY_ALLOWED_TABLES": " , "},
		"zero max rows":     {"GRADEINSIGHT_POLICY_MAX_ROWS": "0"},
		"empty isolation":   {"GRADEINSIGHT_POLICY_ISOLATION_COLUMN": ""},
		"negative timeout":  {"GRADEINSIGHT_POLICY_QUERY_TIMEOUT": "-1s"},
		"bad ai temperature": {"GRADEINSIGHT_AI_TEMPERATURE": "warm"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load("gradeinsight-api", mapLookup(env)); err == nil {
				t.Fatalf("Load() with %v should fail", env)
			}
		})
	}
}

func TestLoadRequiresLookup(t *testing.T) {
	if _, err := Load("gradeinsight-api", nil); err == nil {
		t.Fatal("Load() with nil lookup should fail")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
