package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gradeinsight/gradeinsight/internal/config"
)

func TestStripMarkdownSQL(t *testing.T) {
	got := stripMarkdownSQL("```sql\nSELECT 1;\n```")
	if got != "SELECT 1;" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
	if got := stripMarkdownSQL("  SELECT 2  "); got != "SELECT 2" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
}

func TestGenerateSQLUsesGenerateEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["model"] != "llama3.2:3b" {
			t.Fatalf("model = %v", payload["model"])
		}
		if payload["stream"] != false {
			t.Fatalf("stream = %v", payload["stream"])
		}
		prompt, _ := payload["prompt"].(string)
		if !strings.Contains(prompt, "struggling") {
			t.Fatalf("prompt missing question: %q", prompt)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": "```sql\nSELECT name FROM students LIMIT 50\n```",
		})
	}))
	defer server.Close()

	client, err := NewOllamaClient(config.AIConfig{BaseURL: server.URL, Model: "llama3.2:3b"})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}

	result, err := client.GenerateSQL(context.Background(), Request{
		TeacherID:       7,
		NaturalLanguage: "which students are struggling",
		Tables:          []TableContext{{TableName: "students", Columns: []string{"id", "name"}}},
	})
	if err != nil {
		t.Fatalf("GenerateSQL() error = %v", err)
	}
	if result.SQL != "SELECT name FROM students LIMIT 50" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Provider != "ollama" {
		t.Fatalf("Provider = %q", result.Provider)
	}
}

func TestGenerateSQLEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "   "})
	}))
	defer server.Close()

	client, err := NewOllamaClient(config.AIConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	if _, err := client.GenerateSQL(context.Background(), Request{NaturalLanguage: "anything"}); err == nil {
		t.Fatal("GenerateSQL() accepted an empty response")
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewOllamaClient(config.AIConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	server.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("Ping() succeeded against a closed server")
	}
}

func TestBuildSQLPromptSections(t *testing.T) {
	prompt, err := buildSQLPrompt(Request{
		TeacherID:       7,
		NaturalLanguage: "which students are missing work",
		Tables:          []TableContext{{TableName: "students", Columns: []string{"id", "first_name"}}},
		History:         []Message{{Role: "user", Content: "hi"}},
		MemoryContext:   []string{"Maria needs a retake"},
	})
	if err != nil {
		t.Fatalf("buildSQLPrompt() error = %v", err)
	}
	for _, want := range []string{
		`"table_name":"students"`,
		"=== Teacher Memories ===",
		"Maria needs a retake",
		"=== Conversation History ===",
		"USER: hi",
		"which students are missing work",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildAnswerPromptSections(t *testing.T) {
	prompt := buildAnswerPrompt(AnswerRequest{
		TeacherID:     7,
		TeacherName:   "Ms. Rivera",
		Message:       "How is the class doing?",
		History:       []Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
		MemoryContext: []string{"Maria needs a retake"},
		DataContext:   `{"class_average": 81.2}`,
	})
	for _, want := range []string{
		"Ms. Rivera",
		"=== Teacher Memories ===",
		"Maria needs a retake",
		"=== Database Query Results ===",
		"class_average",
		"USER: hi",
		"ASSISTANT: hello",
		"USER: How is the class doing?",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
