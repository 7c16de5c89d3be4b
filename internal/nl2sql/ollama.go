package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gradeinsight/gradeinsight/internal/config"
)

// OllamaClient drives a local Ollama instance over its non-streaming
// generate endpoint. One attempt per call, no retries; callers decide
// how to degrade when the model is unreachable.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

func NewOllamaClient(cfg config.AIConfig) (*OllamaClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("ollama base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "llama3.2:3b"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// Ping verifies the model server is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping ollama: status %d", resp.StatusCode)
	}
	return nil
}

func (c *OllamaClient) GenerateSQL(ctx context.Context, req Request) (Result, error) {
	prompt, err := buildSQLPrompt(req)
	if err != nil {
		return Result{}, err
	}
	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return Result{}, err
	}
	sql := stripMarkdownSQL(raw)
	if strings.TrimSpace(sql) == "" {
		return Result{}, fmt.Errorf("model returned empty SQL")
	}
	return Result{SQL: sql, Provider: "ollama", Model: c.model}, nil
}

func (c *OllamaClient) FormatAnswer(ctx context.Context, req AnswerRequest) (string, error) {
	answer, err := c.generate(ctx, buildAnswerPrompt(req))
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("model returned empty answer")
	}
	return answer, nil
}

func (c *OllamaClient) generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": c.temperature,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generate payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request generation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("generation failed status=%d body=%s", resp.StatusCode, string(rawBody))
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return parsed.Response, nil
}

func buildSQLPrompt(req Request) (string, error) {
	tablesJSON, err := json.Marshal(req.Tables)
	if err != nil {
		return "", fmt.Errorf("marshal table context: %w", err)
	}
	var b strings.Builder
	b.WriteString("You convert a teacher's question into a single PostgreSQL SELECT statement over a grade database.\n")
	b.WriteString("Return ONLY SQL. No markdown, no explanation.\n\n")
	fmt.Fprintf(&b, "Schema (JSON):\n%s\n\n", string(tablesJSON))
	if len(req.MemoryContext) > 0 {
		b.WriteString("=== Teacher Memories ===\n")
		for _, line := range req.MemoryContext {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("=== End Memories ===\n\n")
	}
	if len(req.History) > 0 {
		b.WriteString("=== Conversation History ===\n")
		for _, msg := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(msg.Role), msg.Content)
		}
		b.WriteString("=== End History ===\n\n")
	}
	fmt.Fprintf(&b, "Question:\n%s\n\n", strings.TrimSpace(req.NaturalLanguage))
	b.WriteString("Rules:\n")
	b.WriteString("- Use only listed tables, and at most one table.\n")
	b.WriteString("- SELECT statements only.\n")
	b.WriteString("- Prefer explicit columns.\n")
	b.WriteString("- Add LIMIT 50 unless the question asks otherwise.\n")
	b.WriteString("- Output a single SQL query only.")
	return b.String(), nil
}

func buildAnswerPrompt(req AnswerRequest) string {
	var b strings.Builder
	b.WriteString("You are an intelligent teaching assistant. You help teachers analyze student grades and performance.\n\n")
	b.WriteString("Your role:\n")
	b.WriteString("- Analyze student performance data from the database\n")
	b.WriteString("- Identify struggling students and patterns\n")
	b.WriteString("- Provide actionable insights for teachers\n")
	b.WriteString("- Be concise, helpful, and data-driven\n\n")
	if req.TeacherName != "" {
		fmt.Fprintf(&b, "You are speaking with %s.\n\n", req.TeacherName)
	}

	if len(req.MemoryContext) > 0 {
		b.WriteString("=== Teacher Memories ===\n")
		for _, line := range req.MemoryContext {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("=== End Memories ===\n\n")
	}

	if req.DataContext != "" {
		b.WriteString("=== Database Query Results ===\n")
		b.WriteString(req.DataContext)
		b.WriteString("\n=== End Results ===\n\n")
	}

	b.WriteString("=== Conversation History ===\n")
	for _, msg := range req.History {
		fmt.Fprintf(&b, "%s: %s\n\n", strings.ToUpper(msg.Role), msg.Content)
	}
	fmt.Fprintf(&b, "USER: %s\n\nASSISTANT: ", req.Message)
	return b.String()
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
