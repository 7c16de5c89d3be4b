// Package nl2sql talks to the language-model collaborator. The model
// is untrusted: everything it returns is treated as a candidate and
// re-checked downstream before it can touch the grade store.
package nl2sql

import "context"

type TableContext struct {
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries the question, the schema context, and the same
// memory/history context the chat path sees, so generation is informed
// by what the teacher has asked the system to remember.
type Request struct {
	TeacherID       int64          `json:"teacher_id"`
	NaturalLanguage string         `json:"natural_language"`
	Tables          []TableContext `json:"tables"`
	History         []Message      `json:"history,omitempty"`
	MemoryContext   []string       `json:"memory_context,omitempty"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// AnswerRequest carries everything the model needs to write a chat
// reply: the teacher's message, trimmed history, memory context lines,
// and optionally a JSON block of query results to summarize.
type AnswerRequest struct {
	TeacherID     int64
	TeacherName   string
	Message       string
	History       []Message
	MemoryContext []string
	DataContext   string
}

type Translator interface {
	GenerateSQL(ctx context.Context, req Request) (Result, error)
}

type AnswerFormatter interface {
	FormatAnswer(ctx context.Context, req AnswerRequest) (string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}
