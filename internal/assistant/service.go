// Package assistant orchestrates a teacher's chat turn. Every message
// takes exactly one of three paths: a slash command, a predefined
// quick query matched by trigger phrases, or the freeform path where
// the language model may generate SQL that must survive the guard
// before it runs.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gradeinsight/gradeinsight/internal/config"
	"github.com/gradeinsight/gradeinsight/internal/gradedb"
	"github.com/gradeinsight/gradeinsight/internal/memory"
	"github.com/gradeinsight/gradeinsight/internal/nl2sql"
	"github.com/gradeinsight/gradeinsight/internal/observability"
	"github.com/gradeinsight/gradeinsight/internal/quickquery"
	"github.com/gradeinsight/gradeinsight/internal/sqlguard"
)

type Path string

const (
	PathCommand    Path = "command"
	PathQuickQuery Path = "quick_query"
	PathFreeform   Path = "freeform"
)

// Degradation replies. The real failure reason is logged, never shown.
const (
	replyModelUnavailable = "I'm having trouble reaching the language model right now. Slash commands and quick queries still work; try /help."
	replyDataUnavailable  = "I couldn't answer that from the grade data this time. Try one of the quick queries (/queries) or rephrase your question."
)

type Request struct {
	TeacherID      int64
	TeacherName    string
	Message        string
	History        []nl2sql.Message
	ConversationID string
}

type Response struct {
	Reply          string
	Data           *gradedb.Result
	UsedData       bool
	Path           Path
	ConversationID string
}

type Status struct {
	LLMReachable bool
	DBReachable  bool
}

// Guard is the validation and injection pipeline for generated SQL.
type Guard interface {
	Secure(sql string, teacherID int64) (sqlguard.SafeQuery, error)
}

type Executor interface {
	Run(ctx context.Context, query sqlguard.SafeQuery, args ...any) (gradedb.Result, error)
	HealthCheck(ctx context.Context) error
}

type QueryCatalog interface {
	List() []quickquery.Definition
	Run(ctx context.Context, key string, teacherID int64, params map[string]any) (gradedb.Result, error)
}

type MemoryStore interface {
	Save(ctx context.Context, teacherID int64, studentID *int64, content string, tags []string) (memory.Memory, error)
	Recall(ctx context.Context, teacherID int64, filter string, limit int) ([]memory.Memory, error)
	RecallRelevant(ctx context.Context, teacherID int64, freeText string, limit int) ([]memory.Memory, error)
	Delete(ctx context.Context, teacherID, id int64) error
}

// Classifier decides whether a freeform message needs grade data.
type Classifier interface {
	NeedsData(message string) bool
}

type Dependencies struct {
	Guard      Guard
	Executor   Executor
	Catalog    QueryCatalog
	Memories   MemoryStore
	Translator nl2sql.Translator
	Formatter  nl2sql.AnswerFormatter
	Pinger     nl2sql.Pinger
	Classifier Classifier
}

type Service struct {
	cfg        config.AssistantConfig
	logger     *slog.Logger
	guard      Guard
	exec       Executor
	catalog    QueryCatalog
	memories   MemoryStore
	translator nl2sql.Translator
	formatter  nl2sql.AnswerFormatter
	pinger     nl2sql.Pinger
	classifier Classifier
}

func NewService(cfg config.AssistantConfig, logger *slog.Logger, deps Dependencies) *Service {
	classifier := deps.Classifier
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	return &Service{
		cfg:        cfg,
		logger:     logger,
		guard:      deps.Guard,
		exec:       deps.Executor,
		catalog:    deps.Catalog,
		memories:   deps.Memories,
		translator: deps.Translator,
		formatter:  deps.Formatter,
		pinger:     deps.Pinger,
		classifier: classifier,
	}
}

func (s *Service) Health(ctx context.Context) Status {
	status := Status{}
	if s.pinger != nil {
		status.LLMReachable = s.pinger.Ping(ctx) == nil
	}
	if s.exec != nil {
		status.DBReachable = s.exec.HealthCheck(ctx) == nil
	}
	return status
}

func (s *Service) ProcessMessage(ctx context.Context, req Request) (Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Response{}, fmt.Errorf("message is required")
	}
	if req.TeacherID <= 0 {
		return Response{}, fmt.Errorf("teacher id is required")
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	req.Message = message
	req.ConversationID = conversationID

	if strings.HasPrefix(message, "/") {
		resp, err := s.runCommand(ctx, req)
		resp.ConversationID = conversationID
		resp.Path = PathCommand
		return resp, err
	}

	if key, params, ok := matchQuickQuery(message); ok {
		resp := s.runQuickQuery(ctx, req, key, params)
		resp.ConversationID = conversationID
		resp.Path = PathQuickQuery
		return resp, nil
	}

	resp := s.runFreeform(ctx, req)
	resp.ConversationID = conversationID
	resp.Path = PathFreeform
	return resp, nil
}

func (s *Service) runQuickQuery(ctx context.Context, req Request, key string, params map[string]any) Response {
	start := time.Now()
	result, err := s.catalog.Run(ctx, key, req.TeacherID, params)
	if err != nil {
		observability.ObserveQueryExecution("catalog", outcomeFor(err), time.Since(start))
		s.logger.Warn("quick query failed", "key", key, "teacher_id", req.TeacherID, "error", err)
		return Response{Reply: replyDataUnavailable}
	}
	observability.ObserveQueryExecution("catalog", "ok", time.Since(start))

	reply := s.summarize(ctx, req, &result, key, s.relevantMemories(ctx, req.TeacherID, req.Message))
	return Response{Reply: reply, Data: &result, UsedData: true}
}

func (s *Service) runFreeform(ctx context.Context, req Request) Response {
	memoryContext := s.relevantMemories(ctx, req.TeacherID, req.Message)

	if !s.classifier.NeedsData(req.Message) {
		return s.chatReply(ctx, req, memoryContext)
	}

	result, ok := s.runGeneratedQuery(ctx, req, memoryContext)
	if !ok {
		return Response{Reply: replyDataUnavailable}
	}
	reply := s.summarize(ctx, req, &result, "", memoryContext)
	return Response{Reply: reply, Data: &result, UsedData: true}
}

// relevantMemories is the prompt-context read: every model call on the
// freeform and quick paths is primed with it. Recall failure degrades
// to an uncontexted prompt, never to a failed turn.
func (s *Service) relevantMemories(ctx context.Context, teacherID int64, message string) []string {
	memories, err := s.memories.RecallRelevant(ctx, teacherID, message, s.cfg.MemoryContextLimit)
	if err != nil {
		s.logger.Warn("memory recall failed", "teacher_id", teacherID, "error", err)
		return nil
	}
	var memoryContext []string
	for _, m := range memories {
		memoryContext = append(memoryContext, m.Content)
	}
	return memoryContext
}

// runGeneratedQuery is the model-to-database pipeline: translate,
// secure, execute. Any failure degrades; the candidate never runs
// unguarded.
func (s *Service) runGeneratedQuery(ctx context.Context, req Request, memoryContext []string) (gradedb.Result, bool) {
	candidate, err := s.translator.GenerateSQL(ctx, nl2sql.Request{
		TeacherID:       req.TeacherID,
		NaturalLanguage: req.Message,
		Tables:          SchemaTables(),
		History:         trimHistory(req.History, s.cfg.HistoryWindow),
		MemoryContext:   memoryContext,
	})
	if err != nil {
		observability.ObserveLLMFailure()
		s.logger.Warn("sql generation failed", "teacher_id", req.TeacherID, "error", err)
		return gradedb.Result{}, false
	}

	observability.ObserveCandidateQuery()
	safe, err := s.guard.Secure(candidate.SQL, req.TeacherID)
	if err != nil {
		var verr *sqlguard.ValidationError
		if errors.As(err, &verr) {
			observability.ObserveCandidateRejection(string(verr.Reason))
		}
		s.logger.Warn("candidate rejected", "teacher_id", req.TeacherID, "error", err)
		return gradedb.Result{}, false
	}

	start := time.Now()
	result, err := s.exec.Run(ctx, safe)
	if err != nil {
		observability.ObserveQueryExecution("generated", outcomeFor(err), time.Since(start))
		s.logger.Warn("generated query failed", "teacher_id", req.TeacherID, "error", err)
		return gradedb.Result{}, false
	}
	observability.ObserveQueryExecution("generated", "ok", time.Since(start))
	return result, true
}

// chatReply answers without touching grade data, primed with the
// teacher's relevant memories.
func (s *Service) chatReply(ctx context.Context, req Request, memoryContext []string) Response {
	answer, err := s.formatter.FormatAnswer(ctx, nl2sql.AnswerRequest{
		TeacherID:     req.TeacherID,
		TeacherName:   req.TeacherName,
		Message:       req.Message,
		History:       trimHistory(req.History, s.cfg.HistoryWindow),
		MemoryContext: memoryContext,
	})
	if err != nil {
		observability.ObserveLLMFailure()
		s.logger.Warn("chat answer failed", "teacher_id", req.TeacherID, "error", err)
		return Response{Reply: replyModelUnavailable}
	}
	return Response{Reply: answer}
}

// summarize asks the model to narrate query results; when the model is
// down the raw rendering stands on its own.
func (s *Service) summarize(ctx context.Context, req Request, result *gradedb.Result, key string, memoryContext []string) string {
	dataJSON, err := json.Marshal(resultRows(result))
	if err != nil {
		s.logger.Warn("encode result context failed", "error", err)
		return renderResult(result)
	}

	answer, err := s.formatter.FormatAnswer(ctx, nl2sql.AnswerRequest{
		TeacherID:     req.TeacherID,
		TeacherName:   req.TeacherName,
		Message:       req.Message,
		History:       trimHistory(req.History, s.cfg.HistoryWindow),
		MemoryContext: memoryContext,
		DataContext:   string(dataJSON),
	})
	if err != nil {
		observability.ObserveLLMFailure()
		s.logger.Warn("result narration failed", "teacher_id", req.TeacherID, "key", key, "error", err)
		return renderResult(result)
	}
	return answer
}

func trimHistory(history []nl2sql.Message, window int) []nl2sql.Message {
	if window <= 0 || len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}

func resultRows(result *gradedb.Result) []map[string]any {
	rows := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		m := make(map[string]any, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		rows = append(rows, m)
	}
	return rows
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, gradedb.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
