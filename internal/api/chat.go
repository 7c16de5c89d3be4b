package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gradeinsight/gradeinsight/internal/assistant"
	"github.com/gradeinsight/gradeinsight/internal/gradedb"
	"github.com/gradeinsight/gradeinsight/internal/nl2sql"
)

const maxMessageLength = 10000

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message        string        `json:"message"`
	TeacherName    string        `json:"teacher_name,omitempty"`
	History        []chatMessage `json:"conversation_history,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
}

type resultPayload struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

type chatResponse struct {
	Reply          string         `json:"reply"`
	UsedData       bool           `json:"used_data"`
	Path           string         `json:"path"`
	ConversationID string         `json:"conversation_id"`
	Data           *resultPayload `json:"data,omitempty"`
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	teacherID, err := teacherFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TEACHER_CONTEXT_REQUIRED", err.Error(), false, nil)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST_BODY", "request body must be valid JSON", false, nil)
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message is required", false, nil)
		return
	}
	if len(message) > maxMessageLength {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_TOO_LONG", "message exceeds the maximum length", false, map[string]any{"max_length": maxMessageLength})
		return
	}

	history := make([]nl2sql.Message, 0, len(req.History))
	for _, msg := range req.History {
		history = append(history, nl2sql.Message{Role: msg.Role, Content: msg.Content})
	}

	resp, err := deps.Assistant.ProcessMessage(r.Context(), assistant.Request{
		TeacherID:      teacherID,
		TeacherName:    req.TeacherName,
		Message:        message,
		History:        history,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_FAILED", "failed to process message", true, nil)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:          resp.Reply,
		UsedData:       resp.UsedData,
		Path:           string(resp.Path),
		ConversationID: resp.ConversationID,
		Data:           toResultPayload(resp.Data),
	})
}

func toResultPayload(result *gradedb.Result) *resultPayload {
	if result == nil {
		return nil
	}
	return &resultPayload{Columns: result.Columns, Rows: result.Rows, Truncated: result.Truncated}
}
