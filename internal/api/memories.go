package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gradeinsight/gradeinsight/internal/memory"
)

type memoryPayload struct {
	ID        int64    `json:"id"`
	StudentID *int64   `json:"student_id,omitempty"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

type saveMemoryRequest struct {
	Content   string   `json:"content"`
	StudentID *int64   `json:"student_id,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

func handleListMemories(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	teacherID, err := teacherFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TEACHER_CONTEXT_REQUIRED", err.Error(), false, nil)
		return
	}

	filter := strings.TrimSpace(r.URL.Query().Get("filter"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, nil)
			return
		}
		limit = parsed
	}

	memories, err := deps.Memories.Recall(r.Context(), teacherID, filter, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "MEMORY_RECALL_FAILED", "failed to load memories", true, nil)
		return
	}

	payload := make([]memoryPayload, 0, len(memories))
	for _, m := range memories {
		payload = append(payload, toMemoryPayload(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": payload})
}

func handleSaveMemory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	teacherID, err := teacherFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TEACHER_CONTEXT_REQUIRED", err.Error(), false, nil)
		return
	}

	var req saveMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST_BODY", "request body must be valid JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "CONTENT_REQUIRED", "content is required", false, nil)
		return
	}

	saved, err := deps.Memories.Save(r.Context(), teacherID, req.StudentID, strings.TrimSpace(req.Content), req.Tags)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "MEMORY_SAVE_FAILED", "failed to save memory", true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toMemoryPayload(saved))
}

func handleUpdateMemory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	teacherID, err := teacherFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TEACHER_CONTEXT_REQUIRED", err.Error(), false, nil)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MEMORY_ID", "memory id must be a positive integer", false, nil)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST_BODY", "request body must be valid JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "CONTENT_REQUIRED", "content is required", false, nil)
		return
	}

	if err := deps.Memories.Update(r.Context(), teacherID, id, strings.TrimSpace(req.Content)); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "MEMORY_NOT_FOUND", "memory not found", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "MEMORY_UPDATE_FAILED", "failed to update memory", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "id": id})
}

func handleDeleteMemory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	teacherID, err := teacherFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TEACHER_CONTEXT_REQUIRED", err.Error(), false, nil)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MEMORY_ID", "memory id must be a positive integer", false, nil)
		return
	}

	if err := deps.Memories.Delete(r.Context(), teacherID, id); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "MEMORY_NOT_FOUND", "memory not found", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "MEMORY_DELETE_FAILED", "failed to delete memory", true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "id": id})
}

func toMemoryPayload(m memory.Memory) memoryPayload {
	payload := memoryPayload{
		ID:        m.ID,
		StudentID: m.StudentID,
		Content:   m.Content,
		Tags:      m.Tags,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.UpdatedAt != nil {
		payload.UpdatedAt = m.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
