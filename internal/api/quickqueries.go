package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gradeinsight/gradeinsight/internal/gradedb"
	"github.com/gradeinsight/gradeinsight/internal/quickquery"
)

type quickQueryPayload struct {
	Key         string              `json:"key"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Params      []quickParamPayload `json:"params,omitempty"`
}

type quickParamPayload struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Required bool   `json:"required"`
}

type runQuickQueryRequest struct {
	Params map[string]any `json:"params,omitempty"`
}

func handleListQuickQueries(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if _, err := teacherFromRequest(r); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TEACHER_CONTEXT_REQUIRED", err.Error(), false, nil)
		return
	}

	defs := deps.Catalog.List()
	payload := make([]quickQueryPayload, 0, len(defs))
	for _, def := range defs {
		item := quickQueryPayload{Key: def.Key, Label: def.Label, Description: def.Description}
		for _, param := range def.Params {
			item.Params = append(item.Params, quickParamPayload{Name: param.Name, Kind: param.Kind, Required: param.Required})
		}
		payload = append(payload, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"quick_queries": payload})
}

func handleRunQuickQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	teacherID, err := teacherFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "TEACHER_CONTEXT_REQUIRED", err.Error(), false, nil)
		return
	}

	key := r.PathValue("key")

	var req runQuickQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST_BODY", "request body must be valid JSON", false, nil)
		return
	}

	result, err := deps.Catalog.Run(r.Context(), key, teacherID, req.Params)
	if err != nil {
		switch {
		case errors.Is(err, quickquery.ErrUnknownQuery):
			writeError(r.Context(), w, http.StatusNotFound, "UNKNOWN_QUERY", "unknown quick query key", false, map[string]any{"key": key})
		case errors.Is(err, quickquery.ErrInvalidParam):
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), false, nil)
		case errors.Is(err, gradedb.ErrTimeout):
			writeError(r.Context(), w, http.StatusGatewayTimeout, "QUERY_TIMEOUT", "query exceeded the execution timeout", true, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", "query execution failed", true, nil)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"key":    key,
		"result": toResultPayload(&result),
	})
}
