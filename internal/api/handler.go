// Package api exposes the assistant over HTTP: liveness and readiness
// probes, prometheus metrics, the collaborator status report, and the
// authenticated chat, memory, and quick-query surfaces.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gradeinsight/gradeinsight/internal/assistant"
	"github.com/gradeinsight/gradeinsight/internal/auth"
	"github.com/gradeinsight/gradeinsight/internal/config"
	"github.com/gradeinsight/gradeinsight/internal/gradedb"
	"github.com/gradeinsight/gradeinsight/internal/memory"
	"github.com/gradeinsight/gradeinsight/internal/observability"
	"github.com/gradeinsight/gradeinsight/internal/quickquery"
)

type ReadinessCheck func(ctx context.Context) error

type Assistant interface {
	ProcessMessage(ctx context.Context, req assistant.Request) (assistant.Response, error)
	Health(ctx context.Context) assistant.Status
}

type MemoryStore interface {
	Save(ctx context.Context, teacherID int64, studentID *int64, content string, tags []string) (memory.Memory, error)
	Recall(ctx context.Context, teacherID int64, filter string, limit int) ([]memory.Memory, error)
	Update(ctx context.Context, teacherID, id int64, content string) error
	Delete(ctx context.Context, teacherID, id int64) error
}

type QueryCatalog interface {
	List() []quickquery.Definition
	Run(ctx context.Context, key string, teacherID int64, params map[string]any) (gradedb.Result, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         Assistant
	Memories          MemoryStore
	Catalog           QueryCatalog
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
		handleStatus(cfg, deps, w, r)
	})

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/chat", func(w http.ResponseWriter, r *http.Request) {
		handleChat(deps, w, r)
	})
	protected.HandleFunc("GET /v1/memories", func(w http.ResponseWriter, r *http.Request) {
		handleListMemories(deps, w, r)
	})
	protected.HandleFunc("POST /v1/memories", func(w http.ResponseWriter, r *http.Request) {
		handleSaveMemory(deps, w, r)
	})
	protected.HandleFunc("PUT /v1/memories/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleUpdateMemory(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/memories/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteMemory(deps, w, r)
	})
	protected.HandleFunc("GET /v1/quickqueries", func(w http.ResponseWriter, r *http.Request) {
		handleListQuickQueries(deps, w, r)
	})
	protected.HandleFunc("POST /v1/quickqueries/{key}/run", func(w http.ResponseWriter, r *http.Request) {
		handleRunQuickQuery(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/chat", protectedHandler)
	mux.Handle("GET /v1/memories", protectedHandler)
	mux.Handle("POST /v1/memories", protectedHandler)
	mux.Handle("PUT /v1/memories/{id}", protectedHandler)
	mux.Handle("DELETE /v1/memories/{id}", protectedHandler)
	mux.Handle("GET /v1/quickqueries", protectedHandler)
	mux.Handle("POST /v1/quickqueries/{key}/run", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func handleStatus(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "ASSISTANT_UNAVAILABLE", "assistant is not configured", false, nil)
		return
	}
	status := deps.Assistant.Health(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     cfg.Service.Name,
		"llm_status":  statusWord(status.LLMReachable),
		"db_status":   statusWord(status.DBReachable),
		"model":       cfg.AI.Model,
		"observed_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func statusWord(reachable bool) string {
	if reachable {
		return "connected"
	}
	return "disconnected"
}

func CheckDatabaseDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Database.DSN == "" {
			return errors.New("database dsn is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func teacherFromRequest(r *http.Request) (int64, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if identity.TeacherID > 0 {
			return identity.TeacherID, nil
		}
	}
	raw := strings.TrimSpace(r.Header.Get("X-Teacher-ID"))
	if raw == "" {
		return 0, fmt.Errorf("teacher context is required")
	}
	teacherID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || teacherID <= 0 {
		return 0, fmt.Errorf("teacher id must be a positive integer")
	}
	return teacherID, nil
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
