package gradedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gradeinsight/gradeinsight/internal/policy"
	"github.com/gradeinsight/gradeinsight/internal/sqlguard"
)

// ErrTimeout marks a statement that exceeded the policy query timeout.
// Callers treat it as retryable; a BackendError is not.
var ErrTimeout = errors.New("gradedb: query timed out")

// BackendError wraps a database-side failure. Message is safe to log;
// it is never forwarded verbatim to end users.
type BackendError struct {
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("gradedb: %s", e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Result holds the rows of one executed statement. Rows is capped at
// the policy row limit; Truncated reports whether the cap was hit.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

// Executor runs secured statements against the grade store with the
// policy's timeout and row cap applied.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
	maxRows int
}

func NewExecutor(db *sql.DB, pol policy.Policy) *Executor {
	return &Executor{db: db, timeout: pol.QueryTimeout, maxRows: pol.MaxRows}
}

func (e *Executor) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping grade store: %w", err)
	}
	return nil
}

// Run executes a secured statement. Positional args belong to catalog
// statements; the generated path always passes none.
func (e *Executor) Run(ctx context.Context, query sqlguard.SafeQuery, args ...any) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(runCtx, query.SQL, args...)
	if err != nil {
		return Result{}, e.classify(runCtx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, e.classify(runCtx, err)
	}

	result := Result{Columns: columns, Rows: make([][]any, 0, e.maxRows)}
	for rows.Next() {
		if len(result.Rows) >= e.maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return Result{}, e.classify(runCtx, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Result{}, e.classify(runCtx, err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (e *Executor) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return &BackendError{Message: "query execution failed", Err: err}
}
