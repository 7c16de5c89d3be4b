// Package quickquery is the catalog of pre-audited report statements.
// These are the only multi-table statements the service ever runs;
// each one carries its tenant predicate in the SQL text and binds the
// teacher id as the first positional argument, so the catalog does not
// pass through the generated-SQL guard.
package quickquery

import (
	"context"
	"errors"
	"fmt"

	"github.com/gradeinsight/gradeinsight/internal/config"
	"github.com/gradeinsight/gradeinsight/internal/gradedb"
	"github.com/gradeinsight/gradeinsight/internal/sqlguard"
)

var (
	ErrUnknownQuery = errors.New("quickquery: unknown query key")
	ErrInvalidParam = errors.New("quickquery: invalid parameter")
)

// Definition describes one catalog entry. Params lists the optional
// and required inputs beyond the teacher id.
type Definition struct {
	Key         string
	Label       string
	Description string
	Params      []Param
}

type Param struct {
	Name     string
	Kind     string
	Required bool
}

type entry struct {
	def  Definition
	sql  string
	bind func(c *Catalog, teacherID int64, params map[string]any) ([]any, error)
}

// Catalog resolves query keys to statements and runs them through the
// shared executor. Defaults for threshold and trend window come from
// the assistant configuration.
type Catalog struct {
	exec    *gradedb.Executor
	cfg     config.AssistantConfig
	entries []entry
	byKey   map[string]*entry
}

func New(exec *gradedb.Executor, cfg config.AssistantConfig) *Catalog {
	c := &Catalog{exec: exec, cfg: cfg, entries: catalogEntries()}
	c.byKey = make(map[string]*entry, len(c.entries))
	for i := range c.entries {
		c.byKey[c.entries[i].def.Key] = &c.entries[i]
	}
	return c
}

// List returns the catalog in its stable display order.
func (c *Catalog) List() []Definition {
	out := make([]Definition, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.def)
	}
	return out
}

// Run executes the statement registered under key for the given
// teacher. Unknown keys return ErrUnknownQuery; an empty result set is
// a success, not an error.
func (c *Catalog) Run(ctx context.Context, key string, teacherID int64, params map[string]any) (gradedb.Result, error) {
	e, ok := c.byKey[key]
	if !ok {
		return gradedb.Result{}, fmt.Errorf("%w: %q", ErrUnknownQuery, key)
	}
	args, err := e.bind(c, teacherID, params)
	if err != nil {
		return gradedb.Result{}, err
	}
	return c.exec.Run(ctx, sqlguard.SafeQuery{SQL: e.sql, TeacherID: teacherID}, args...)
}

func floatParam(params map[string]any, name string, fallback float64) (float64, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidParam, name)
}

func intParam(params map[string]any, name string, fallback int64) (int64, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParam, name)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	}
	return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParam, name)
}

func requiredInt(params map[string]any, name string) (int64, error) {
	if _, ok := params[name]; !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParam, name)
	}
	return intParam(params, name, 0)
}

func requiredString(params map[string]any, name string) (string, error) {
	raw, ok := params[name]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidParam, name)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidParam, name)
	}
	return s, nil
}
