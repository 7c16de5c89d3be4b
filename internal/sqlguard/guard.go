// Package sqlguard decides whether model-generated SQL may run. It is
// the only place where untrusted generated text meets the grade store:
// a candidate statement is validated against the allowlist policy,
// then rewritten so the tenant bound is the leftmost WHERE conjunct.
//
// The inspection is deliberately lexical (deny list + allow list, no
// SQL parser). Every rule is independently testable and the policy is
// data, so it can be tightened without touching this package. The
// known cost is over-rejection: a blocked verb inside a string literal
// rejects an otherwise legitimate SELECT.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gradeinsight/gradeinsight/internal/policy"
)

type Reason string

const (
	ReasonEmpty              Reason = "empty"
	ReasonMultiStatement     Reason = "multi_statement"
	ReasonComment            Reason = "comment"
	ReasonNotSelect          Reason = "not_select"
	ReasonBlockedKeyword     Reason = "blocked_keyword"
	ReasonMissingFrom        Reason = "missing_from"
	ReasonTableNotAllowed    Reason = "table_not_allowed"
	ReasonMultipleTables     Reason = "multiple_tables"
	ReasonForeignTenant      Reason = "foreign_tenant"
	ReasonIsolationViolation Reason = "isolation_violation"
)

// ValidationError reports why a candidate was refused. Reason is a
// stable code used for metrics; Detail is safe to log but is never
// echoed to end users.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("sqlguard: rejected (%s)", e.Reason)
	}
	return fmt.Sprintf("sqlguard: rejected (%s): %s", e.Reason, e.Detail)
}

func reject(reason Reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// SafeQuery is a candidate that passed validation and carries the
// isolation predicate for TeacherID as its leftmost WHERE term.
type SafeQuery struct {
	SQL       string
	TeacherID int64
}

type Guard struct {
	policy         policy.Policy
	blockedPattern *regexp.Regexp
	isolationValue *regexp.Regexp
}

var (
	tablePattern     = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+("?[A-Za-z_][A-Za-z0-9_$.]*"?)`)
	fromTargetSuffix = regexp.MustCompile(`(?i)^\s+(?:AS\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
)

func New(pol policy.Policy) *Guard {
	keywords := pol.BlockedKeywords()
	escaped := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		escaped = append(escaped, regexp.QuoteMeta(keyword))
	}
	return &Guard{
		policy:         pol,
		blockedPattern: regexp.MustCompile(`(?i)\b(` + strings.Join(escaped, "|") + `)\b`),
		isolationValue: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(pol.IsolationColumn) + `\s*=\s*'?(\d+)'?`),
	}
}

// Secure runs the full pipeline: validate the candidate, inject the
// tenant filter, and confirm the isolation predicate survived. An
// isolation failure after injection should be unreachable; it is
// checked anyway because zero rows beats one cross-tenant row.
func (g *Guard) Secure(sql string, teacherID int64) (SafeQuery, error) {
	if err := g.Validate(sql); err != nil {
		return SafeQuery{}, err
	}
	injected, err := g.Inject(sql, teacherID)
	if err != nil {
		return SafeQuery{}, err
	}
	if !g.isolationBound(injected, teacherID) {
		return SafeQuery{}, reject(ReasonIsolationViolation, "isolation predicate missing after injection")
	}
	return SafeQuery{SQL: injected, TeacherID: teacherID}, nil
}

func (g *Guard) isolationBound(sql string, teacherID int64) bool {
	for _, match := range g.isolationValue.FindAllStringSubmatch(sql, -1) {
		if match[1] == fmt.Sprintf("%d", teacherID) {
			return true
		}
	}
	return false
}

// maskLiterals replaces the content of single-quoted literals and
// double-quoted identifiers with spaces, preserving every index, so
// structural scans cannot be confused by quoted text.
func maskLiterals(sql string) string {
	masked := []byte(sql)
	var quote byte
	for i := 0; i < len(masked); i++ {
		ch := masked[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			} else {
				masked[i] = ' '
			}
			continue
		}
		if ch == '\'' || ch == '"' {
			quote = ch
		}
	}
	return string(masked)
}
