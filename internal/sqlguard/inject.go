package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	firstFromPattern = regexp.MustCompile(`(?i)\bFROM\s+"?[A-Za-z_][A-Za-z0-9_$.]*"?`)
	clauseKeywords   = map[string]struct{}{
		"WHERE": {}, "GROUP": {}, "ORDER": {}, "HAVING": {}, "LIMIT": {},
		"OFFSET": {}, "WINDOW": {}, "FETCH": {}, "UNION": {}, "EXCEPT": {},
		"INTERSECT": {}, "JOIN": {}, "INNER": {}, "LEFT": {}, "RIGHT": {},
		"FULL": {}, "CROSS": {}, "ON": {}, "FOR": {},
	}
	whereBoundaries = map[string]struct{}{
		"GROUP": {}, "ORDER": {}, "HAVING": {}, "LIMIT": {}, "OFFSET": {},
		"WINDOW": {}, "FETCH": {}, "UNION": {}, "EXCEPT": {}, "INTERSECT": {},
	}
)

// Inject rewrites a validated statement so the isolation predicate for
// teacherID is the leftmost, unconditionally evaluated WHERE term. With
// an existing WHERE the remainder is parenthesized, so an OR deep in
// the generated clause can never widen the tenant bound. Without one,
// the predicate is appended after the first FROM target.
//
// Inject is idempotent for the same tenant: a statement whose WHERE
// clause already leads with the canonical predicate is returned
// unchanged. A literal binding the isolation column to a different
// tenant is rejected rather than overridden.
func (g *Guard) Inject(sql string, teacherID int64) (string, error) {
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	if trimmed == "" {
		return "", reject(ReasonEmpty, "empty statement")
	}

	for _, match := range g.isolationValue.FindAllStringSubmatch(trimmed, -1) {
		if match[1] != fmt.Sprintf("%d", teacherID) {
			return "", reject(ReasonForeignTenant, "isolation column bound to tenant %s", match[1])
		}
	}

	masked := maskLiterals(trimmed)
	predicate := fmt.Sprintf("%s = %d", g.policy.IsolationColumn, teacherID)

	whereStart, whereEnd := topLevelKeyword(masked, "WHERE")
	if whereStart >= 0 {
		clauseEnd := whereClauseEnd(masked, whereEnd)
		clause := strings.TrimSpace(trimmed[whereEnd:clauseEnd])
		if clause == "" {
			return "", reject(ReasonEmpty, "empty WHERE clause")
		}
		if g.leadsWithPredicate(clause, teacherID) {
			return trimmed, nil
		}
		var b strings.Builder
		b.WriteString(strings.TrimRight(trimmed[:whereStart], " \t\n"))
		b.WriteString(" WHERE ")
		b.WriteString(predicate)
		b.WriteString(" AND (")
		b.WriteString(clause)
		b.WriteString(")")
		if suffix := strings.TrimSpace(trimmed[clauseEnd:]); suffix != "" {
			b.WriteString(" ")
			b.WriteString(suffix)
		}
		return b.String(), nil
	}

	insertAt := fromInsertionPoint(masked)
	if insertAt < 0 {
		return "", reject(ReasonMissingFrom, "no FROM target found")
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(trimmed[:insertAt], " \t\n"))
	b.WriteString(" WHERE ")
	b.WriteString(predicate)
	if suffix := strings.TrimSpace(trimmed[insertAt:]); suffix != "" {
		b.WriteString(" ")
		b.WriteString(suffix)
	}
	return b.String(), nil
}

// leadsWithPredicate reports whether the clause already conjoins the
// canonical predicate: it must lead with `<column> = <id>` and the rest
// of the clause must be empty or joined by AND with no depth-zero OR.
// AND binds tighter than OR, so a trailing top-level OR would widen the
// tenant bound and the clause must be re-wrapped instead.
func (g *Guard) leadsWithPredicate(clause string, teacherID int64) bool {
	pattern := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(g.policy.IsolationColumn) + `\s*=\s*` + fmt.Sprintf("%d", teacherID) + `\b`)
	loc := pattern.FindStringIndex(clause)
	if loc == nil {
		return false
	}
	rest := strings.TrimSpace(clause[loc[1]:])
	if rest == "" {
		return true
	}
	if leadingWord(strings.ToUpper(rest)) != "AND" {
		return false
	}
	return !hasTopLevelOr(maskLiterals(clause))
}

func hasTopLevelOr(masked string) bool {
	upper := strings.ToUpper(masked)
	depth := 0
	for i := 0; i < len(upper); i++ {
		switch upper[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		if i > 0 && isWordChar(upper[i-1]) {
			continue
		}
		if leadingWord(upper[i:]) == "OR" {
			return true
		}
	}
	return false
}

// topLevelKeyword locates a bare keyword at parenthesis depth zero,
// returning its start index and the index just past it, or -1.
func topLevelKeyword(masked, keyword string) (int, int) {
	upper := strings.ToUpper(masked)
	keyword = strings.ToUpper(keyword)
	depth := 0
	for i := 0; i < len(upper); i++ {
		switch upper[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth != 0 {
			continue
		}
		if !strings.HasPrefix(upper[i:], keyword) {
			continue
		}
		end := i + len(keyword)
		if i > 0 && isWordChar(upper[i-1]) {
			continue
		}
		if end < len(upper) && isWordChar(upper[end]) {
			continue
		}
		return i, end
	}
	return -1, -1
}

// whereClauseEnd finds where the boolean expression of a WHERE clause
// stops: the first depth-zero clause keyword after it, or end of input.
func whereClauseEnd(masked string, from int) int {
	upper := strings.ToUpper(masked)
	depth := 0
	for i := from; i < len(upper); i++ {
		switch upper[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		if i > 0 && isWordChar(upper[i-1]) {
			continue
		}
		word := leadingWord(upper[i:])
		if word == "" {
			continue
		}
		if _, ok := whereBoundaries[word]; ok {
			return i
		}
	}
	return len(masked)
}

// fromInsertionPoint returns the index just past the first FROM target
// (including a trailing alias, if any), or -1 when there is no FROM.
func fromInsertionPoint(masked string) int {
	loc := firstFromPattern.FindStringIndex(masked)
	if loc == nil {
		return -1
	}
	end := loc[1]
	rest := masked[end:]
	if m := fromTargetSuffix.FindStringSubmatch(rest); m != nil {
		word := strings.ToUpper(m[1])
		if _, reserved := clauseKeywords[word]; !reserved {
			end += len(m[0])
		}
	}
	return end
}

func leadingWord(s string) string {
	for i := 0; i < len(s); i++ {
		if !isWordChar(s[i]) {
			return s[:i]
		}
	}
	return s
}

func isWordChar(ch byte) bool {
	return ch == '_' || (ch >= '0' && ch <= '9') || (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
}
