package sqlguard

import "strings"

// Validate inspects a candidate statement against the policy. Checks
// run in order and short-circuit on the first failure:
//
//  1. exactly one statement (a trailing semicolon is tolerated, a
//     second non-empty statement is a hard rejection, never a silent
//     truncation)
//  2. no comment tokens
//  3. leading keyword is SELECT
//  4. no blocked keyword anywhere in the statement
//  5. every FROM/JOIN target is in the allowed-table set
//  6. exactly one distinct table target (the catalog serves
//     multi-table analysis through pre-audited statements)
func (g *Guard) Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return reject(ReasonEmpty, "empty statement")
	}
	masked := maskLiterals(trimmed)

	if idx := strings.IndexByte(masked, ';'); idx >= 0 {
		rest := strings.TrimSpace(strings.Trim(masked[idx:], ";"))
		if rest != "" {
			return reject(ReasonMultiStatement, "multiple statements are not allowed")
		}
		trimmed = strings.TrimSpace(trimmed[:idx])
		masked = masked[:idx]
		if trimmed == "" {
			return reject(ReasonEmpty, "empty statement")
		}
	}

	if strings.Contains(masked, "--") || strings.Contains(masked, "/*") || strings.Contains(masked, "*/") {
		return reject(ReasonComment, "comment tokens are not allowed")
	}

	if !strings.HasPrefix(strings.ToUpper(masked), "SELECT") {
		return reject(ReasonNotSelect, "statement must begin with SELECT")
	}

	if match := g.blockedPattern.FindString(trimmed); match != "" {
		return reject(ReasonBlockedKeyword, "blocked keyword %q", strings.ToUpper(match))
	}

	tables := extractTables(masked)
	if len(tables) == 0 {
		return reject(ReasonMissingFrom, "no FROM target found")
	}
	distinct := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		if !g.policy.TableAllowed(table) {
			return reject(ReasonTableNotAllowed, "table %q is not in the allowed set", table)
		}
		distinct[strings.ToLower(table)] = struct{}{}
	}
	if len(distinct) > 1 {
		return reject(ReasonMultipleTables, "statement references %d tables, only one is allowed", len(distinct))
	}
	if fromListHasComma(masked) {
		return reject(ReasonMultipleTables, "comma-separated FROM lists are not allowed")
	}

	return nil
}

// fromListHasComma scans the FROM zone (from the first top-level FROM
// target until the next top-level clause keyword) for a depth-zero
// comma, which would introduce a second, uninspected table.
func fromListHasComma(masked string) bool {
	_, fromEnd := topLevelKeyword(masked, "FROM")
	if fromEnd < 0 {
		return false
	}
	upper := strings.ToUpper(masked)
	depth := 0
	for i := fromEnd; i < len(upper); i++ {
		switch upper[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		case ',':
			if depth == 0 {
				return true
			}
			continue
		}
		if depth != 0 {
			continue
		}
		if i > 0 && isWordChar(upper[i-1]) {
			continue
		}
		word := leadingWord(upper[i:])
		if word == "WHERE" {
			return false
		}
		if _, ok := whereBoundaries[word]; ok {
			return false
		}
	}
	return false
}

func extractTables(masked string) []string {
	matches := tablePattern.FindAllStringSubmatch(masked, -1)
	tables := make([]string, 0, len(matches))
	for _, match := range matches {
		name := strings.Trim(match[1], `"`)
		if name == "" {
			continue
		}
		tables = append(tables, name)
	}
	return tables
}
