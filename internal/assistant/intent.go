package assistant

import (
	"regexp"
	"strconv"
	"strings"
)

var studentIDPattern = regexp.MustCompile(`(?:id|student|#)\s*(\d+)`)

// matchQuickQuery maps trigger phrases to catalog keys. Checks run in
// priority order; the first hit wins.
func matchQuickQuery(message string) (string, map[string]any, bool) {
	lower := strings.ToLower(message)

	if containsAny(lower, "struggling", "failing", "below", "low grade") {
		return "struggling_students", nil, true
	}

	if strings.Contains(lower, "student") && containsAny(lower, "id", "number", "#") {
		if match := studentIDPattern.FindStringSubmatch(lower); match != nil {
			if id, err := strconv.ParseInt(match[1], 10, 64); err == nil {
				return "student_detail", map[string]any{"student_id": id}, true
			}
		}
	}

	if containsAny(lower, "assignment", "hardest", "difficult", "lowest") {
		return "assignment_analysis", nil, true
	}

	if strings.Contains(lower, "missing") {
		return "missing_work", nil, true
	}

	if containsAny(lower, "class", "overview", "summary", "average") {
		return "class_overview", nil, true
	}

	return "", nil, false
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// KeywordClassifier is the default data-need heuristic: a message
// mentioning grade vocabulary goes to the generated-SQL path.
type KeywordClassifier struct {
	keywords []string
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{keywords: []string{
		"grade", "score", "student", "assignment", "homework", "quiz",
		"test", "exam", "average", "percent", "missing", "upload",
		"performance", "how many", "who has", "top", "worst", "best",
	}}
}

func (c *KeywordClassifier) NeedsData(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range c.keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
