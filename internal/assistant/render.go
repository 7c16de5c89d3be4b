package assistant

import (
	"fmt"
	"strings"

	"github.com/gradeinsight/gradeinsight/internal/gradedb"
)

// renderResult is the plain-text fallback when no model narration is
// available.
func renderResult(result *gradedb.Result) string {
	if len(result.Rows) == 0 {
		return "No matching records."
	}

	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString("\n")
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatCell(value)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if result.Truncated {
		b.WriteString("(more rows were truncated)\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCell(value any) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%v", value)
}
