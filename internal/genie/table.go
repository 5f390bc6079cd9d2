package genie

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/genie-relay/internal/model"
)

const (
	maxTableRows = 10
	nullCell     = "NULL"
)

// RenderTable formats a query result as a fixed-width text table inside a
// Markdown code fence. Only the first 10 rows are shown; a trailer counts the
// rest. An empty result renders as "".
func RenderTable(result *model.QueryResult) string {
	if result == nil || len(result.Rows) == 0 {
		return ""
	}

	columns := result.Columns
	if len(columns) == 0 {
		columns = make([]string, len(result.Rows[0]))
		for i := range columns {
			columns[i] = fmt.Sprintf("Column %d", i+1)
		}
	}

	shown := result.Rows
	if len(shown) > maxTableRows {
		shown = shown[:maxTableRows]
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = utf8.RuneCountInString(col)
	}
	for _, row := range shown {
		for i, v := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], utf8.RuneCountInString(cellText(v)))
			}
		}
	}

	lines := make([]string, 0, len(shown)+5)
	lines = append(lines, "```")

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = pad(col, widths[i])
	}
	lines = append(lines, strings.Join(header, " | "))

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}
	lines = append(lines, strings.Join(rule, "-+-"))

	for _, row := range shown {
		cells := make([]string, 0, len(row))
		for i, v := range row {
			// Cells beyond the known columns are dropped.
			if i >= len(widths) {
				break
			}
			cells = append(cells, pad(cellText(v), widths[i]))
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	lines = append(lines, "```")

	if extra := len(result.Rows) - maxTableRows; extra > 0 {
		lines = append(lines, "", fmt.Sprintf("(%d more rows...)", extra))
	}
	return strings.Join(lines, "\n")
}

func cellText(v any) string {
	if v == nil {
		return nullCell
	}
	return formatScalar(v)
}

// pad left-justifies s to width runes.
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
