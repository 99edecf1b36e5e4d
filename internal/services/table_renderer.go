package services

import (
	"fmt"
	"querypilot-ai/internal/observability"
	"strings"
	"text/tabwriter"
)

const maxCellRunes = 200

// renderTable lays rows out as a column-aligned text table holding at most
// maxRows rows (maxRows <= 0 renders all). Skipped rows are reported with a
// trailing marker.
func renderTable(columns []string, rows []map[string]interface{}, maxRows int) string {
	if len(columns) == 0 {
		return "(no columns)"
	}
	if len(rows) == 0 {
		return strings.Join(columns, " | ") + "\n(no rows)"
	}

	shown := rows
	if maxRows > 0 && len(rows) > maxRows {
		shown = rows[:maxRows]
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(columns, "\t"))

	separators := make([]string, len(columns))
	for i, col := range columns {
		separators[i] = strings.Repeat("-", len([]rune(col)))
	}
	fmt.Fprintln(w, strings.Join(separators, "\t"))

	cells := make([]string, len(columns))
	for _, row := range shown {
		for i, col := range columns {
			cells[i] = cellText(row[col])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()

	out := strings.TrimRight(b.String(), "\n")
	if hidden := len(rows) - len(shown); hidden > 0 {
		out += fmt.Sprintf("\n(… %d more rows)", hidden)
	}
	return out
}

func cellText(value interface{}) string {
	if value == nil {
		return "NULL"
	}
	text := observability.Truncate(fmt.Sprint(value), maxCellRunes)
	// keep one row per line
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(text)
}

// renderDatasets renders every dataset under its label with a bounded
// preview each.
func renderDatasets(compiled *CompiledData, maxRows int) string {
	datasets := compiled.Datasets()
	if len(datasets) == 0 {
		return "(none yet)"
	}

	parts := make([]string, 0, len(datasets))
	for _, dataset := range datasets {
		header := fmt.Sprintf("--- %s, %d rows", dataset.Label, dataset.Result.RowCount())
		if dataset.Result != nil && dataset.Result.Truncated {
			header += " (result capped)"
		}
		var columns []string
		var rows []map[string]interface{}
		if dataset.Result != nil {
			columns, rows = dataset.Result.Columns, dataset.Result.Rows
		}
		parts = append(parts, header+"\n"+renderTable(columns, rows, maxRows))
	}
	return strings.Join(parts, "\n\n")
}
