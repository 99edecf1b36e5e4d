package dbmanager

import (
	"database/sql"
	"fmt"
	"time"
)

// processRows reads at most maxRows rows (maxRows <= 0 reads all) and reports
// whether more were available.
func processRows(rows *sql.Rows, maxRows int) ([]string, []map[string]interface{}, bool, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to get columns: %v", err)
	}

	results := make([]map[string]interface{}, 0)
	values := make([]interface{}, len(columns))
	scanArgs := make([]interface{}, len(columns))

	for i := range values {
		scanArgs[i] = &values[i]
	}

	truncated := false
	for rows.Next() {
		if maxRows > 0 && len(results) >= maxRows {
			truncated = true
			break
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return nil, nil, false, fmt.Errorf("failed to scan row: %v", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, false, fmt.Errorf("error iterating rows: %w", err)
	}

	return columns, results, truncated, nil
}

// normalizeValue turns driver specific representations into plain values:
// []byte becomes string, times are rendered in RFC3339.
func normalizeValue(val interface{}) interface{} {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return v
	}
}
