package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"querypilot-ai/pkg/dbmanager"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

type ColumnKind int

const (
	ColumnPlain ColumnKind = iota
	ColumnCount
	ColumnRevenue
)

var countTokens = map[string]bool{"count": true, "cnt": true, "qty": true, "quantity": true}

// num and number only count when they lead the name (num_users,
// number_of_orders); phone_number and invoice_num are identifiers.
var leadingCountTokens = map[string]bool{"num": true, "number": true}

var revenueMarkers = []string{"revenue", "price", "amount", "sales", "cost"}

var countPattern = regexp.MustCompile(`^-?\d{1,3}(,\d{3})*$`)

// ClassifyColumn decides from the column name alone how its values are
// presented. Count wins over revenue, so "sales_count" is a count.
func ClassifyColumn(name string) ColumnKind {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == ' ' || r == '-'
	})

	for i, token := range tokens {
		if isCountToken(token) || (i == 0 && leadingCountTokens[token]) {
			return ColumnCount
		}
	}
	for _, token := range tokens {
		if token == "sum" {
			return ColumnRevenue
		}
		for _, marker := range revenueMarkers {
			if strings.Contains(token, marker) {
				return ColumnRevenue
			}
		}
	}
	return ColumnPlain
}

func isCountToken(token string) bool {
	if countTokens[token] {
		return true
	}
	// usercount, counts; not country, account or discount
	if strings.HasPrefix(token, "count") && !strings.HasPrefix(token, "country") {
		return true
	}
	return strings.HasSuffix(token, "count") && !strings.HasSuffix(token, "account") && !strings.HasSuffix(token, "discount")
}

// ValidationIssue is a formatted cell that does not look the way its column
// kind requires.
type ValidationIssue struct {
	Row      int
	Column   string
	Value    string
	Expected string
}

// PresentationFormatter renders count and currency columns deterministically.
// Formatting an already formatted value leaves it unchanged.
type PresentationFormatter struct {
	currency       string
	revenuePattern *regexp.Regexp
	logger         *slog.Logger
}

func NewPresentationFormatter(currency string, logger *slog.Logger) *PresentationFormatter {
	if currency == "" {
		currency = "SAR"
	}
	return &PresentationFormatter{
		currency:       currency,
		revenuePattern: regexp.MustCompile(`^-?\d{1,3}(,\d{3})*\.\d{2} ` + regexp.QuoteMeta(currency) + `$`),
		logger:         logger,
	}
}

// FormatCount rounds half away from zero and adds thousands separators.
func (f *PresentationFormatter) FormatCount(value interface{}) (interface{}, bool) {
	if value == nil {
		return nil, true
	}
	if s, ok := value.(string); ok && (countPattern.MatchString(strings.TrimSpace(s)) || hasLeadingZero(s)) {
		return s, true
	}

	d, ok := toDecimal(value)
	if !ok {
		return value, false
	}
	rounded := d.Round(0)
	return signed(rounded, humanize.BigComma(rounded.Abs().BigInt())), true
}

// FormatRevenue renders two decimals, thousands separators and the currency.
func (f *PresentationFormatter) FormatRevenue(value interface{}) (interface{}, bool) {
	if value == nil {
		return nil, true
	}
	if s, ok := value.(string); ok && f.revenuePattern.MatchString(strings.TrimSpace(s)) {
		return s, true
	}

	d, ok := toDecimal(value)
	if !ok {
		return value, false
	}
	rounded := d.Round(2)
	abs := rounded.Abs()
	fixed := abs.StringFixed(2)
	fraction := fixed[strings.IndexByte(fixed, '.'):]
	text := humanize.BigComma(abs.Truncate(0).BigInt()) + fraction
	return signed(rounded, text) + " " + f.currency, true
}

// hasLeadingZero spots zero-padded codes stored as text ("000789"). They are
// identifiers, not quantities.
func hasLeadingZero(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9'
}

func signed(d decimal.Decimal, text string) string {
	if d.IsNegative() {
		return "-" + text
	}
	return text
}

// FormatRows returns formatted copies of rows; the input is not modified.
func (f *PresentationFormatter) FormatRows(columns []string, rows []map[string]interface{}) []map[string]interface{} {
	kinds := make(map[string]ColumnKind, len(columns))
	for _, col := range columns {
		kinds[col] = ClassifyColumn(col)
	}

	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		formatted := make(map[string]interface{}, len(row))
		for col, value := range row {
			var ok bool
			switch kinds[col] {
			case ColumnCount:
				formatted[col], ok = f.FormatCount(value)
			case ColumnRevenue:
				formatted[col], ok = f.FormatRevenue(value)
			default:
				formatted[col], ok = value, true
			}
			if !ok {
				f.logger.Warn("PresentationFormatter -> FormatRows -> value is not numeric, kept as is",
					slog.String("column", col),
					slog.String("value", fmt.Sprint(value)))
			}
		}
		out[i] = formatted
	}
	return out
}

// FormatResultSet returns a formatted copy of result.
func (f *PresentationFormatter) FormatResultSet(result *dbmanager.ResultSet) *dbmanager.ResultSet {
	if result == nil {
		return nil
	}
	formatted := *result
	formatted.Rows = f.FormatRows(result.Columns, result.Rows)
	return &formatted
}

// Validate reports count and revenue cells that are not in their final form.
func (f *PresentationFormatter) Validate(columns []string, rows []map[string]interface{}) []ValidationIssue {
	var issues []ValidationIssue
	for _, col := range columns {
		kind := ClassifyColumn(col)
		if kind == ColumnPlain {
			continue
		}
		for i, row := range rows {
			value := row[col]
			if value == nil {
				continue
			}
			text, isString := value.(string)
			switch kind {
			case ColumnCount:
				if !isString || !(countPattern.MatchString(text) || hasLeadingZero(text)) {
					issues = append(issues, ValidationIssue{Row: i, Column: col, Value: fmt.Sprint(value), Expected: "whole number with thousands separators"})
				}
			case ColumnRevenue:
				if !isString || !f.revenuePattern.MatchString(text) {
					issues = append(issues, ValidationIssue{Row: i, Column: col, Value: fmt.Sprint(value), Expected: "amount with two decimals and " + f.currency})
				}
			}
		}
	}
	return issues
}

func toDecimal(value interface{}) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int8:
		return decimal.NewFromInt(int64(v)), true
	case int16:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt32(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case uint:
		return decimal.NewFromUint64(uint64(v)), true
	case uint8:
		return decimal.NewFromUint64(uint64(v)), true
	case uint16:
		return decimal.NewFromUint64(uint64(v)), true
	case uint32:
		return decimal.NewFromUint64(uint64(v)), true
	case uint64:
		return decimal.NewFromUint64(v), true
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat32(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case []byte:
		d, err := decimal.NewFromString(strings.TrimSpace(string(v)))
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}
