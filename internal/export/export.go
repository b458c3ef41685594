// Package export writes bill records as CSV, JSON or YAML.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zombor/bill-analyzer/internal/bill"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv, json or yaml)", s)
	}
}

// Encode renders the record in the given format
func Encode(record *bill.Record, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return CSV(record), nil
	case FormatJSON:
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(record); err != nil {
			return nil, fmt.Errorf("marshaling yaml: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return nil, fmt.Errorf("marshaling yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// CSV renders a record as a sectioned spreadsheet: bill details, line items
// and usage data. Every field is quoted.
func CSV(record *bill.Record) []byte {
	rows := [][]string{
		{"Category", "Field", "Value"},
		{"Bill Details", "Account Name", record.AccountName},
		{"Bill Details", "Account Number", record.AccountNumber},
		{"Bill Details", "Service Address", record.ServiceAddress},
		{"Bill Details", "Statement Date", record.StatementDate},
		{"Bill Details", "Due Date", record.DueDate},
		{"Bill Details", "Total Current Charges", formatNumber(record.TotalCurrentCharges)},
		{"Bill Details", "Confidence Score", confidenceField(record.ConfidenceScore)},
		{},
	}

	if len(record.LineItems) > 0 {
		rows = append(rows, []string{"Line Items", "Description", "Amount"})
		for _, item := range record.LineItems {
			rows = append(rows, []string{"Line Items", item.Description, formatNumber(item.Amount)})
		}
		rows = append(rows, []string{})
	}

	if len(record.UsageCharts) > 0 {
		rows = append(rows, []string{"Usage Data", "Chart Title", "Unit", "Month", "Year", "Usage"})
		for _, chart := range record.UsageCharts {
			for _, point := range chart.Data {
				for _, usage := range point.Usage {
					rows = append(rows, []string{
						"Usage Data",
						chart.Title,
						chart.Unit,
						point.Month,
						usage.Year,
						formatNumber(usage.Value),
					})
				}
			}
		}
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		fields := make([]string, 0, len(row))
		for _, field := range row {
			fields = append(fields, quote(field))
		}
		lines = append(lines, strings.Join(fields, ","))
	}
	return []byte(strings.Join(lines, "\n"))
}

// quote wraps a field in double quotes, doubling embedded quotes.
func quote(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// A zero or missing score is reported as N/A.
func confidenceField(score *float64) string {
	if score == nil || *score == 0 {
		return "N/A"
	}
	return formatNumber(*score)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]+`)

// Filename builds the download name for a record:
// bill-analysis-<account>-<statement date or today>.<ext>
func Filename(record *bill.Record, format Format, today time.Time) string {
	date := record.StatementDate
	if date == "" {
		date = today.Format("2006-01-02")
	}
	name := fmt.Sprintf("bill-analysis-%s-%s", sanitize(record.AccountNumber), sanitize(date))
	return name + "." + string(format)
}

// sanitize replaces runs of characters that are unsafe in file names with a
// single hyphen and truncates to a reasonable length.
func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "-")
	s = strings.Trim(s, "-.")
	maxLen := 50
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	if s == "" {
		s = "unknown"
	}
	return s
}
