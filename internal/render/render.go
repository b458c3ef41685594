// Package render draws bill records and history for the terminal.
package render

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/zombor/bill-analyzer/internal/bill"
)

const reviewWarning = "Low Confidence Warning\n" +
	"The AI has low confidence in the accuracy of the extracted data, likely due to image quality.\n" +
	"Please carefully review and edit all fields."

// ConfidenceLevel converts a 0-1 score to a whole percentage and its band
func ConfidenceLevel(score float64) (int, string) {
	percent := int(math.Round(score * 100))
	switch {
	case percent > 85:
		return percent, "High"
	case percent > 60:
		return percent, "Medium"
	default:
		return percent, "Low"
	}
}

func confidenceBadge(score *float64) string {
	if score == nil {
		return lipgloss.NewStyle().Foreground(subtle).Render("N/A")
	}
	percent, level := ConfidenceLevel(*score)
	color := low
	switch level {
	case "High":
		color = high
	case "Medium":
		color = medium
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(fmt.Sprintf("%d%% %s", percent, level))
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func formatValue(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func newTable(w io.Writer, align tw.Align) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.Off}},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: align},
			},
		}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
}

// History writes the history list as a table, newest first
func History(w io.Writer, records []*bill.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No saved bills.")
		return err
	}

	table := newTable(w, tw.AlignLeft)
	table.Header([]string{"ID", "Account", "Statement Date", "Total", "Confidence", "Analyzed"})
	for _, r := range records {
		confidence := "N/A"
		if r.ConfidenceScore != nil {
			percent, level := ConfidenceLevel(*r.ConfidenceScore)
			confidence = fmt.Sprintf("%d%% %s", percent, level)
		}
		if err := table.Append([]string{
			r.ID,
			r.AccountNumber,
			r.StatementDate,
			formatAmount(r.TotalCurrentCharges),
			confidence,
			r.AnalyzedAt.Local().Format("2006-01-02 15:04"),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// Record writes the full detail of one bill. When charts is set each usage
// chart is also plotted.
func Record(w io.Writer, r *bill.Record, charts bool) error {
	var out strings.Builder

	out.WriteString(titleStyle.Render("Bill "+r.ID) + "\n")
	if r.NeedsReview() {
		out.WriteString(warningStyle.Render(reviewWarning) + "\n")
	}

	out.WriteString(sectionStyle.Render("Account Information") + "\n")
	field(&out, "Account Name", r.AccountName)
	field(&out, "Account Number", r.AccountNumber)
	field(&out, "Service Address", r.ServiceAddress)

	out.WriteString(sectionStyle.Render("Billing Summary") + "\n")
	field(&out, "Statement Date", r.StatementDate)
	field(&out, "Service Period", servicePeriod(r.ServicePeriodStart, r.ServicePeriodEnd))
	field(&out, "Due Date", r.DueDate)
	field(&out, "Total Current Charges", formatAmount(r.TotalCurrentCharges))
	field(&out, "AI Confidence Score", confidenceBadge(r.ConfidenceScore))
	field(&out, "Analyzed", r.AnalyzedAt.Local().Format("2006-01-02 15:04:05"))

	if len(r.LineItems) > 0 {
		out.WriteString(sectionStyle.Render("Line Items") + "\n")
		var buf bytes.Buffer
		table := newTable(&buf, tw.AlignRight)
		table.Header([]string{"Description", "Amount"})
		for _, item := range r.LineItems {
			if err := table.Append([]string{item.Description, formatAmount(item.Amount)}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
		out.Write(buf.Bytes())
	}

	for _, chart := range r.UsageCharts {
		out.WriteString(sectionStyle.Render(chartCaption(chart)) + "\n")
		var buf bytes.Buffer
		if err := usageTable(&buf, chart); err != nil {
			return err
		}
		out.Write(buf.Bytes())
		if charts {
			if plot := UsagePlot(chart); plot != "" {
				out.WriteString(plot + "\n")
			}
		}
	}

	_, err := io.WriteString(w, out.String())
	return err
}

func field(out *strings.Builder, label, value string) {
	if value == "" {
		value = "-"
	}
	out.WriteString(labelStyle.Render(label) + value + "\n")
}

func servicePeriod(start, end string) string {
	if start == "" && end == "" {
		return ""
	}
	return start + " - " + end
}

func chartCaption(chart bill.UsageChart) string {
	if chart.Unit == "" {
		return chart.Title
	}
	return fmt.Sprintf("%s (%s)", chart.Title, chart.Unit)
}

// chartYears returns the years of a chart in order of first appearance
func chartYears(chart bill.UsageChart) []string {
	var years []string
	seen := map[string]bool{}
	for _, point := range chart.Data {
		for _, u := range point.Usage {
			if !seen[u.Year] {
				seen[u.Year] = true
				years = append(years, u.Year)
			}
		}
	}
	return years
}

// usageTable writes one row per month with a column per year
func usageTable(w io.Writer, chart bill.UsageChart) error {
	years := chartYears(chart)
	table := newTable(w, tw.AlignRight)
	table.Header(append([]string{"Month"}, years...))
	for _, point := range chart.Data {
		row := make([]string, len(years)+1)
		row[0] = point.Month
		for _, u := range point.Usage {
			for i, year := range years {
				if year == u.Year {
					row[i+1] = formatValue(u.Value)
				}
			}
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
