package bill

import (
	"fmt"
	"strings"
	"time"
)

// ReviewThreshold is the confidence score below which a record should be
// double-checked by the user.
const ReviewThreshold = 0.75

// ExtractedBill is the structured data read from a bill image by a provider
type ExtractedBill struct {
	AccountName         string       `json:"accountName,omitempty" yaml:"accountName,omitempty"`
	AccountNumber       string       `json:"accountNumber" yaml:"accountNumber"`
	ServiceAddress      string       `json:"serviceAddress,omitempty" yaml:"serviceAddress,omitempty"`
	StatementDate       string       `json:"statementDate,omitempty" yaml:"statementDate,omitempty"`
	ServicePeriodStart  string       `json:"servicePeriodStart,omitempty" yaml:"servicePeriodStart,omitempty"`
	ServicePeriodEnd    string       `json:"servicePeriodEnd,omitempty" yaml:"servicePeriodEnd,omitempty"`
	TotalCurrentCharges float64      `json:"totalCurrentCharges" yaml:"totalCurrentCharges"`
	DueDate             string       `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
	ConfidenceScore     *float64     `json:"confidenceScore,omitempty" yaml:"confidenceScore,omitempty"`
	UsageCharts         []UsageChart `json:"usageCharts" yaml:"usageCharts"`
	LineItems           []LineItem   `json:"lineItems" yaml:"lineItems"`
}

// UsageChart is one usage chart printed on the bill
type UsageChart struct {
	Title string           `json:"title" yaml:"title"`
	Unit  string           `json:"unit" yaml:"unit"`
	Data  []UsageDataPoint `json:"data" yaml:"data"`
}

// UsageDataPoint holds the values for one month, one per year shown
type UsageDataPoint struct {
	Month string        `json:"month" yaml:"month"`
	Usage []UsageByYear `json:"usage" yaml:"usage"`
}

// UsageByYear is a single bar of a usage chart
type UsageByYear struct {
	Year  string  `json:"year" yaml:"year"`
	Value float64 `json:"value" yaml:"value"`
}

// LineItem is a charge or credit; credits and payments are negative
type LineItem struct {
	Description string  `json:"description" yaml:"description"`
	Amount      float64 `json:"amount" yaml:"amount"`
}

// Record is an ExtractedBill with the identity stamped on it after a
// successful analysis. ID and AnalyzedAt never change after creation.
type Record struct {
	ExtractedBill `yaml:",inline"`
	ID            string    `json:"id" yaml:"id"`
	AnalyzedAt    time.Time `json:"analyzedAt" yaml:"analyzedAt"`
}

// Confidence returns the confidence score, treating a missing score as 1.0.
func (b *ExtractedBill) Confidence() float64 {
	if b.ConfidenceScore == nil {
		return 1.0
	}
	return *b.ConfidenceScore
}

// NeedsReview reports whether the extraction confidence is low enough that
// the user should check the values against the bill.
func (b *ExtractedBill) NeedsReview() bool {
	return b.Confidence() < ReviewThreshold
}

// SetUsageValue changes an existing usage value, matching the chart title and
// month case-insensitively. Points cannot be added this way.
func (b *ExtractedBill) SetUsageValue(chartTitle, month, year string, value float64) error {
	for c := range b.UsageCharts {
		chart := &b.UsageCharts[c]
		if !strings.EqualFold(chart.Title, chartTitle) {
			continue
		}
		for p := range chart.Data {
			point := &chart.Data[p]
			if !strings.EqualFold(point.Month, month) {
				continue
			}
			for u := range point.Usage {
				if point.Usage[u].Year == year {
					point.Usage[u].Value = value
					return nil
				}
			}
			return fmt.Errorf("chart %q has no %s value for %s", chart.Title, year, point.Month)
		}
		return fmt.Errorf("chart %q has no month %q", chart.Title, month)
	}
	return fmt.Errorf("no usage chart titled %q", chartTitle)
}
