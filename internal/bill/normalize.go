package bill

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports provider output that does not match the bill schema
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bill data: missing or invalid fields: %s", strings.Join(e.Fields, ", "))
}

// The wire types mirror the response schema. Required scalars are pointers
// so that presence can be told apart from a zero value.
type wireBill struct {
	AccountName         string         `json:"accountName"`
	AccountNumber       *string        `json:"accountNumber" validate:"required"`
	ServiceAddress      string         `json:"serviceAddress"`
	StatementDate       string         `json:"statementDate"`
	ServicePeriodStart  string         `json:"servicePeriodStart"`
	ServicePeriodEnd    string         `json:"servicePeriodEnd"`
	TotalCurrentCharges *float64       `json:"totalCurrentCharges" validate:"required"`
	DueDate             string         `json:"dueDate"`
	ConfidenceScore     *float64       `json:"confidenceScore" validate:"omitempty,min=0,max=1"`
	UsageCharts         []wireChart    `json:"usageCharts" validate:"required,dive"`
	LineItems           []wireLineItem `json:"lineItems" validate:"required,dive"`
}

type wireChart struct {
	Title *string     `json:"title" validate:"required"`
	Unit  *string     `json:"unit" validate:"required"`
	Data  []wirePoint `json:"data" validate:"required,dive"`
}

type wirePoint struct {
	Month *string     `json:"month" validate:"required"`
	Usage []wireUsage `json:"usage" validate:"required,unique=Year,dive"`
}

type wireUsage struct {
	Year  *string  `json:"year" validate:"required"`
	Value *float64 `json:"value" validate:"required"`
}

type wireLineItem struct {
	Description *string  `json:"description" validate:"required"`
	Amount      *float64 `json:"amount" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalize enforces the bill schema on a raw provider response and coerces
// a currency-formatted totalCurrentCharges string into a number.
func Normalize(raw map[string]any) (*ExtractedBill, error) {
	if raw == nil {
		return nil, &ValidationError{Fields: []string{"accountNumber", "totalCurrentCharges", "usageCharts", "lineItems"}}
	}

	// Keys are matched case-insensitively when decoding, so coerce the same way
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok && strings.EqualFold(k, "totalCurrentCharges") {
			fields[k] = coerceAmount(s)
			continue
		}
		fields[k] = v
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling bill data: %w", err)
	}

	var wire wireBill
	if err := json.Unmarshal(data, &wire); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ValidationError{Fields: []string{typeErr.Field}}
		}
		return nil, fmt.Errorf("decoding bill data: %w", err)
	}

	if err := validate.Struct(wire); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.TrimPrefix(fe.Namespace(), "wireBill."))
			}
			return nil, &ValidationError{Fields: fields}
		}
		return nil, fmt.Errorf("validating bill data: %w", err)
	}

	return wire.toBill(), nil
}

var (
	nonNumeric     = regexp.MustCompile(`[^0-9.\-]+`)
	leadingNumeric = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)`)
)

// coerceAmount strips everything except digits, '.' and '-' and parses the
// longest numeric prefix. A string with nothing parseable becomes 0.
func coerceAmount(s string) float64 {
	cleaned := nonNumeric.ReplaceAllString(s, "")
	match := leadingNumeric.FindString(cleaned)
	if match == "" {
		slog.Warn("Could not parse total charges, using 0", "value", s)
		return 0
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		slog.Warn("Could not parse total charges, using 0", "value", s, "error", err)
		return 0
	}
	return value
}

func (w *wireBill) toBill() *ExtractedBill {
	b := &ExtractedBill{
		AccountName:         w.AccountName,
		AccountNumber:       *w.AccountNumber,
		ServiceAddress:      w.ServiceAddress,
		StatementDate:       w.StatementDate,
		ServicePeriodStart:  w.ServicePeriodStart,
		ServicePeriodEnd:    w.ServicePeriodEnd,
		TotalCurrentCharges: *w.TotalCurrentCharges,
		DueDate:             w.DueDate,
		ConfidenceScore:     w.ConfidenceScore,
		UsageCharts:         make([]UsageChart, 0, len(w.UsageCharts)),
		LineItems:           make([]LineItem, 0, len(w.LineItems)),
	}

	for _, c := range w.UsageCharts {
		chart := UsageChart{
			Title: *c.Title,
			Unit:  *c.Unit,
			Data:  make([]UsageDataPoint, 0, len(c.Data)),
		}
		for _, p := range c.Data {
			point := UsageDataPoint{
				Month: *p.Month,
				Usage: make([]UsageByYear, 0, len(p.Usage)),
			}
			for _, u := range p.Usage {
				point.Usage = append(point.Usage, UsageByYear{Year: *u.Year, Value: *u.Value})
			}
			chart.Data = append(chart.Data, point)
		}
		b.UsageCharts = append(b.UsageCharts, chart)
	}

	for _, item := range w.LineItems {
		b.LineItems = append(b.LineItems, LineItem{Description: *item.Description, Amount: *item.Amount})
	}

	return b
}
