package render

import (
	"bytes"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-analyzer/internal/bill"
)

func TestRender(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Render Suite")
}

func sampleRecord(score float64) *bill.Record {
	return &bill.Record{
		ID:         "rec-1",
		AnalyzedAt: time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC),
		ExtractedBill: bill.ExtractedBill{
			AccountName:         "Jane Doe",
			AccountNumber:       "123-456",
			StatementDate:       "October 5, 2017",
			TotalCurrentCharges: 84.12,
			ConfidenceScore:     &score,
			LineItems:           []bill.LineItem{{Description: "Payment received", Amount: -80}},
			UsageCharts: []bill.UsageChart{{
				Title: "Electricity",
				Unit:  "kWh",
				Data: []bill.UsageDataPoint{
					{Month: "Oct", Usage: []bill.UsageByYear{{Year: "2016", Value: 410}, {Year: "2017", Value: 385.5}}},
					{Month: "Nov", Usage: []bill.UsageByYear{{Year: "2017", Value: 402}}},
				},
			}},
		},
	}
}

var _ = Describe("ConfidenceLevel", func() {
	DescribeTable("bands the score",
		func(score float64, percent int, level string) {
			p, l := ConfidenceLevel(score)
			Expect(p).To(Equal(percent))
			Expect(l).To(Equal(level))
		},
		Entry("high", 0.92, 92, "High"),
		Entry("boundary is medium", 0.85, 85, "Medium"),
		Entry("medium", 0.7, 70, "Medium"),
		Entry("boundary is low", 0.6, 60, "Low"),
		Entry("low", 0.2, 20, "Low"),
	)
})

var _ = Describe("History", func() {
	It("lists each record", func() {
		var buf bytes.Buffer
		Expect(History(&buf, []*bill.Record{sampleRecord(0.9)})).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("rec-1"))
		Expect(buf.String()).To(ContainSubstring("123-456"))
		Expect(buf.String()).To(ContainSubstring("84.12"))
		Expect(buf.String()).To(ContainSubstring("90% High"))
	})

	It("says when there is nothing saved", func() {
		var buf bytes.Buffer
		Expect(History(&buf, nil)).To(Succeed())
		Expect(buf.String()).To(Equal("No saved bills.\n"))
	})
})

var _ = Describe("Record", func() {
	var (
		record *bill.Record
		charts bool
		out    string
	)

	BeforeEach(func() {
		record = sampleRecord(0.9)
		charts = false
	})

	JustBeforeEach(func() {
		var buf bytes.Buffer
		Expect(Record(&buf, record, charts)).To(Succeed())
		out = buf.String()
	})

	It("shows the account and billing fields", func() {
		Expect(out).To(ContainSubstring("Jane Doe"))
		Expect(out).To(ContainSubstring("October 5, 2017"))
		Expect(out).To(ContainSubstring("84.12"))
		Expect(out).To(ContainSubstring("90% High"))
	})

	It("shows line items and usage", func() {
		Expect(out).To(ContainSubstring("Payment received"))
		Expect(out).To(ContainSubstring("-80.00"))
		Expect(out).To(ContainSubstring("Electricity (kWh)"))
		Expect(out).To(ContainSubstring("385.5"))
	})

	It("does not warn about a confident extraction", func() {
		Expect(out).NotTo(ContainSubstring("Low Confidence Warning"))
	})

	When("the confidence is low", func() {
		BeforeEach(func() {
			record = sampleRecord(0.5)
		})

		It("warns the user to review the fields", func() {
			Expect(out).To(ContainSubstring("Low Confidence Warning"))
			Expect(out).To(ContainSubstring("50% Low"))
		})
	})

	When("charts are requested", func() {
		BeforeEach(func() {
			charts = true
		})

		It("plots each chart with a legend per year", func() {
			Expect(out).To(ContainSubstring("2016"))
			Expect(out).To(ContainSubstring("2017"))
			Expect(out).To(ContainSubstring("┤"))
		})
	})
})

var _ = Describe("UsagePlot", func() {
	It("skips charts with a single month", func() {
		chart := bill.UsageChart{Title: "Gas", Data: []bill.UsageDataPoint{{Month: "Jan", Usage: []bill.UsageByYear{{Year: "2024", Value: 3}}}}}
		Expect(UsagePlot(chart)).To(BeEmpty())
	})
})
