package render

import (
	"github.com/guptarohit/asciigraph"

	"github.com/zombor/bill-analyzer/internal/bill"
)

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Blue,
	asciigraph.Red,
	asciigraph.Green,
	asciigraph.Yellow,
	asciigraph.Magenta,
}

// UsagePlot draws a usage chart with one line per year across the months.
// Months without a value for a year plot as 0. Charts with fewer than two
// months have nothing to plot and return "".
func UsagePlot(chart bill.UsageChart) string {
	if len(chart.Data) < 2 {
		return ""
	}

	years := chartYears(chart)
	if len(years) == 0 {
		return ""
	}

	series := make([][]float64, len(years))
	for i := range series {
		series[i] = make([]float64, len(chart.Data))
	}
	for m, point := range chart.Data {
		for _, u := range point.Usage {
			for i, year := range years {
				if year == u.Year {
					series[i][m] = u.Value
				}
			}
		}
	}

	colors := make([]asciigraph.AnsiColor, len(years))
	for i := range colors {
		colors[i] = seriesColors[i%len(seriesColors)]
	}

	return asciigraph.PlotMany(series,
		asciigraph.Height(8),
		asciigraph.Width(len(chart.Data)*6),
		asciigraph.LowerBound(0),
		asciigraph.Caption(chartCaption(chart)),
		asciigraph.SeriesColors(colors...),
		asciigraph.SeriesLegends(years...),
	)
}
