// Package report computes per-month and per-category totals for a list of expenses.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"expense-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// MonthLayout formats a month key.
const MonthLayout = "2006-01"

// MonthTotal is the amount spent in one calendar month.
type MonthTotal struct {
	Month string
	Total decimal.Decimal
	Count int
}

// CategoryTotal is the amount spent in one category.
type CategoryTotal struct {
	Category   models.Category
	Total      decimal.Decimal
	Count      int
	Percentage float64
}

// Total sums every amount.
func Total(expenses []models.Expense) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range expenses {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// Monthly groups expenses by YYYY-MM, oldest month first.
func Monthly(expenses []models.Expense) []MonthTotal {
	byMonth := make(map[string]*MonthTotal)
	for _, e := range expenses {
		key := e.Date.Format(MonthLayout)
		mt, ok := byMonth[key]
		if !ok {
			mt = &MonthTotal{Month: key, Total: decimal.Zero}
			byMonth[key] = mt
		}
		mt.Total = mt.Total.Add(e.Amount)
		mt.Count++
	}

	out := make([]MonthTotal, 0, len(byMonth))
	for _, mt := range byMonth {
		out = append(out, *mt)
	}
	slices.SortFunc(out, func(a, b MonthTotal) int { return strings.Compare(a.Month, b.Month) })
	return out
}

// ByCategory groups expenses by category in models.Categories order. Categories
// without expenses are omitted.
func ByCategory(expenses []models.Expense) []CategoryTotal {
	totals := make(map[models.Category]*CategoryTotal)
	for _, e := range expenses {
		ct, ok := totals[e.Category]
		if !ok {
			ct = &CategoryTotal{Category: e.Category, Total: decimal.Zero}
			totals[e.Category] = ct
		}
		ct.Total = ct.Total.Add(e.Amount)
		ct.Count++
	}

	grand := Total(expenses)
	out := make([]CategoryTotal, 0, len(totals))
	for _, c := range models.Categories {
		ct, ok := totals[c]
		if !ok {
			continue
		}
		if grand.IsPositive() {
			ct.Percentage = ct.Total.Div(grand).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		out = append(out, *ct)
	}
	return out
}

// Bar is one labelled value in a text chart.
type Bar struct {
	Label string
	Value decimal.Decimal
}

// MonthBars converts monthly totals into chart bars.
func MonthBars(months []MonthTotal) []Bar {
	bars := make([]Bar, 0, len(months))
	for _, m := range months {
		bars = append(bars, Bar{Label: m.Month, Value: m.Total})
	}
	return bars
}

// CategoryBars converts category totals into chart bars.
func CategoryBars(categories []CategoryTotal) []Bar {
	bars := make([]Bar, 0, len(categories))
	for _, c := range categories {
		bars = append(bars, Bar{Label: string(c.Category), Value: c.Total})
	}
	return bars
}

// BarChart draws a horizontal bar chart. The largest value spans width cells.
func BarChart(w io.Writer, title string, bars []Bar, width int) error {
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	labelWidth := 0
	peak := decimal.Zero
	for _, b := range bars {
		labelWidth = max(labelWidth, len(b.Label))
		peak = decimal.Max(peak, b.Value)
	}
	for _, b := range bars {
		cells := 0
		if peak.IsPositive() {
			cells = int(b.Value.Div(peak).Mul(decimal.NewFromInt(int64(width))).Round(0).IntPart())
		}
		if _, err := fmt.Fprintf(w, "%-*s | %s %s\n", labelWidth, b.Label, strings.Repeat("#", cells), b.Value.StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}
