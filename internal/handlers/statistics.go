package handlers

import (
	"net/http"
	"strconv"
	"time"

	"expense-ledger/internal/models"
	"expense-ledger/internal/report"

	"github.com/shopspring/decimal"
)

// StatsBar is one bar of a chart. Width is a percentage of the widest bar.
type StatsBar struct {
	Label  string
	Amount string
	Width  float64
}

// StatsCategoryItem represents a category with its spending statistics.
type StatsCategoryItem struct {
	Category      models.Category
	Total         string
	Count         int
	Percentage    float64
	CategoryStyle CategoryStyle
}

// StatsViewModel is the data passed to the statistics view template.
type StatsViewModel struct {
	Year       int
	Month      int
	MonthName  string
	AllTime    bool
	Total      string
	Monthly    []StatsBar
	Categories []StatsCategoryItem
	Expenses   []ExpenseItem
	PrevYear   int
	PrevMonth  int
	NextYear   int
	NextMonth  int
}

// Statistics renders monthly totals for all time plus a category breakdown,
// either for all time or, when year and month are given, for that month.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	expenses, err := h.expenses.ListForUser(user.ID)
	h.metrics.ObserveExpenseOp("list", err)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	vm := StatsViewModel{AllTime: true, Monthly: monthBars(report.Monthly(expenses))}

	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if y, err := strconv.Atoi(r.URL.Query().Get("year")); err == nil {
		year = y
		vm.AllTime = false
	}
	if m, err := strconv.Atoi(r.URL.Query().Get("month")); err == nil && m >= 1 && m <= 12 {
		month = m
		vm.AllTime = false
	}

	selected := expenses
	if !vm.AllTime {
		selected = inMonth(expenses, year, month)
	}

	vm.Total = report.Total(selected).StringFixed(2)
	for _, ct := range report.ByCategory(selected) {
		vm.Categories = append(vm.Categories, StatsCategoryItem{
			Category:      ct.Category,
			Total:         ct.Total.StringFixed(2),
			Count:         ct.Count,
			Percentage:    ct.Percentage,
			CategoryStyle: getCategoryStyle(ct.Category),
		})
	}
	for _, e := range selected {
		vm.Expenses = append(vm.Expenses, newItem(e))
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	prev, next := first.AddDate(0, -1, 0), first.AddDate(0, 1, 0)
	vm.Year, vm.Month, vm.MonthName = year, month, first.Month().String()
	vm.PrevYear, vm.PrevMonth = prev.Year(), int(prev.Month())
	vm.NextYear, vm.NextMonth = next.Year(), int(next.Month())

	h.render(w, r, http.StatusOK, "stats.html", vm)
}

func inMonth(expenses []models.Expense, year, month int) []models.Expense {
	var out []models.Expense
	for _, e := range expenses {
		if e.Date.Year() == year && int(e.Date.Month()) == month {
			out = append(out, e)
		}
	}
	return out
}

func monthBars(months []report.MonthTotal) []StatsBar {
	peak := decimal.Zero
	for _, m := range months {
		peak = decimal.Max(peak, m.Total)
	}
	bars := make([]StatsBar, 0, len(months))
	for _, m := range months {
		width := 0.0
		if peak.IsPositive() {
			width = m.Total.Div(peak).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		bars = append(bars, StatsBar{Label: m.Month, Amount: m.Total.StringFixed(2), Width: width})
	}
	return bars
}
