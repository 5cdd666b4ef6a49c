package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expense-ledger/internal/logging"
	"expense-ledger/internal/models"
	"expense-ledger/internal/report"
	"expense-ledger/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CategoryDef defines the properties of a category.
type CategoryDef struct {
	ID    models.Category
	Icon  string
	Color string
}

var categories = []CategoryDef{
	{models.CategoryFood, "🍽️", "#60a5fa"},
	{models.CategoryTransport, "🚌", "#a78bfa"},
	{models.CategoryRent, "🏠", "#818cf8"},
	{models.CategoryUtilities, "💡", "#fbbf24"},
	{models.CategoryShopping, "🛍️", "#f472b6"},
	{models.CategoryOther, "📦", "#94a3b8"},
}

// CategoryStyle defines the visual style for a category.
type CategoryStyle struct {
	Icon  string
	Color string
}

func getCategoryStyle(category models.Category) CategoryStyle {
	for _, c := range categories {
		if c.ID == category {
			return CategoryStyle{Icon: c.Icon, Color: c.Color}
		}
	}
	return CategoryStyle{Icon: "📦", Color: "#94a3b8"}
}

// ExpenseItem represents an expense in the list view.
type ExpenseItem struct {
	models.Expense
	AmountText    string
	CategoryStyle CategoryStyle
}

// ExpenseGroup groups expenses by date.
type ExpenseGroup struct {
	Title string
	Date  string
	Total string
	Items []ExpenseItem
}

// ListViewModel is the data passed to the list view template.
type ListViewModel struct {
	Total  string
	Count  int
	Groups []ExpenseGroup
}

// FormViewModel is the data passed to the create/edit form template.
type FormViewModel struct {
	Expense     *models.Expense
	IsEdit      bool
	Error       string
	Amount      string
	Date        string
	Category    string
	Description string
	Categories  []CategoryDef
}

func newItem(e models.Expense) ExpenseItem {
	return ExpenseItem{
		Expense:       e,
		AmountText:    e.Amount.StringFixed(2),
		CategoryStyle: getCategoryStyle(e.Category),
	}
}

// ListExpenses renders the user's expenses, oldest date first, grouped by day.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	expenses, err := h.expenses.ListForUser(user.ID)
	h.metrics.ObserveExpenseOp("list", err)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	var groups []ExpenseGroup
	groupTotals := make([]decimal.Decimal, 0)
	for _, e := range expenses {
		date := e.DateString()
		if len(groups) == 0 || groups[len(groups)-1].Date != date {
			groups = append(groups, ExpenseGroup{Date: date, Title: formatGroupTitle(e.Date)})
			groupTotals = append(groupTotals, decimal.Zero)
		}
		i := len(groups) - 1
		groups[i].Items = append(groups[i].Items, newItem(e))
		groupTotals[i] = groupTotals[i].Add(e.Amount)
	}
	for i := range groups {
		groups[i].Total = groupTotals[i].StringFixed(2)
	}

	h.render(w, r, http.StatusOK, "list.html", ListViewModel{
		Total:  report.Total(expenses).StringFixed(2),
		Count:  len(expenses),
		Groups: groups,
	})
}

// CreateExpenseForm renders the form to create a new expense.
func (h *Handlers) CreateExpenseForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "form.html", FormViewModel{
		Date:       time.Now().Format(models.DateLayout),
		Category:   string(models.CategoryFood),
		Categories: categories,
	})
}

// EditExpenseForm renders the form to edit an existing expense.
func (h *Handlers) EditExpenseForm(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	expense, err := h.expenses.Find(user.ID, id)
	h.metrics.ObserveExpenseOp("find", err)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "form.html", FormViewModel{
		Expense:     expense,
		IsEdit:      true,
		Amount:      expense.Amount.StringFixed(2),
		Date:        expense.DateString(),
		Category:    string(expense.Category),
		Description: expense.Description,
		Categories:  categories,
	})
}

// CreateExpense handles the creation of a new expense.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	form, err := parseForm(r)
	if err == nil {
		var amount decimal.Decimal
		if amount, err = parseAmount(form.Amount); err == nil {
			_, err = h.expenses.Add(user.ID, amount, form.Date, form.Category, form.Description)
			h.metrics.ObserveExpenseOp("add", err)
		}
	}
	if err != nil {
		h.formError(w, r, form, err)
		return
	}
	h.redirectToList(w, r)
}

// UpdateExpense applies the non-empty form fields to an existing expense.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	form, err := parseForm(r)
	if err == nil {
		var update models.ExpenseUpdate
		if update, err = form.update(); err == nil {
			_, err = h.expenses.Edit(user.ID, id, update)
			h.metrics.ObserveExpenseOp("edit", err)
		}
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.storeError(w, r, err)
			return
		}
		form.IsEdit = true
		form.Expense = &models.Expense{ID: id, UserID: user.ID}
		h.formError(w, r, form, err)
		return
	}
	h.redirectToList(w, r)
}

// DeleteExpense removes an expense.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	removed, err := h.expenses.Delete(user.ID, id)
	h.metrics.ObserveExpenseOp("delete", err)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if !removed {
		http.Error(w, "Expense not found", http.StatusNotFound)
		return
	}
	h.redirectToList(w, r)
}

// ExportExpenses downloads the user's expenses as CSV.
func (h *Handlers) ExportExpenses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	var buf bytes.Buffer
	err := h.expenses.WriteExportForUser(user.ID, &buf)
	h.metrics.ObserveExpenseOp("export", err)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("expenses_user_%d.csv", user.ID)))
	_, _ = buf.WriteTo(w)
}

func (h *Handlers) redirectToList(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Location", `{"path":"/expenses", "target":"#content"}`)
		return
	}
	http.Redirect(w, r, "/expenses", http.StatusSeeOther)
}

func (h *Handlers) formError(w http.ResponseWriter, r *http.Request, form FormViewModel, err error) {
	if !errors.Is(err, storage.ErrValidation) {
		h.storeError(w, r, err)
		return
	}
	form.Error = err.Error()
	form.Categories = categories
	h.render(w, r, http.StatusBadRequest, "form.html", form)
}

// storeError maps store errors to HTTP statuses.
func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "Expense not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrDuplicateUsername):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logging.FromRequest(r).WithError(err).Error("expense store")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func expenseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "Invalid expense id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func parseForm(r *http.Request) (FormViewModel, error) {
	if err := r.ParseForm(); err != nil {
		return FormViewModel{}, &storage.ValidationError{Field: "form", Err: err}
	}
	return FormViewModel{
		Amount:      strings.TrimSpace(r.FormValue("amount")),
		Date:        strings.TrimSpace(r.FormValue("date")),
		Category:    strings.TrimSpace(r.FormValue("category")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}, nil
}

// update builds a partial edit from the submitted form. Blank fields are left unchanged.
func (f FormViewModel) update() (models.ExpenseUpdate, error) {
	var u models.ExpenseUpdate
	if f.Amount != "" {
		amount, err := parseAmount(f.Amount)
		if err != nil {
			return u, err
		}
		u.Amount = &amount
	}
	if f.Date != "" {
		u.Date = &f.Date
	}
	if f.Category != "" {
		u.Category = &f.Category
	}
	if f.Description != "" {
		u.Description = &f.Description
	}
	return u, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &storage.ValidationError{Field: "amount", Err: fmt.Errorf("%q is not a number", s)}
	}
	return amount, nil
}

func formatGroupTitle(date time.Time) string {
	dateStr := date.Format(models.DateLayout)
	now := time.Now()

	if dateStr == now.Format(models.DateLayout) {
		return "TODAY"
	}
	if dateStr == now.AddDate(0, 0, -1).Format(models.DateLayout) {
		return "YESTERDAY"
	}
	return strings.ToUpper(date.Format("Mon, 02 Jan '06"))
}
